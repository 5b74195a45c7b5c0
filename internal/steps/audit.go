package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/edvin/provisioning/internal/model"
	"github.com/edvin/provisioning/internal/saga"
)

// Archiver stores an audit payload under a key in long-term storage.
type Archiver interface {
	Export(ctx context.Context, key string, payload any) error
}

// RecordAuditStep writes a summary of the provisioning outcome to the
// archive. It is best-effort: the subscriber's service is up whether or
// not the audit record lands, so a failure degrades into a warning.
type RecordAuditStep struct {
	archiver Archiver
	store    saga.Store
}

func NewRecordAuditStep(archiver Archiver, store saga.Store) *RecordAuditStep {
	return &RecordAuditStep{archiver: archiver, store: store}
}

func (s *RecordAuditStep) Execute(ctx context.Context, input model.InputData, wfctx model.Context) (*saga.StepResult, error) {
	serviceID, _ := input[InputServiceID].(string)
	svc, err := s.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("load service %s: %w", serviceID, err)
	}

	key := fmt.Sprintf("provisioning/%s/%s.json", svc.TenantID, svc.ID)
	payload := map[string]any{
		"service_id":       svc.ID,
		"subscriber_id":    svc.SubscriberID,
		"tenant_id":        svc.TenantID,
		"ipv4_address":     wfctx.String(CtxIPv4Address),
		"ipv6_address":     wfctx.String(CtxIPv6Address),
		"delegated_prefix": wfctx.String(CtxDelegatedPrefix),
		"pon_device_ref":   wfctx.String(CtxPONDeviceRef),
		"cpe_config_ref":   wfctx.String(CtxCPEConfigRef),
		"provisioned_at":   time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.archiver.Export(ctx, key, payload); err != nil {
		return nil, fmt.Errorf("archive provisioning audit: %w", err)
	}

	return &saga.StepResult{
		Output:         map[string]any{CtxArchiveKey: key},
		ContextUpdates: map[string]any{CtxArchiveKey: key},
	}, nil
}
