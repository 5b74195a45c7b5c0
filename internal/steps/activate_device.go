package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/provisioning/internal/clients"
	"github.com/edvin/provisioning/internal/model"
	"github.com/edvin/provisioning/internal/saga"
)

// ActivateDeviceStep enables the subscriber's optical network unit on its
// port, with a single VLAN tag or an outer+inner pair when double-tagging
// is enabled.
type ActivateDeviceStep struct {
	pon   clients.PON
	store saga.Store
}

func NewActivateDeviceStep(pon clients.PON, store saga.Store) *ActivateDeviceStep {
	return &ActivateDeviceStep{pon: pon, store: store}
}

func (s *ActivateDeviceStep) Execute(ctx context.Context, input model.InputData, wfctx model.Context) (*saga.StepResult, error) {
	in, err := model.DecodeProvisionInput(input)
	if err != nil {
		return nil, err
	}
	serviceID, _ := input[InputServiceID].(string)
	svc, err := s.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("load service %s: %w", serviceID, err)
	}

	req := clients.ActivateDeviceRequest{
		Serial:           in.ONUSerial,
		Port:             in.ONUPort,
		VLANID:           in.VLANID,
		DoubleTagEnabled: in.DoubleTagEnabled,
	}
	if in.DoubleTagEnabled {
		req.InnerVLANID = in.InnerVLANID
	}

	deviceRef, err := s.pon.ActivateDevice(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("activate network device: %w", err)
	}

	svc.VLANID = &in.VLANID
	if in.DoubleTagEnabled {
		svc.InnerVLANID = &in.InnerVLANID
	}
	svc.PONDeviceRef = &deviceRef
	svc.EquipmentRefs = appendUnique(svc.EquipmentRefs, in.ONUSerial)
	svc.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateService(ctx, svc); err != nil {
		return nil, fmt.Errorf("update service %s: %w", svc.ID, err)
	}

	return &saga.StepResult{
		Output:         map[string]any{CtxPONDeviceRef: deviceRef},
		ContextUpdates: map[string]any{CtxPONDeviceRef: deviceRef},
		CompensationData: map[string]any{
			compServiceID:    svc.ID,
			compPONDeviceRef: deviceRef,
		},
	}, nil
}

// ActivateDeviceCompensator deactivates the ONU and clears the network
// segment fields from the service record.
type ActivateDeviceCompensator struct {
	pon    clients.PON
	store  saga.Store
	logger zerolog.Logger
}

func NewActivateDeviceCompensator(pon clients.PON, store saga.Store, logger zerolog.Logger) *ActivateDeviceCompensator {
	return &ActivateDeviceCompensator{pon: pon, store: store, logger: logger}
}

func (c *ActivateDeviceCompensator) Compensate(ctx context.Context, data map[string]any) error {
	deviceRef, ok := data[compPONDeviceRef].(string)
	if !ok || deviceRef == "" {
		return nil
	}
	if err := c.pon.DeactivateDevice(ctx, deviceRef); err != nil {
		return err
	}

	if serviceID, _ := data[compServiceID].(string); serviceID != "" {
		svc, err := c.store.GetService(ctx, serviceID)
		if err != nil {
			c.logger.Warn().Err(err).Str("service_id", serviceID).Msg("clear segment: load service")
			return nil
		}
		svc.VLANID, svc.InnerVLANID, svc.PONDeviceRef = nil, nil, nil
		svc.UpdatedAt = time.Now().UTC()
		if err := c.store.UpdateService(ctx, svc); err != nil {
			c.logger.Warn().Err(err).Str("service_id", serviceID).Msg("clear segment: update service")
		}
	}
	return nil
}

func appendUnique(refs []string, ref string) []string {
	for _, r := range refs {
		if r == ref {
			return refs
		}
	}
	return append(refs, ref)
}
