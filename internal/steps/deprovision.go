package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/edvin/provisioning/internal/clients"
	"github.com/edvin/provisioning/internal/model"
	"github.com/edvin/provisioning/internal/saga"
)

// The deprovision workflow tears a service down as a forward saga. The
// teardown steps have no compensators: re-provisioning after a partial
// teardown is a new provisioning workflow, not an unwind.

// RemoveCPEConfigStep removes the pushed device configuration, if any.
type RemoveCPEConfigStep struct {
	cpe   clients.CPE
	store saga.Store
}

func NewRemoveCPEConfigStep(cpe clients.CPE, store saga.Store) *RemoveCPEConfigStep {
	return &RemoveCPEConfigStep{cpe: cpe, store: store}
}

func (s *RemoveCPEConfigStep) Execute(ctx context.Context, input model.InputData, wfctx model.Context) (*saga.StepResult, error) {
	svc, err := loadService(ctx, s.store, input)
	if err != nil {
		return nil, err
	}
	if svc.ExternalDeviceID == nil {
		return &saga.StepResult{}, nil
	}
	if err := s.cpe.RemoveDevice(ctx, *svc.ExternalDeviceID); err != nil {
		return nil, fmt.Errorf("remove device config: %w", err)
	}
	svc.ExternalDeviceID = nil
	if err := saveService(ctx, s.store, svc); err != nil {
		return nil, err
	}
	return &saga.StepResult{Output: map[string]any{"cpe_config_removed": true}}, nil
}

// DeactivateDeviceStep deactivates the subscriber's ONU, if active.
type DeactivateDeviceStep struct {
	pon   clients.PON
	store saga.Store
}

func NewDeactivateDeviceStep(pon clients.PON, store saga.Store) *DeactivateDeviceStep {
	return &DeactivateDeviceStep{pon: pon, store: store}
}

func (s *DeactivateDeviceStep) Execute(ctx context.Context, input model.InputData, wfctx model.Context) (*saga.StepResult, error) {
	svc, err := loadService(ctx, s.store, input)
	if err != nil {
		return nil, err
	}
	if svc.PONDeviceRef == nil {
		return &saga.StepResult{}, nil
	}
	if err := s.pon.DeactivateDevice(ctx, *svc.PONDeviceRef); err != nil {
		return nil, fmt.Errorf("deactivate network device: %w", err)
	}
	svc.VLANID, svc.InnerVLANID, svc.PONDeviceRef = nil, nil, nil
	if err := saveService(ctx, s.store, svc); err != nil {
		return nil, err
	}
	return &saga.StepResult{Output: map[string]any{"device_deactivated": true}}, nil
}

// DeleteAAAAccountStep removes the subscriber's AAA account, if present.
type DeleteAAAAccountStep struct {
	aaa   clients.AAA
	store saga.Store
}

func NewDeleteAAAAccountStep(aaa clients.AAA, store saga.Store) *DeleteAAAAccountStep {
	return &DeleteAAAAccountStep{aaa: aaa, store: store}
}

func (s *DeleteAAAAccountStep) Execute(ctx context.Context, input model.InputData, wfctx model.Context) (*saga.StepResult, error) {
	svc, err := loadService(ctx, s.store, input)
	if err != nil {
		return nil, err
	}
	if svc.Username == nil {
		return &saga.StepResult{}, nil
	}
	if err := s.aaa.DeleteAccount(ctx, *svc.Username); err != nil {
		return nil, fmt.Errorf("delete aaa account: %w", err)
	}
	svc.Username = nil
	svc.CredentialHash = nil
	if err := saveService(ctx, s.store, svc); err != nil {
		return nil, err
	}
	return &saga.StepResult{Output: map[string]any{"account_deleted": true}}, nil
}

// ReleaseAddressesStep releases every lease still held by the service.
// It is the critical teardown step: leaking address space is the one
// failure deprovisioning must not swallow.
type ReleaseAddressesStep struct {
	ipam  clients.IPAM
	store saga.Store
}

func NewReleaseAddressesStep(ipam clients.IPAM, store saga.Store) *ReleaseAddressesStep {
	return &ReleaseAddressesStep{ipam: ipam, store: store}
}

func (s *ReleaseAddressesStep) Execute(ctx context.Context, input model.InputData, wfctx model.Context) (*saga.StepResult, error) {
	svc, err := loadService(ctx, s.store, input)
	if err != nil {
		return nil, err
	}

	var result *multierror.Error
	released := 0
	for _, leaseID := range []*string{svc.IPv4LeaseID, svc.IPv6LeaseID, svc.IPv6PDLeaseID} {
		if leaseID == nil {
			continue
		}
		if err := s.ipam.Release(ctx, *leaseID); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		released++
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("release leases: %w", err)
	}

	svc.IPv4Address, svc.IPv4LeaseID = nil, nil
	svc.IPv6Address, svc.IPv6LeaseID = nil, nil
	svc.DelegatedPrefix, svc.IPv6PDLeaseID = nil, nil
	if err := saveService(ctx, s.store, svc); err != nil {
		return nil, err
	}
	return &saga.StepResult{Output: map[string]any{"leases_released": released}}, nil
}

func loadService(ctx context.Context, store saga.Store, input model.InputData) (*model.ProvisionedService, error) {
	in, err := model.DecodeDeprovisionInput(input)
	if err != nil {
		return nil, err
	}
	svc, err := store.GetService(ctx, in.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("load service %s: %w", in.ServiceID, err)
	}
	return svc, nil
}

func saveService(ctx context.Context, store saga.Store, svc *model.ProvisionedService) error {
	svc.UpdatedAt = time.Now().UTC()
	if err := store.UpdateService(ctx, svc); err != nil {
		return fmt.Errorf("update service %s: %w", svc.ID, err)
	}
	return nil
}
