package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/provisioning/internal/clients"
	"github.com/edvin/provisioning/internal/model"
	"github.com/edvin/provisioning/internal/platform"
	"github.com/edvin/provisioning/internal/saga"
)

// Step names. These are the identifiers recorded on step records and
// matched by the compensation manager.
const (
	StepAllocateAddress = "allocate-address"
	StepCreateAAA       = "create-aaa-account"
	StepActivateDevice  = "activate-network-device"
	StepConfigureCPE    = "configure-customer-device"
	StepRecordAudit     = "record-provision-audit"

	StepRemoveCPEConfig  = "remove-cpe-config"
	StepDeactivateDevice = "deactivate-network-device"
	StepDeleteAAA        = "delete-aaa-account"
	StepReleaseAddresses = "release-addresses"
)

// Dependencies bundles everything the step handlers need.
type Dependencies struct {
	Store    saga.Store
	IPAM     clients.IPAM
	AAA      clients.AAA
	PON      clients.PON
	CPE      clients.CPE
	Archiver Archiver
	Logger   zerolog.Logger
}

// Register populates the registry with every workflow definition. Called
// once at process start.
func Register(r *saga.Registry, deps Dependencies) {
	r.Register(ProvisionDefinition(deps))
	r.Register(DeprovisionDefinition(deps))
}

// ProvisionDefinition is the provision-subscriber workflow: allocate
// addresses, create the AAA account, activate the ONU, configure the CPE,
// then record a best-effort audit trail.
func ProvisionDefinition(deps Dependencies) *saga.Definition {
	def := &saga.Definition{
		Type: model.WorkflowTypeProvisionSubscriber,
		ValidateInput: func(input model.InputData) error {
			_, err := model.DecodeProvisionInput(input)
			return err
		},
		Prepare: func(ctx context.Context, tenantID string, input model.InputData) (string, error) {
			in, err := model.DecodeProvisionInput(input)
			if err != nil {
				return "", err
			}
			now := time.Now().UTC()
			svc := &model.ProvisionedService{
				ID:           platform.NewName("svc_"),
				TenantID:     tenantID,
				SubscriberID: in.SubscriberID,
				Status:       model.ServicePending,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := deps.Store.CreateService(ctx, svc); err != nil {
				return "", fmt.Errorf("create service record: %w", err)
			}
			return svc.ID, nil
		},
		Steps: []saga.StepSpec{
			{
				Name:        StepAllocateAddress,
				Critical:    true,
				Handler:     NewAllocateAddressStep(deps.IPAM, deps.Store),
				Compensator: NewAllocateAddressCompensator(deps.IPAM, deps.Store, deps.Logger),
			},
			{
				Name:        StepCreateAAA,
				Critical:    true,
				Handler:     NewCreateAAAAccountStep(deps.AAA, deps.Store),
				Compensator: NewCreateAAAAccountCompensator(deps.AAA),
			},
			{
				Name:        StepActivateDevice,
				Critical:    true,
				Handler:     NewActivateDeviceStep(deps.PON, deps.Store),
				Compensator: NewActivateDeviceCompensator(deps.PON, deps.Store, deps.Logger),
			},
			{
				Name:        StepConfigureCPE,
				Critical:    true,
				Handler:     NewConfigureCPEStep(deps.CPE, deps.Store),
				Compensator: NewConfigureCPECompensator(deps.CPE, deps.Store, deps.Logger),
			},
		},
	}

	if deps.Archiver != nil {
		def.Steps = append(def.Steps, saga.StepSpec{
			Name:     StepRecordAudit,
			Critical: false,
			Handler:  NewRecordAuditStep(deps.Archiver, deps.Store),
		})
	}
	return def
}

// DeprovisionDefinition is the deprovision-subscriber workflow: tear the
// service down outside-in. Only the address release is critical; a device
// that is already gone must not block reclaiming address space.
func DeprovisionDefinition(deps Dependencies) *saga.Definition {
	return &saga.Definition{
		Type: model.WorkflowTypeDeprovisionSubscriber,
		ValidateInput: func(input model.InputData) error {
			_, err := model.DecodeDeprovisionInput(input)
			return err
		},
		Prepare: func(ctx context.Context, tenantID string, input model.InputData) (string, error) {
			in, err := model.DecodeDeprovisionInput(input)
			if err != nil {
				return "", err
			}
			if _, err := deps.Store.GetService(ctx, in.ServiceID); err != nil {
				return "", fmt.Errorf("load service %s: %w", in.ServiceID, err)
			}
			return in.ServiceID, nil
		},
		Steps: []saga.StepSpec{
			{Name: StepRemoveCPEConfig, Critical: false, Handler: NewRemoveCPEConfigStep(deps.CPE, deps.Store)},
			{Name: StepDeactivateDevice, Critical: false, Handler: NewDeactivateDeviceStep(deps.PON, deps.Store)},
			{Name: StepDeleteAAA, Critical: false, Handler: NewDeleteAAAAccountStep(deps.AAA, deps.Store)},
			{Name: StepReleaseAddresses, Critical: true, Handler: NewReleaseAddressesStep(deps.IPAM, deps.Store)},
		},
	}
}
