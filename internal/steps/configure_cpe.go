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

// ConfigureCPEStep pushes WAN configuration to the subscriber's equipment.
// When a delegated prefix is present in the context, prefix delegation is
// enabled on the device.
type ConfigureCPEStep struct {
	cpe   clients.CPE
	store saga.Store
}

func NewConfigureCPEStep(cpe clients.CPE, store saga.Store) *ConfigureCPEStep {
	return &ConfigureCPEStep{cpe: cpe, store: store}
}

func (s *ConfigureCPEStep) Execute(ctx context.Context, input model.InputData, wfctx model.Context) (*saga.StepResult, error) {
	in, err := model.DecodeProvisionInput(input)
	if err != nil {
		return nil, err
	}
	serviceID, _ := input[InputServiceID].(string)
	svc, err := s.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("load service %s: %w", serviceID, err)
	}

	prefix := wfctx.String(CtxDelegatedPrefix)
	configRef, err := s.cpe.ConfigureDevice(ctx, clients.ConfigureDeviceRequest{
		MAC:                     in.CPEMAC,
		WANIPv4:                 wfctx.String(CtxIPv4Address),
		WANIPv6:                 wfctx.String(CtxIPv6Address),
		DelegatedPrefix:         prefix,
		PrefixDelegationEnabled: prefix != "",
	})
	if err != nil {
		return nil, fmt.Errorf("configure customer device: %w", err)
	}

	svc.ExternalDeviceID = &configRef
	svc.EquipmentRefs = appendUnique(svc.EquipmentRefs, in.CPEMAC)
	svc.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateService(ctx, svc); err != nil {
		return nil, fmt.Errorf("update service %s: %w", svc.ID, err)
	}

	return &saga.StepResult{
		Output:         map[string]any{CtxCPEConfigRef: configRef},
		ContextUpdates: map[string]any{CtxCPEConfigRef: configRef},
		CompensationData: map[string]any{
			compServiceID:    svc.ID,
			compCPEConfigRef: configRef,
		},
	}, nil
}

// ConfigureCPECompensator removes the pushed device configuration.
type ConfigureCPECompensator struct {
	cpe    clients.CPE
	store  saga.Store
	logger zerolog.Logger
}

func NewConfigureCPECompensator(cpe clients.CPE, store saga.Store, logger zerolog.Logger) *ConfigureCPECompensator {
	return &ConfigureCPECompensator{cpe: cpe, store: store, logger: logger}
}

func (c *ConfigureCPECompensator) Compensate(ctx context.Context, data map[string]any) error {
	configRef, ok := data[compCPEConfigRef].(string)
	if !ok || configRef == "" {
		return nil
	}
	if err := c.cpe.RemoveDevice(ctx, configRef); err != nil {
		return err
	}

	if serviceID, _ := data[compServiceID].(string); serviceID != "" {
		svc, err := c.store.GetService(ctx, serviceID)
		if err != nil {
			c.logger.Warn().Err(err).Str("service_id", serviceID).Msg("clear device config: load service")
			return nil
		}
		svc.ExternalDeviceID = nil
		svc.UpdatedAt = time.Now().UTC()
		if err := c.store.UpdateService(ctx, svc); err != nil {
			c.logger.Warn().Err(err).Str("service_id", serviceID).Msg("clear device config: update service")
		}
	}
	return nil
}
