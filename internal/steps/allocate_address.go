package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/edvin/provisioning/internal/clients"
	"github.com/edvin/provisioning/internal/model"
	"github.com/edvin/provisioning/internal/saga"
)

// AllocateAddressStep requests an IPv4 lease and, when enabled, an IPv6
// lease and/or a delegated IPv6 prefix from IPAM. Caller-supplied static
// addresses are used verbatim with empty compensation data, so nothing is
// ever released for them. Lease ids left on the service record by a prior
// attempt are reused instead of allocating twice.
type AllocateAddressStep struct {
	ipam  clients.IPAM
	store saga.Store
}

func NewAllocateAddressStep(ipam clients.IPAM, store saga.Store) *AllocateAddressStep {
	return &AllocateAddressStep{ipam: ipam, store: store}
}

func (s *AllocateAddressStep) Execute(ctx context.Context, input model.InputData, wfctx model.Context) (*saga.StepResult, error) {
	in, err := model.DecodeProvisionInput(input)
	if err != nil {
		return nil, err
	}
	serviceID, _ := input[InputServiceID].(string)
	svc, err := s.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("load service %s: %w", serviceID, err)
	}

	if in.StaticIPv4 != "" {
		return s.useStatic(ctx, in, svc)
	}

	if svc.IPv4LeaseID != nil {
		// A prior attempt already holds leases; reuse them.
		return s.reuseExisting(svc), nil
	}

	req := clients.AllocateRequest{
		IPv4PoolID:  in.IPv4PoolID,
		OwnerID:     in.SubscriberID,
		Description: "subscriber " + in.SubscriberID,
		DNSName:     in.DNSName,
		Tenant:      svc.TenantID,
	}
	if in.IPv6Enabled {
		req.IPv6PoolID = in.IPv6PoolID
	}
	if in.PDEnabled {
		req.IPv6PDParentPoolID = in.PDParentPoolID
		req.IPv6PDSize = in.PDSize
	}

	set, err := s.ipam.Allocate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("allocate addresses: %w", err)
	}
	if set.IPv4 == nil {
		return nil, fmt.Errorf("ipam returned no ipv4 lease for pool %s", in.IPv4PoolID)
	}

	res := &saga.StepResult{
		Output:           map[string]any{},
		ContextUpdates:   map[string]any{},
		CompensationData: map[string]any{compServiceID: svc.ID},
	}

	svc.IPv4Address = &set.IPv4.Address
	svc.IPv4LeaseID = &set.IPv4.ID
	res.Output[CtxIPv4Address] = set.IPv4.Address
	res.ContextUpdates[CtxIPv4Address] = set.IPv4.Address
	res.CompensationData[compIPv4LeaseID] = set.IPv4.ID

	if set.IPv6 != nil {
		svc.IPv6Address = &set.IPv6.Address
		svc.IPv6LeaseID = &set.IPv6.ID
		res.Output[CtxIPv6Address] = set.IPv6.Address
		res.ContextUpdates[CtxIPv6Address] = set.IPv6.Address
		res.CompensationData[compIPv6LeaseID] = set.IPv6.ID
	}
	if set.IPv6PD != nil {
		svc.DelegatedPrefix = &set.IPv6PD.Address
		svc.IPv6PDLeaseID = &set.IPv6PD.ID
		res.Output[CtxDelegatedPrefix] = set.IPv6PD.Address
		res.ContextUpdates[CtxDelegatedPrefix] = set.IPv6PD.Address
		res.CompensationData[compPDLeaseID] = set.IPv6PD.ID
	}

	if err := s.updateService(ctx, svc); err != nil {
		return nil, err
	}
	return res, nil
}

// useStatic records caller-supplied addresses on the service without any
// IPAM call. Compensation data stays empty: there is nothing to undo.
func (s *AllocateAddressStep) useStatic(ctx context.Context, in *model.ProvisionInput, svc *model.ProvisionedService) (*saga.StepResult, error) {
	res := &saga.StepResult{
		Output:         map[string]any{CtxIPv4Address: in.StaticIPv4},
		ContextUpdates: map[string]any{CtxIPv4Address: in.StaticIPv4},
	}
	svc.IPv4Address = &in.StaticIPv4
	if in.StaticIPv6 != "" {
		svc.IPv6Address = &in.StaticIPv6
		res.Output[CtxIPv6Address] = in.StaticIPv6
		res.ContextUpdates[CtxIPv6Address] = in.StaticIPv6
	}
	if err := s.updateService(ctx, svc); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *AllocateAddressStep) reuseExisting(svc *model.ProvisionedService) *saga.StepResult {
	res := &saga.StepResult{
		Output:           map[string]any{},
		ContextUpdates:   map[string]any{},
		CompensationData: map[string]any{compServiceID: svc.ID},
	}
	if svc.IPv4Address != nil {
		res.Output[CtxIPv4Address] = *svc.IPv4Address
		res.ContextUpdates[CtxIPv4Address] = *svc.IPv4Address
	}
	if svc.IPv4LeaseID != nil {
		res.CompensationData[compIPv4LeaseID] = *svc.IPv4LeaseID
	}
	if svc.IPv6Address != nil {
		res.Output[CtxIPv6Address] = *svc.IPv6Address
		res.ContextUpdates[CtxIPv6Address] = *svc.IPv6Address
	}
	if svc.IPv6LeaseID != nil {
		res.CompensationData[compIPv6LeaseID] = *svc.IPv6LeaseID
	}
	if svc.DelegatedPrefix != nil {
		res.Output[CtxDelegatedPrefix] = *svc.DelegatedPrefix
		res.ContextUpdates[CtxDelegatedPrefix] = *svc.DelegatedPrefix
	}
	if svc.IPv6PDLeaseID != nil {
		res.CompensationData[compPDLeaseID] = *svc.IPv6PDLeaseID
	}
	return res
}

func (s *AllocateAddressStep) updateService(ctx context.Context, svc *model.ProvisionedService) error {
	svc.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateService(ctx, svc); err != nil {
		return fmt.Errorf("update service %s: %w", svc.ID, err)
	}
	return nil
}

// AllocateAddressCompensator releases whichever of the IPv4, IPv6 and
// delegated-prefix leases were actually allocated, each independently.
// Empty compensation data (the static-address case) performs no calls.
type AllocateAddressCompensator struct {
	ipam   clients.IPAM
	store  saga.Store
	logger zerolog.Logger
}

func NewAllocateAddressCompensator(ipam clients.IPAM, store saga.Store, logger zerolog.Logger) *AllocateAddressCompensator {
	return &AllocateAddressCompensator{ipam: ipam, store: store, logger: logger}
}

func (c *AllocateAddressCompensator) Compensate(ctx context.Context, data map[string]any) error {
	var result *multierror.Error
	released := false

	for _, key := range []string{compIPv4LeaseID, compIPv6LeaseID, compPDLeaseID} {
		leaseID, ok := data[key].(string)
		if !ok || leaseID == "" {
			continue
		}
		if err := c.ipam.Release(ctx, leaseID); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		released = true
	}

	if released {
		c.clearServiceAddresses(ctx, data)
	}
	return result.ErrorOrNil()
}

func (c *AllocateAddressCompensator) clearServiceAddresses(ctx context.Context, data map[string]any) {
	serviceID, _ := data[compServiceID].(string)
	if serviceID == "" {
		return
	}
	svc, err := c.store.GetService(ctx, serviceID)
	if err != nil {
		c.logger.Warn().Err(err).Str("service_id", serviceID).Msg("clear addresses: load service")
		return
	}
	svc.IPv4Address, svc.IPv4LeaseID = nil, nil
	svc.IPv6Address, svc.IPv6LeaseID = nil, nil
	svc.DelegatedPrefix, svc.IPv6PDLeaseID = nil, nil
	svc.UpdatedAt = time.Now().UTC()
	if err := c.store.UpdateService(ctx, svc); err != nil {
		c.logger.Warn().Err(err).Str("service_id", serviceID).Msg("clear addresses: update service")
	}
}
