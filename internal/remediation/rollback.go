// Package remediation releases orphaned resources from provisioning
// attempts that already terminated as failed. It is an independent entry
// point: it inspects the resource-bearing service record, not in-flight
// step records, and never runs concurrently with a live coordinator run
// on the same instance.
package remediation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/provisioning/internal/clients"
	"github.com/edvin/provisioning/internal/metrics"
	"github.com/edvin/provisioning/internal/model"
	"github.com/edvin/provisioning/internal/saga"
)

// Rollback step names recorded on the service's rollback metadata.
const (
	StepAddressReleased        = "address_released"
	StepVLANReleased           = "vlan_released"
	StepEquipmentCleared       = "equipment_cleared"
	StepExternalServiceRemoved = "external_service_removed"
)

// Result describes what a rollback run released.
type Result struct {
	ServiceID  string   `json:"service_id"`
	WorkflowID string   `json:"workflow_id"`
	Steps      []string `json:"steps"`
}

// Remediator performs rollback of failed provisioning attempts.
type Remediator struct {
	store  saga.Store
	ipam   clients.IPAM
	pon    clients.PON
	cpe    clients.CPE
	logger zerolog.Logger
}

func NewRemediator(store saga.Store, ipam clients.IPAM, pon clients.PON, cpe clients.CPE, logger zerolog.Logger) *Remediator {
	return &Remediator{
		store:  store,
		ipam:   ipam,
		pon:    pon,
		cpe:    cpe,
		logger: logger.With().Str("component", "remediation").Logger(),
	}
}

// Rollback releases whatever resources are still attached to the service
// after its most recent failed workflow. Only populated fields generate a
// step. Release failures are logged and do not stop the remaining fields
// from being processed; the run is intended to be safe to re-invoke.
// Once no failed workflow remains (including after a completed rollback),
// it returns saga.ErrNoFailedWorkflow.
func (r *Remediator) Rollback(ctx context.Context, serviceID, tenantID, reason string) (*Result, error) {
	svc, err := r.store.GetService(ctx, serviceID)
	if err != nil {
		metrics.RemediationRollbacks.WithLabelValues("not_found").Inc()
		return nil, fmt.Errorf("load service %s: %w", serviceID, err)
	}
	if tenantID != "" && svc.TenantID != tenantID {
		metrics.RemediationRollbacks.WithLabelValues("not_found").Inc()
		return nil, fmt.Errorf("service %s in tenant %s: %w", serviceID, tenantID, saga.ErrNotFound)
	}

	wf, err := r.store.LatestFailedWorkflowForService(ctx, serviceID)
	if err != nil {
		metrics.RemediationRollbacks.WithLabelValues("no_failed_workflow").Inc()
		return nil, fmt.Errorf("service %s: %w", serviceID, saga.ErrNoFailedWorkflow)
	}

	logger := r.logger.With().
		Str("service_id", serviceID).
		Str("workflow_id", wf.ID).
		Logger()
	logger.Info().Str("reason", reason).Msg("remediation rollback started")

	var steps []string

	if svc.IPv4LeaseID != nil || svc.IPv6LeaseID != nil || svc.IPv6PDLeaseID != nil || svc.IPv4Address != nil {
		r.releaseAddresses(ctx, svc, logger)
		steps = append(steps, StepAddressReleased)
	}

	if svc.VLANID != nil {
		if svc.PONDeviceRef != nil {
			if err := r.pon.DeactivateDevice(ctx, *svc.PONDeviceRef); err != nil {
				logger.Warn().Err(err).Msg("deactivate device failed, clearing anyway")
			}
		}
		svc.VLANID, svc.InnerVLANID, svc.PONDeviceRef = nil, nil, nil
		steps = append(steps, StepVLANReleased)
	}

	if len(svc.EquipmentRefs) > 0 {
		svc.EquipmentRefs = nil
		steps = append(steps, StepEquipmentCleared)
	}

	if svc.ExternalDeviceID != nil {
		if err := r.cpe.RemoveDevice(ctx, *svc.ExternalDeviceID); err != nil {
			logger.Warn().Err(err).Msg("remove device config failed, clearing anyway")
		}
		svc.ExternalDeviceID = nil
		steps = append(steps, StepExternalServiceRemoved)
	}

	now := time.Now().UTC()
	svc.Status = model.ServiceRolledBack
	svc.RollbackReason = &reason
	svc.RollbackSteps = steps
	svc.RolledBackAt = &now
	svc.UpdatedAt = now
	if err := r.store.UpdateService(ctx, svc); err != nil {
		metrics.RemediationRollbacks.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("update service %s: %w", serviceID, err)
	}

	wf.Status = model.WorkflowRolledBack
	wf.UpdatedAt = now
	if err := r.store.UpdateWorkflow(ctx, wf); err != nil {
		metrics.RemediationRollbacks.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("update workflow %s: %w", wf.ID, err)
	}

	metrics.RemediationRollbacks.WithLabelValues("ok").Inc()
	logger.Info().Strs("steps", steps).Msg("remediation rollback completed")
	return &Result{ServiceID: serviceID, WorkflowID: wf.ID, Steps: steps}, nil
}

// releaseAddresses releases every lease still held and clears the address
// fields. Individual release failures are logged; a lease the IPAM system
// no longer knows counts as released.
func (r *Remediator) releaseAddresses(ctx context.Context, svc *model.ProvisionedService, logger zerolog.Logger) {
	for _, leaseID := range []*string{svc.IPv4LeaseID, svc.IPv6LeaseID, svc.IPv6PDLeaseID} {
		if leaseID == nil {
			continue
		}
		if err := r.ipam.Release(ctx, *leaseID); err != nil {
			logger.Warn().Err(err).Str("lease_id", *leaseID).Msg("release lease failed, clearing anyway")
		}
	}
	svc.IPv4Address, svc.IPv4LeaseID = nil, nil
	svc.IPv6Address, svc.IPv6LeaseID = nil, nil
	svc.DelegatedPrefix, svc.IPv6PDLeaseID = nil, nil
}
