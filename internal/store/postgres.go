package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/edvin/provisioning/internal/model"
	"github.com/edvin/provisioning/internal/saga"
)

// DB is the subset of pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the production saga.Store over the workflow database.
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const workflowColumns = `id, tenant_id, service_id, workflow_type, status, input_data, context, steps,
	retry_count, max_retries, initiator, error_message, cancel_requested,
	created_at, started_at, completed_at, updated_at`

func (s *PostgresStore) CreateWorkflow(ctx context.Context, wf *model.WorkflowInstance) error {
	input, wfctx, steps, err := marshalWorkflowJSON(wf)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO workflow_instances (`+workflowColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		wf.ID, wf.TenantID, wf.ServiceID, wf.Type, wf.Status, input, wfctx, steps,
		wf.RetryCount, wf.MaxRetries, wf.Initiator, wf.ErrorMessage, wf.CancelRequested,
		wf.CreatedAt, wf.StartedAt, wf.CompletedAt, wf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert workflow %s: %w", wf.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetWorkflow(ctx context.Context, id string) (*model.WorkflowInstance, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+workflowColumns+` FROM workflow_instances WHERE id = $1`, id)
	wf, err := scanWorkflow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("workflow %s: %w", id, saga.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow %s: %w", id, err)
	}
	return wf, nil
}

func (s *PostgresStore) UpdateWorkflow(ctx context.Context, wf *model.WorkflowInstance) error {
	input, wfctx, steps, err := marshalWorkflowJSON(wf)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE workflow_instances
		 SET status = $1, input_data = $2, context = $3, steps = $4, retry_count = $5,
		     error_message = $6, cancel_requested = cancel_requested OR $7,
		     started_at = $8, completed_at = $9, updated_at = $10
		 WHERE id = $11`,
		wf.Status, input, wfctx, steps, wf.RetryCount,
		wf.ErrorMessage, wf.CancelRequested,
		wf.StartedAt, wf.CompletedAt, wf.UpdatedAt,
		wf.ID,
	)
	if err != nil {
		return fmt.Errorf("update workflow %s: %w", wf.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("workflow %s: %w", wf.ID, saga.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListWorkflows(ctx context.Context, filter saga.ListFilter) ([]model.WorkflowInstance, bool, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflow_instances WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.TenantID != "" {
		query += fmt.Sprintf(` AND tenant_id = $%d`, argIdx)
		args = append(args, filter.TenantID)
		argIdx++
	}
	if filter.Cursor != "" {
		query += fmt.Sprintf(` AND (created_at, id) > (SELECT created_at, id FROM workflow_instances WHERE id = $%d)`, argIdx)
		args = append(args, filter.Cursor)
		argIdx++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY created_at, id`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []model.WorkflowInstance
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, false, fmt.Errorf("scan workflow: %w", err)
		}
		workflows = append(workflows, *wf)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate workflows: %w", err)
	}

	hasMore := len(workflows) > limit
	if hasMore {
		workflows = workflows[:limit]
	}
	return workflows, hasMore, nil
}

func (s *PostgresStore) CountWorkflowsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.Query(ctx,
		`SELECT status, COUNT(*) FROM workflow_instances GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count workflows: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan workflow count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflow counts: %w", err)
	}
	return counts, nil
}

func (s *PostgresStore) RequestCancel(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE workflow_instances SET cancel_requested = true, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("request cancel of workflow %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("workflow %s: %w", id, saga.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ClearCancelRequest(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE workflow_instances SET cancel_requested = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("clear cancel flag of workflow %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("workflow %s: %w", id, saga.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) CancelRequested(ctx context.Context, id string) (bool, error) {
	var requested bool
	err := s.db.QueryRow(ctx,
		`SELECT cancel_requested FROM workflow_instances WHERE id = $1`, id).Scan(&requested)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("workflow %s: %w", id, saga.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("get cancel flag of workflow %s: %w", id, err)
	}
	return requested, nil
}

const serviceColumns = `id, tenant_id, subscriber_id, status,
	ipv4_address, ipv6_address, delegated_prefix, ipv4_lease_id, ipv6_lease_id, ipv6_pd_lease_id,
	vlan_id, inner_vlan_id, pon_device_ref, equipment_refs, external_device_id,
	username, credential_hash, rollback_reason, rollback_steps, rolled_back_at,
	created_at, updated_at`

func (s *PostgresStore) CreateService(ctx context.Context, svc *model.ProvisionedService) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO provisioned_services (`+serviceColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		svc.ID, svc.TenantID, svc.SubscriberID, svc.Status,
		svc.IPv4Address, svc.IPv6Address, svc.DelegatedPrefix, svc.IPv4LeaseID, svc.IPv6LeaseID, svc.IPv6PDLeaseID,
		svc.VLANID, svc.InnerVLANID, svc.PONDeviceRef, svc.EquipmentRefs, svc.ExternalDeviceID,
		svc.Username, svc.CredentialHash, svc.RollbackReason, svc.RollbackSteps, svc.RolledBackAt,
		svc.CreatedAt, svc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert service %s: %w", svc.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetService(ctx context.Context, id string) (*model.ProvisionedService, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+serviceColumns+` FROM provisioned_services WHERE id = $1`, id)
	svc, err := scanService(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("service %s: %w", id, saga.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get service %s: %w", id, err)
	}
	return svc, nil
}

func (s *PostgresStore) UpdateService(ctx context.Context, svc *model.ProvisionedService) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE provisioned_services
		 SET status = $1, ipv4_address = $2, ipv6_address = $3, delegated_prefix = $4,
		     ipv4_lease_id = $5, ipv6_lease_id = $6, ipv6_pd_lease_id = $7,
		     vlan_id = $8, inner_vlan_id = $9, pon_device_ref = $10, equipment_refs = $11,
		     external_device_id = $12, username = $13, credential_hash = $14,
		     rollback_reason = $15, rollback_steps = $16, rolled_back_at = $17, updated_at = $18
		 WHERE id = $19`,
		svc.Status, svc.IPv4Address, svc.IPv6Address, svc.DelegatedPrefix,
		svc.IPv4LeaseID, svc.IPv6LeaseID, svc.IPv6PDLeaseID,
		svc.VLANID, svc.InnerVLANID, svc.PONDeviceRef, svc.EquipmentRefs,
		svc.ExternalDeviceID, svc.Username, svc.CredentialHash,
		svc.RollbackReason, svc.RollbackSteps, svc.RolledBackAt, svc.UpdatedAt,
		svc.ID,
	)
	if err != nil {
		return fmt.Errorf("update service %s: %w", svc.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("service %s: %w", svc.ID, saga.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) LatestFailedWorkflowForService(ctx context.Context, serviceID string) (*model.WorkflowInstance, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+workflowColumns+` FROM workflow_instances
		 WHERE service_id = $1 AND status = $2
		 ORDER BY created_at DESC LIMIT 1`,
		serviceID, model.WorkflowFailed)
	wf, err := scanWorkflow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("no failed workflow for service %s: %w", serviceID, saga.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("latest failed workflow for service %s: %w", serviceID, err)
	}
	return wf, nil
}

func marshalWorkflowJSON(wf *model.WorkflowInstance) (input, wfctx, steps []byte, err error) {
	if input, err = json.Marshal(wf.InputData); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal input data: %w", err)
	}
	if wfctx, err = json.Marshal(wf.Context); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal context: %w", err)
	}
	if steps, err = json.Marshal(wf.Steps); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal steps: %w", err)
	}
	return input, wfctx, steps, nil
}

func scanWorkflow(row pgx.Row) (*model.WorkflowInstance, error) {
	var wf model.WorkflowInstance
	var input, wfctx, steps []byte
	err := row.Scan(&wf.ID, &wf.TenantID, &wf.ServiceID, &wf.Type, &wf.Status, &input, &wfctx, &steps,
		&wf.RetryCount, &wf.MaxRetries, &wf.Initiator, &wf.ErrorMessage, &wf.CancelRequested,
		&wf.CreatedAt, &wf.StartedAt, &wf.CompletedAt, &wf.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(input, &wf.InputData); err != nil {
		return nil, fmt.Errorf("unmarshal input data: %w", err)
	}
	if err := json.Unmarshal(wfctx, &wf.Context); err != nil {
		return nil, fmt.Errorf("unmarshal context: %w", err)
	}
	if err := json.Unmarshal(steps, &wf.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	return &wf, nil
}

func scanService(row pgx.Row) (*model.ProvisionedService, error) {
	var svc model.ProvisionedService
	err := row.Scan(&svc.ID, &svc.TenantID, &svc.SubscriberID, &svc.Status,
		&svc.IPv4Address, &svc.IPv6Address, &svc.DelegatedPrefix,
		&svc.IPv4LeaseID, &svc.IPv6LeaseID, &svc.IPv6PDLeaseID,
		&svc.VLANID, &svc.InnerVLANID, &svc.PONDeviceRef, &svc.EquipmentRefs, &svc.ExternalDeviceID,
		&svc.Username, &svc.CredentialHash, &svc.RollbackReason, &svc.RollbackSteps, &svc.RolledBackAt,
		&svc.CreatedAt, &svc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &svc, nil
}
