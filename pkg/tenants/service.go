package tenants

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/taskhive/taskhive/pkg/audit"
	"github.com/taskhive/taskhive/pkg/notifications"
	"github.com/taskhive/taskhive/pkg/observability"
)

// Service manages the tenant lifecycle
type Service interface {
	CreateTenant(ctx context.Context, tenant *Tenant) error
	GetTenant(ctx context.Context, id int64) (*Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error)
	ListTenants(ctx context.Context, filter ListFilter) ([]*Tenant, error)

	Approve(ctx context.Context, actorID, tenantID int64, notes string) (*Tenant, error)
	Reject(ctx context.Context, actorID, tenantID int64, notes string) (*Tenant, error)
	Suspend(ctx context.Context, actorID, tenantID int64, notes string) (*Tenant, error)
	Reactivate(ctx context.Context, actorID, tenantID int64) (*Tenant, error)
}

const tenantColumns = `id, name, slug, company_name, company_email, status,
	       is_approved, approved_by, approved_at, notes, storage_bytes, created_at, updated_at`

// PostgresService implements the Service interface using PostgreSQL
type PostgresService struct {
	db         *sql.DB
	recorder   audit.Recorder
	dispatcher notifications.Dispatcher
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB, recorder audit.Recorder, dispatcher notifications.Dispatcher,
	logger *observability.Logger, metrics *observability.Metrics) *PostgresService {
	return &PostgresService{
		db:         db,
		recorder:   recorder,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
	}
}

// CreateTenant registers a new tenant in PENDING status
func (s *PostgresService) CreateTenant(ctx context.Context, tenant *Tenant) error {
	if tenant.Name == "" {
		return fmt.Errorf("tenant name is required")
	}
	if tenant.Slug == "" {
		tenant.Slug = generateSlug(tenant.Name)
	}
	tenant.Status = StatusPending
	tenant.IsApproved = false

	query := `
		INSERT INTO tenants (name, slug, company_name, company_email, status, is_approved, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		tenant.Name, tenant.Slug, tenant.CompanyName, tenant.CompanyEmail,
		tenant.Status, tenant.IsApproved, tenant.Notes,
	).Scan(&tenant.ID, &tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	s.record(ctx, &audit.Event{
		EventType:    audit.EventTypeTenantCreate,
		Status:       audit.EventStatusSuccess,
		TenantID:     &tenant.ID,
		ResourceType: audit.ResourceTypeTenant,
		ResourceID:   fmt.Sprintf("%d", tenant.ID),
		ToStatus:     string(StatusPending),
	})

	return nil
}

// GetTenant retrieves a tenant by ID
func (s *PostgresService) GetTenant(ctx context.Context, id int64) (*Tenant, error) {
	query := fmt.Sprintf("SELECT %s FROM tenants WHERE id = $1", tenantColumns)
	tenant, err := scanTenant(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return tenant, nil
}

// GetTenantBySlug retrieves a tenant by slug
func (s *PostgresService) GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error) {
	query := fmt.Sprintf("SELECT %s FROM tenants WHERE slug = $1", tenantColumns)
	tenant, err := scanTenant(s.db.QueryRowContext(ctx, query, slug))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Slug: slug}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return tenant, nil
}

// ListTenants lists tenants, optionally filtered by status
func (s *PostgresService) ListTenants(ctx context.Context, filter ListFilter) ([]*Tenant, error) {
	query := fmt.Sprintf("SELECT %s FROM tenants", tenantColumns)
	args := []interface{}{}
	argPos := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" WHERE status = $%d", argPos)
		args = append(args, filter.Status)
		argPos++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, filter.Limit)
		argPos++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argPos)
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	tenants := make([]*Tenant, 0)
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}

	return tenants, rows.Err()
}

// Approve moves a PENDING tenant to ACTIVE
func (s *PostgresService) Approve(ctx context.Context, actorID, tenantID int64, notes string) (*Tenant, error) {
	tenant, err := s.transition(ctx, actorID, tenantID, StatusActive, audit.EventTypeTenantApprove,
		func(tx *sql.Tx, t *Tenant) error {
			now := time.Now().UTC()
			_, err := tx.ExecContext(ctx, `
				UPDATE tenants
				SET status = $1, is_approved = true, approved_by = $2, approved_at = $3, notes = $4, updated_at = NOW()
				WHERE id = $5
			`, StatusActive, actorID, now, notes, t.ID)
			return err
		})
	if err != nil {
		return nil, err
	}

	notifications.Emit(ctx, s.dispatcher, s.logger, notifications.Notification{
		Type:     notifications.TypeTenantApproved,
		TenantID: tenant.ID,
		Title:    "Workspace approved",
		Body:     fmt.Sprintf("Workspace %s has been approved and is now active", tenant.Name),
	})

	return tenant, nil
}

// Reject moves a PENDING tenant to REJECTED. REJECTED is terminal.
func (s *PostgresService) Reject(ctx context.Context, actorID, tenantID int64, notes string) (*Tenant, error) {
	tenant, err := s.transition(ctx, actorID, tenantID, StatusRejected, audit.EventTypeTenantReject,
		func(tx *sql.Tx, t *Tenant) error {
			_, err := tx.ExecContext(ctx, `
				UPDATE tenants
				SET status = $1, is_approved = false, notes = $2, updated_at = NOW()
				WHERE id = $3
			`, StatusRejected, notes, t.ID)
			return err
		})
	if err != nil {
		return nil, err
	}

	notifications.Emit(ctx, s.dispatcher, s.logger, notifications.Notification{
		Type:     notifications.TypeTenantRejected,
		TenantID: tenant.ID,
		Title:    "Workspace application rejected",
		Body:     notes,
	})

	return tenant, nil
}

// Suspend moves an ACTIVE tenant to SUSPENDED
func (s *PostgresService) Suspend(ctx context.Context, actorID, tenantID int64, notes string) (*Tenant, error) {
	tenant, err := s.transition(ctx, actorID, tenantID, StatusSuspended, audit.EventTypeTenantSuspend,
		func(tx *sql.Tx, t *Tenant) error {
			_, err := tx.ExecContext(ctx, `
				UPDATE tenants SET status = $1, notes = $2, updated_at = NOW() WHERE id = $3
			`, StatusSuspended, notes, t.ID)
			return err
		})
	if err != nil {
		return nil, err
	}

	notifications.Emit(ctx, s.dispatcher, s.logger, notifications.Notification{
		Type:     notifications.TypeTenantSuspended,
		TenantID: tenant.ID,
		Title:    "Workspace suspended",
		Body:     notes,
	})

	return tenant, nil
}

// Reactivate moves a SUSPENDED tenant back to ACTIVE
func (s *PostgresService) Reactivate(ctx context.Context, actorID, tenantID int64) (*Tenant, error) {
	tenant, err := s.transition(ctx, actorID, tenantID, StatusActive, audit.EventTypeTenantReactivate,
		func(tx *sql.Tx, t *Tenant) error {
			_, err := tx.ExecContext(ctx, `
				UPDATE tenants SET status = $1, updated_at = NOW() WHERE id = $2
			`, StatusActive, t.ID)
			return err
		})
	if err != nil {
		return nil, err
	}

	notifications.Emit(ctx, s.dispatcher, s.logger, notifications.Notification{
		Type:     notifications.TypeTenantReactivated,
		TenantID: tenant.ID,
		Title:    "Workspace reactivated",
		Body:     fmt.Sprintf("Workspace %s is active again", tenant.Name),
	})

	return tenant, nil
}

// transition runs a lifecycle transition under a row lock. The current
// status is re-read inside the transaction so concurrent transitions
// serialize; the loser of the race sees the new status and is rejected
// by the state machine.
func (s *PostgresService) transition(ctx context.Context, actorID, tenantID int64, to Status,
	eventType audit.EventType, update func(tx *sql.Tx, t *Tenant) error) (*Tenant, error) {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf("SELECT %s FROM tenants WHERE id = $1 FOR UPDATE", tenantColumns)
	tenant, err := scanTenant(tx.QueryRowContext(ctx, query, tenantID))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{ID: tenantID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock tenant: %w", err)
	}

	from := tenant.Status
	if !CanTransition(from, to) {
		transitionErr := &InvalidTransitionError{TenantID: tenantID, From: from, To: to}
		s.record(ctx, &audit.Event{
			EventType:    eventType,
			Status:       audit.EventStatusDenied,
			ActorID:      &actorID,
			TenantID:     &tenantID,
			ResourceType: audit.ResourceTypeTenant,
			ResourceID:   fmt.Sprintf("%d", tenantID),
			FromStatus:   string(from),
			ToStatus:     string(to),
			ErrorMessage: transitionErr.Error(),
		})
		s.observe(to, "denied")
		return nil, transitionErr
	}

	if err := update(tx, tenant); err != nil {
		return nil, fmt.Errorf("failed to update tenant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transition: %w", err)
	}

	s.record(ctx, &audit.Event{
		EventType:    eventType,
		Status:       audit.EventStatusSuccess,
		ActorID:      &actorID,
		TenantID:     &tenantID,
		ResourceType: audit.ResourceTypeTenant,
		ResourceID:   fmt.Sprintf("%d", tenantID),
		FromStatus:   string(from),
		ToStatus:     string(to),
	})
	s.observe(to, "success")

	return s.GetTenant(ctx, tenantID)
}

// record writes an audit event, logging failures instead of propagating
// them
func (s *PostgresService) record(ctx context.Context, event *audit.Event) {
	if s.recorder == nil {
		return
	}
	event.RequestID = observability.GetRequestID(ctx)
	if err := s.recorder.Record(ctx, event); err != nil && s.logger != nil {
		s.logger.WithError(err).WithField("event_type", string(event.EventType)).
			Error("failed to record audit event")
	}
}

func (s *PostgresService) observe(to Status, outcome string) {
	if s.metrics != nil {
		s.metrics.TenantTransitionsTotal.WithLabelValues(string(to), outcome).Inc()
	}
}

// scanTenant scans a tenant from a database row
func scanTenant(scanner interface {
	Scan(dest ...interface{}) error
}) (*Tenant, error) {
	tenant := &Tenant{}
	var approvedBy sql.NullInt64
	var approvedAt sql.NullTime

	err := scanner.Scan(
		&tenant.ID, &tenant.Name, &tenant.Slug, &tenant.CompanyName, &tenant.CompanyEmail,
		&tenant.Status, &tenant.IsApproved, &approvedBy, &approvedAt, &tenant.Notes,
		&tenant.StorageBytes, &tenant.CreatedAt, &tenant.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if approvedBy.Valid {
		id := approvedBy.Int64
		tenant.ApprovedBy = &id
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		tenant.ApprovedAt = &t
	}

	return tenant, nil
}

// generateSlug derives a slug from a tenant name
func generateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	return slug
}
