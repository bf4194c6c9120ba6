package limits

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/taskhive/taskhive/pkg/observability"
	"github.com/taskhive/taskhive/pkg/plans"
)

const bytesPerGB = int64(1024 * 1024 * 1024)

// Enforcer evaluates usage limits for tenants
type Enforcer struct {
	db      *sql.DB
	metrics *observability.Metrics
}

// NewEnforcer creates a limit enforcer
func NewEnforcer(db *sql.DB, metrics *observability.Metrics) *Enforcer {
	return &Enforcer{db: db, metrics: metrics}
}

// Check evaluates a limit without reserving anything. It runs in its own
// read-only transaction, so the answer may be stale by the time the
// caller acts on it; use CheckAndReserve for atomic create paths.
func (e *Enforcer) Check(ctx context.Context, tenantID int64, resource Resource) (*Decision, error) {
	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	return e.evaluate(ctx, tx, tenantID, resource, false)
}

// CheckAndReserve evaluates a limit inside the caller's transaction with
// the tenant row locked. The caller performs the insert in the same
// transaction; the lock serializes concurrent creates so at most one of
// two racing requests can take the last slot.
func (e *Enforcer) CheckAndReserve(ctx context.Context, tx *sql.Tx, tenantID int64, resource Resource) error {
	decision, err := e.evaluate(ctx, tx, tenantID, resource, true)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return &LimitExceededError{
			TenantID: tenantID,
			Resource: resource,
			Current:  decision.Current,
			Limit:    decision.Limit,
			Reason:   decision.Reason,
		}
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (e *Enforcer) evaluate(ctx context.Context, tx *sql.Tx, tenantID int64, resource Resource, lock bool) (*Decision, error) {
	e.observeCheck(resource)

	tenantQuery := `SELECT status, storage_bytes FROM tenants WHERE id = $1`
	if lock {
		tenantQuery += " FOR UPDATE"
	}

	var status string
	var storageBytes int64
	err := tx.QueryRowContext(ctx, tenantQuery, tenantID).Scan(&status, &storageBytes)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("tenant %d not found", tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}

	if status != "ACTIVE" {
		e.observeDenial(resource, ReasonTenantNotActive)
		return &Decision{Allowed: false, Reason: ReasonTenantNotActive}, nil
	}

	limit, hasPlan, err := e.effectiveLimit(ctx, tx, tenantID, resource)
	if err != nil {
		return nil, err
	}

	if limit == plans.UnlimitedSentinel {
		return &Decision{Allowed: true, Current: 0, Limit: int64(limit)}, nil
	}

	current, err := e.currentUsage(ctx, tx, tenantID, resource, storageBytes)
	if err != nil {
		return nil, err
	}

	effectiveLimit := int64(limit)
	if resource == ResourceStorage {
		effectiveLimit = int64(limit) * bytesPerGB
	}

	if current >= effectiveLimit {
		reason := ReasonLimitReached
		if !hasPlan {
			reason = ReasonNoActivePlan
		}
		e.observeDenial(resource, reason)
		return &Decision{Allowed: false, Reason: reason, Current: current, Limit: effectiveLimit}, nil
	}

	return &Decision{Allowed: true, Current: current, Limit: effectiveLimit}, nil
}

// effectiveLimit resolves the limit for a resource from the tenant's live
// subscription. Tenants without one get zero limits.
func (e *Enforcer) effectiveLimit(ctx context.Context, q querier, tenantID int64, resource Resource) (int, bool, error) {
	column, err := limitColumn(resource)
	if err != nil {
		return 0, false, err
	}

	query := fmt.Sprintf(`
		SELECT p.%s
		FROM subscriptions s
		JOIN plans p ON s.plan_id = p.id
		WHERE s.tenant_id = $1 AND s.status IN ('TRIAL', 'ACTIVE')
		ORDER BY s.created_at DESC
		LIMIT 1
	`, column)

	var limit int
	err = q.QueryRowContext(ctx, query, tenantID).Scan(&limit)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to resolve limit: %w", err)
	}

	return limit, true, nil
}

func (e *Enforcer) currentUsage(ctx context.Context, q querier, tenantID int64, resource Resource, storageBytes int64) (int64, error) {
	var query string
	switch resource {
	case ResourceUser:
		query = `SELECT COUNT(*) FROM users WHERE tenant_id = $1 AND is_active = true`
	case ResourceTeam:
		query = `SELECT COUNT(*) FROM teams WHERE tenant_id = $1`
	case ResourceProject:
		query = `SELECT COUNT(*) FROM projects WHERE tenant_id = $1 AND status <> 'ARCHIVED'`
	case ResourceStorage:
		return storageBytes, nil
	default:
		return 0, fmt.Errorf("unknown resource: %s", resource)
	}

	var count int64
	if err := q.QueryRowContext(ctx, query, tenantID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s usage: %w", resource, err)
	}
	return count, nil
}

func limitColumn(resource Resource) (string, error) {
	switch resource {
	case ResourceUser:
		return "max_users", nil
	case ResourceTeam:
		return "max_teams", nil
	case ResourceProject:
		return "max_projects", nil
	case ResourceStorage:
		return "max_storage_gb", nil
	default:
		return "", fmt.Errorf("unknown resource: %s", resource)
	}
}

func (e *Enforcer) observeCheck(resource Resource) {
	if e.metrics != nil {
		e.metrics.LimitChecksTotal.WithLabelValues(string(resource)).Inc()
	}
}

func (e *Enforcer) observeDenial(resource Resource, reason string) {
	if e.metrics != nil {
		e.metrics.LimitDenialsTotal.WithLabelValues(string(resource), reason).Inc()
	}
}
