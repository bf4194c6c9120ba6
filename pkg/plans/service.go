package plans

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Service manages the plan catalog
type Service interface {
	CreatePlan(ctx context.Context, plan *Plan) error
	GetPlan(ctx context.Context, id int64) (*Plan, error)
	GetPlanBySlug(ctx context.Context, slug string) (*Plan, error)
	ListPlans(ctx context.Context, activeOnly bool) ([]*Plan, error)
	UpdatePlan(ctx context.Context, plan *Plan) error
	DeactivatePlan(ctx context.Context, id int64) error
	SeedDefaults(ctx context.Context) error
}

const planColumns = `id, name, slug, description, price_cents, currency, billing_interval,
	       max_users, max_teams, max_projects, max_storage_gb,
	       advanced_reports, priority_support, api_access, custom_branding, sso, audit_logs,
	       trial_days, is_active, sort_order, created_at, updated_at`

// PostgresService implements the Service interface using PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

// CreatePlan creates a new plan
func (s *PostgresService) CreatePlan(ctx context.Context, plan *Plan) error {
	if plan.Slug == "" {
		plan.Slug = generateSlug(plan.Name)
	}
	if plan.Currency == "" {
		plan.Currency = "USD"
	}
	if plan.Interval == "" {
		plan.Interval = IntervalMonthly
	}
	if !plan.Interval.IsValid() {
		return fmt.Errorf("invalid billing interval: %s", plan.Interval)
	}
	plan.IsActive = true

	query := `
		INSERT INTO plans (name, slug, description, price_cents, currency, billing_interval,
		                   max_users, max_teams, max_projects, max_storage_gb,
		                   advanced_reports, priority_support, api_access, custom_branding, sso, audit_logs,
		                   trial_days, is_active, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		plan.Name, plan.Slug, plan.Description, plan.PriceCents, plan.Currency, plan.Interval,
		plan.Limits.MaxUsers, plan.Limits.MaxTeams, plan.Limits.MaxProjects, plan.Limits.MaxStorageGB,
		plan.Features.AdvancedReports, plan.Features.PrioritySupport, plan.Features.APIAccess,
		plan.Features.CustomBranding, plan.Features.SSO, plan.Features.AuditLogs,
		plan.TrialDays, plan.IsActive, plan.SortOrder,
	).Scan(&plan.ID, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}

	return nil
}

// GetPlan retrieves a plan by ID
func (s *PostgresService) GetPlan(ctx context.Context, id int64) (*Plan, error) {
	query := fmt.Sprintf("SELECT %s FROM plans WHERE id = $1", planColumns)
	plan, err := scanPlan(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return plan, nil
}

// GetPlanBySlug retrieves a plan by slug
func (s *PostgresService) GetPlanBySlug(ctx context.Context, slug string) (*Plan, error) {
	query := fmt.Sprintf("SELECT %s FROM plans WHERE slug = $1", planColumns)
	plan, err := scanPlan(s.db.QueryRowContext(ctx, query, slug))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Slug: slug}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return plan, nil
}

// ListPlans lists plans ordered by sort order
func (s *PostgresService) ListPlans(ctx context.Context, activeOnly bool) ([]*Plan, error) {
	query := fmt.Sprintf("SELECT %s FROM plans", planColumns)
	if activeOnly {
		query += " WHERE is_active = true"
	}
	query += " ORDER BY sort_order, id"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	plans := make([]*Plan, 0)
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, plan)
	}

	return plans, rows.Err()
}

// UpdatePlan updates an existing plan's pricing, limits and features
func (s *PostgresService) UpdatePlan(ctx context.Context, plan *Plan) error {
	if !plan.Interval.IsValid() {
		return fmt.Errorf("invalid billing interval: %s", plan.Interval)
	}

	query := `
		UPDATE plans
		SET name = $1, description = $2, price_cents = $3, currency = $4, billing_interval = $5,
		    max_users = $6, max_teams = $7, max_projects = $8, max_storage_gb = $9,
		    advanced_reports = $10, priority_support = $11, api_access = $12,
		    custom_branding = $13, sso = $14, audit_logs = $15,
		    trial_days = $16, sort_order = $17, updated_at = NOW()
		WHERE id = $18
	`
	result, err := s.db.ExecContext(ctx, query,
		plan.Name, plan.Description, plan.PriceCents, plan.Currency, plan.Interval,
		plan.Limits.MaxUsers, plan.Limits.MaxTeams, plan.Limits.MaxProjects, plan.Limits.MaxStorageGB,
		plan.Features.AdvancedReports, plan.Features.PrioritySupport, plan.Features.APIAccess,
		plan.Features.CustomBranding, plan.Features.SSO, plan.Features.AuditLogs,
		plan.TrialDays, plan.SortOrder, plan.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &NotFoundError{ID: plan.ID}
	}

	return nil
}

// DeactivatePlan removes a plan from the catalog without touching
// subscriptions already on it
func (s *PostgresService) DeactivatePlan(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `UPDATE plans SET is_active = false, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate plan: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &NotFoundError{ID: id}
	}

	return nil
}

// SeedDefaults inserts the default plan catalog, skipping slugs that
// already exist
func (s *PostgresService) SeedDefaults(ctx context.Context) error {
	for _, plan := range DefaultPlans() {
		query := `
			INSERT INTO plans (name, slug, description, price_cents, currency, billing_interval,
			                   max_users, max_teams, max_projects, max_storage_gb,
			                   advanced_reports, priority_support, api_access, custom_branding, sso, audit_logs,
			                   trial_days, is_active, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
			ON CONFLICT (slug) DO NOTHING
		`
		_, err := s.db.ExecContext(ctx, query,
			plan.Name, plan.Slug, plan.Description, plan.PriceCents, plan.Currency, plan.Interval,
			plan.Limits.MaxUsers, plan.Limits.MaxTeams, plan.Limits.MaxProjects, plan.Limits.MaxStorageGB,
			plan.Features.AdvancedReports, plan.Features.PrioritySupport, plan.Features.APIAccess,
			plan.Features.CustomBranding, plan.Features.SSO, plan.Features.AuditLogs,
			plan.TrialDays, true, plan.SortOrder,
		)
		if err != nil {
			return fmt.Errorf("failed to seed plan %s: %w", plan.Slug, err)
		}
	}

	return nil
}

// DefaultPlans returns the built-in plan catalog
func DefaultPlans() []*Plan {
	return []*Plan{
		{
			Name:        "Starter",
			Slug:        "starter",
			Description: "For small teams getting started",
			PriceCents:  0,
			Currency:    "USD",
			Interval:    IntervalMonthly,
			Limits:      Limits{MaxUsers: 5, MaxTeams: 1, MaxProjects: 3, MaxStorageGB: 1},
			TrialDays:   0,
			SortOrder:   1,
		},
		{
			Name:        "Team",
			Slug:        "team",
			Description: "For growing teams",
			PriceCents:  2900,
			Currency:    "USD",
			Interval:    IntervalMonthly,
			Limits:      Limits{MaxUsers: 25, MaxTeams: 5, MaxProjects: 20, MaxStorageGB: 25},
			Features:    Features{AdvancedReports: true, APIAccess: true},
			TrialDays:   14,
			SortOrder:   2,
		},
		{
			Name:        "Business",
			Slug:        "business",
			Description: "For larger organizations",
			PriceCents:  9900,
			Currency:    "USD",
			Interval:    IntervalMonthly,
			Limits:      Limits{MaxUsers: 100, MaxTeams: 20, MaxProjects: 100, MaxStorageGB: 100},
			Features: Features{
				AdvancedReports: true, PrioritySupport: true, APIAccess: true,
				CustomBranding: true, AuditLogs: true,
			},
			TrialDays: 14,
			SortOrder: 3,
		},
		{
			Name:        "Enterprise",
			Slug:        "enterprise",
			Description: "Unlimited usage with SSO and priority support",
			PriceCents:  29900,
			Currency:    "USD",
			Interval:    IntervalMonthly,
			Limits: Limits{
				MaxUsers: UnlimitedSentinel, MaxTeams: UnlimitedSentinel,
				MaxProjects: UnlimitedSentinel, MaxStorageGB: UnlimitedSentinel,
			},
			Features: Features{
				AdvancedReports: true, PrioritySupport: true, APIAccess: true,
				CustomBranding: true, SSO: true, AuditLogs: true,
			},
			TrialDays: 30,
			SortOrder: 4,
		},
	}
}

// scanPlan scans a plan from a database row
func scanPlan(scanner interface {
	Scan(dest ...interface{}) error
}) (*Plan, error) {
	plan := &Plan{}
	err := scanner.Scan(
		&plan.ID, &plan.Name, &plan.Slug, &plan.Description,
		&plan.PriceCents, &plan.Currency, &plan.Interval,
		&plan.Limits.MaxUsers, &plan.Limits.MaxTeams, &plan.Limits.MaxProjects, &plan.Limits.MaxStorageGB,
		&plan.Features.AdvancedReports, &plan.Features.PrioritySupport, &plan.Features.APIAccess,
		&plan.Features.CustomBranding, &plan.Features.SSO, &plan.Features.AuditLogs,
		&plan.TrialDays, &plan.IsActive, &plan.SortOrder,
		&plan.CreatedAt, &plan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// generateSlug derives a slug from a plan name
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
