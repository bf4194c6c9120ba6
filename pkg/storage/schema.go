package storage

import (
	"database/sql"
	"fmt"
)

// EnsureSchema creates all control-plane tables if they do not exist. The
// audit_events table is owned by pkg/audit and bootstrapped there.
func EnsureSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			email VARCHAR(255) NOT NULL UNIQUE,
			full_name VARCHAR(255) NOT NULL,
			role VARCHAR(20) NOT NULL DEFAULT 'MEMBER',
			tenant_id BIGINT,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_tenant ON users(tenant_id, role)`,

		`CREATE TABLE IF NOT EXISTS plans (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			slug VARCHAR(100) NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			price_cents BIGINT NOT NULL,
			currency VARCHAR(3) NOT NULL DEFAULT 'USD',
			billing_interval VARCHAR(20) NOT NULL DEFAULT 'MONTHLY',
			max_users INTEGER NOT NULL,
			max_teams INTEGER NOT NULL,
			max_projects INTEGER NOT NULL,
			max_storage_gb INTEGER NOT NULL,
			advanced_reports BOOLEAN NOT NULL DEFAULT FALSE,
			priority_support BOOLEAN NOT NULL DEFAULT FALSE,
			api_access BOOLEAN NOT NULL DEFAULT FALSE,
			custom_branding BOOLEAN NOT NULL DEFAULT FALSE,
			sso BOOLEAN NOT NULL DEFAULT FALSE,
			audit_logs BOOLEAN NOT NULL DEFAULT FALSE,
			trial_days INTEGER NOT NULL DEFAULT 14,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			sort_order INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS tenants (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			slug VARCHAR(100) NOT NULL UNIQUE,
			company_name VARCHAR(255) NOT NULL DEFAULT '',
			company_email VARCHAR(255) NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
			is_approved BOOLEAN NOT NULL DEFAULT FALSE,
			approved_by BIGINT,
			approved_at TIMESTAMP WITH TIME ZONE,
			notes TEXT NOT NULL DEFAULT '',
			storage_bytes BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tenants_status ON tenants(status)`,

		`CREATE TABLE IF NOT EXISTS subscriptions (
			id BIGSERIAL PRIMARY KEY,
			tenant_id BIGINT NOT NULL REFERENCES tenants(id),
			plan_id BIGINT NOT NULL REFERENCES plans(id),
			status VARCHAR(20) NOT NULL DEFAULT 'TRIAL',
			current_period_start TIMESTAMP WITH TIME ZONE NOT NULL,
			current_period_end TIMESTAMP WITH TIME ZONE NOT NULL,
			auto_renew BOOLEAN NOT NULL DEFAULT TRUE,
			cancelled_at TIMESTAMP WITH TIME ZONE,
			trial_start TIMESTAMP WITH TIME ZONE,
			trial_end TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_tenant_status ON subscriptions(tenant_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_period_end ON subscriptions(current_period_end)`,
		// Backstop for the one-live-subscription invariant enforced in the service
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_subscriptions_tenant_live
			ON subscriptions(tenant_id) WHERE status IN ('TRIAL', 'ACTIVE')`,

		`CREATE TABLE IF NOT EXISTS payments (
			id BIGSERIAL PRIMARY KEY,
			subscription_id BIGINT NOT NULL REFERENCES subscriptions(id),
			tenant_id BIGINT NOT NULL REFERENCES tenants(id),
			reference VARCHAR(64) NOT NULL UNIQUE,
			amount_cents BIGINT NOT NULL,
			currency VARCHAR(3) NOT NULL DEFAULT 'USD',
			method VARCHAR(20) NOT NULL,
			proof_ref TEXT NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
			verification_status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
			verified_by BIGINT,
			verified_at TIMESTAMP WITH TIME ZONE,
			verification_notes TEXT NOT NULL DEFAULT '',
			paid_at TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_subscription ON payments(subscription_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_verification ON payments(verification_status)`,

		`CREATE TABLE IF NOT EXISTS invoices (
			id BIGSERIAL PRIMARY KEY,
			subscription_id BIGINT NOT NULL REFERENCES subscriptions(id),
			tenant_id BIGINT NOT NULL REFERENCES tenants(id),
			invoice_number VARCHAR(50) NOT NULL UNIQUE,
			kind VARCHAR(20) NOT NULL DEFAULT 'SUBSCRIPTION',
			status VARCHAR(20) NOT NULL DEFAULT 'OPEN',
			subtotal_cents BIGINT NOT NULL,
			tax_rate NUMERIC(5,2) NOT NULL DEFAULT 0,
			tax_cents BIGINT NOT NULL DEFAULT 0,
			discount_cents BIGINT NOT NULL DEFAULT 0,
			total_cents BIGINT NOT NULL,
			currency VARCHAR(3) NOT NULL DEFAULT 'USD',
			issue_date TIMESTAMP WITH TIME ZONE NOT NULL,
			due_date TIMESTAMP WITH TIME ZONE NOT NULL,
			paid_at TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_tenant_status ON invoices(tenant_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_due_date ON invoices(due_date)`,

		`CREATE TABLE IF NOT EXISTS invoice_items (
			id BIGSERIAL PRIMARY KEY,
			invoice_id BIGINT NOT NULL REFERENCES invoices(id),
			description VARCHAR(255) NOT NULL,
			quantity INTEGER NOT NULL DEFAULT 1,
			unit_price_cents BIGINT NOT NULL,
			amount_cents BIGINT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS teams (
			id BIGSERIAL PRIMARY KEY,
			tenant_id BIGINT NOT NULL REFERENCES tenants(id),
			name VARCHAR(255) NOT NULL,
			slug VARCHAR(100) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			owner_id BIGINT NOT NULL,
			members_count INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			UNIQUE (tenant_id, slug)
		)`,

		`CREATE TABLE IF NOT EXISTS team_members (
			id BIGSERIAL PRIMARY KEY,
			team_id BIGINT NOT NULL REFERENCES teams(id),
			user_id BIGINT NOT NULL REFERENCES users(id),
			role VARCHAR(20) NOT NULL DEFAULT 'MEMBER',
			invited_by BIGINT,
			joined_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			UNIQUE (team_id, user_id)
		)`,

		`CREATE TABLE IF NOT EXISTS projects (
			id BIGSERIAL PRIMARY KEY,
			tenant_id BIGINT NOT NULL REFERENCES tenants(id),
			name VARCHAR(255) NOT NULL,
			slug VARCHAR(100) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL DEFAULT 'ACTIVE',
			created_by BIGINT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			UNIQUE (tenant_id, slug)
		)`,

		`CREATE TABLE IF NOT EXISTS tasks (
			id BIGSERIAL PRIMARY KEY,
			project_id BIGINT NOT NULL REFERENCES projects(id),
			tenant_id BIGINT NOT NULL REFERENCES tenants(id),
			title VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL DEFAULT 'TODO',
			priority VARCHAR(20) NOT NULL DEFAULT 'MEDIUM',
			assignee_id BIGINT,
			due_date TIMESTAMP WITH TIME ZONE,
			created_by BIGINT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_assignee ON tasks(assignee_id)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	return nil
}
