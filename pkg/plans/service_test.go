package plans

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*PostgresService, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresService(db), mock
}

func planRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "slug", "description", "price_cents", "currency", "billing_interval",
		"max_users", "max_teams", "max_projects", "max_storage_gb",
		"advanced_reports", "priority_support", "api_access", "custom_branding", "sso", "audit_logs",
		"trial_days", "is_active", "sort_order", "created_at", "updated_at",
	})
}

func TestCreatePlan(t *testing.T) {
	service, mock := newService(t)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO plans").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(1, now, now))

	plan := &Plan{
		Name:       "Team Plus",
		PriceCents: 4900,
		Limits:     Limits{MaxUsers: 50, MaxTeams: 10, MaxProjects: 50, MaxStorageGB: 50},
	}
	require.NoError(t, service.CreatePlan(context.Background(), plan))

	assert.Equal(t, int64(1), plan.ID)
	assert.Equal(t, "team-plus", plan.Slug)
	assert.Equal(t, "USD", plan.Currency)
	assert.Equal(t, IntervalMonthly, plan.Interval)
	assert.True(t, plan.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePlanRejectsBadInterval(t *testing.T) {
	service, _ := newService(t)

	err := service.CreatePlan(context.Background(), &Plan{Name: "Weekly", Interval: BillingInterval("WEEKLY")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid billing interval")
}

func TestGetPlanNotFound(t *testing.T) {
	service, mock := newService(t)

	mock.ExpectQuery("SELECT (.+) FROM plans WHERE id").
		WithArgs(int64(99)).
		WillReturnRows(planRows())

	_, err := service.GetPlan(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestGetPlanBySlug(t *testing.T) {
	service, mock := newService(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM plans WHERE slug").
		WithArgs("enterprise").
		WillReturnRows(planRows().AddRow(
			4, "Enterprise", "enterprise", "Unlimited", int64(29900), "USD", "MONTHLY",
			-1, -1, -1, -1,
			true, true, true, true, true, true,
			30, true, 4, now, now,
		))

	plan, err := service.GetPlanBySlug(context.Background(), "enterprise")
	require.NoError(t, err)
	assert.Equal(t, UnlimitedSentinel, plan.Limits.MaxUsers)
	assert.True(t, plan.Features.SSO)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListPlansActiveOnly(t *testing.T) {
	service, mock := newService(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM plans WHERE is_active = true").
		WillReturnRows(planRows().
			AddRow(1, "Starter", "starter", "", int64(0), "USD", "MONTHLY",
				5, 1, 3, 1, false, false, false, false, false, false, 0, true, 1, now, now).
			AddRow(2, "Team", "team", "", int64(2900), "USD", "MONTHLY",
				25, 5, 20, 25, true, false, true, false, false, false, 14, true, 2, now, now))

	list, err := service.ListPlans(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].IsFree())
	assert.Equal(t, int64(2900), list[1].PriceCents)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivatePlanNotFound(t *testing.T) {
	service, mock := newService(t)

	mock.ExpectExec("UPDATE plans SET is_active = false").
		WithArgs(int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := service.DeactivatePlan(context.Background(), 8)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestSeedDefaults(t *testing.T) {
	service, mock := newService(t)

	for range DefaultPlans() {
		mock.ExpectExec("INSERT INTO plans").
			WillReturnResult(sqlmock.NewResult(1, 1))
	}

	require.NoError(t, service.SeedDefaults(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDefaultPlansCatalog(t *testing.T) {
	catalog := DefaultPlans()
	require.Len(t, catalog, 4)

	starter := catalog[0]
	assert.True(t, starter.IsFree())
	assert.Equal(t, 0, starter.TrialDays)

	enterprise := catalog[3]
	assert.Equal(t, UnlimitedSentinel, enterprise.Limits.MaxProjects)
	assert.True(t, enterprise.Features.SSO)
}

func TestBillingIntervalPeriod(t *testing.T) {
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC), IntervalMonthly.Period(start))
	assert.Equal(t, time.Date(2027, 1, 15, 0, 0, 0, 0, time.UTC), IntervalYearly.Period(start))
}
