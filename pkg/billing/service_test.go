package billing

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/pkg/audit"
	"github.com/taskhive/taskhive/pkg/config"
	"github.com/taskhive/taskhive/pkg/plans"
)

// stubPlans serves a fixed plan catalog without a database
type stubPlans struct {
	plan *plans.Plan
	err  error
}

func (s *stubPlans) CreatePlan(context.Context, *plans.Plan) error { return s.err }
func (s *stubPlans) GetPlan(_ context.Context, id int64) (*plans.Plan, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.plan == nil {
		return nil, &plans.NotFoundError{ID: id}
	}
	return s.plan, nil
}
func (s *stubPlans) GetPlanBySlug(_ context.Context, slug string) (*plans.Plan, error) {
	if s.plan == nil {
		return nil, &plans.NotFoundError{Slug: slug}
	}
	return s.plan, nil
}
func (s *stubPlans) ListPlans(context.Context, bool) ([]*plans.Plan, error) {
	return []*plans.Plan{s.plan}, nil
}
func (s *stubPlans) UpdatePlan(context.Context, *plans.Plan) error     { return s.err }
func (s *stubPlans) DeactivatePlan(context.Context, int64) error       { return s.err }
func (s *stubPlans) SeedDefaults(context.Context) error                { return s.err }

func monthlyPlan(id int64, priceCents int64, trialDays int) *plans.Plan {
	return &plans.Plan{
		ID:         id,
		Name:       "Team",
		Slug:       "team",
		PriceCents: priceCents,
		Currency:   "USD",
		Interval:   plans.IntervalMonthly,
		TrialDays:  trialDays,
		IsActive:   true,
	}
}

func newBillingService(t *testing.T, plan *plans.Plan) (*Service, sqlmock.Sqlmock, *audit.MemoryRecorder) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	recorder := audit.NewMemoryRecorder()
	cfg := config.BillingConfig{
		Currency:       "USD",
		InvoiceDueDays: 14,
		TaxRatePercent: 0,
		SweepBatchSize: 500,
	}

	service := NewService(db, &stubPlans{plan: plan}, recorder, nil, nil, nil, cfg)
	return service, mock, recorder
}
