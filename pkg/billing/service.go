package billing

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/taskhive/taskhive/pkg/audit"
	"github.com/taskhive/taskhive/pkg/config"
	"github.com/taskhive/taskhive/pkg/notifications"
	"github.com/taskhive/taskhive/pkg/observability"
	"github.com/taskhive/taskhive/pkg/plans"
)

// Service manages subscriptions, payments and invoices
type Service struct {
	db         *sql.DB
	plans      plans.Service
	recorder   audit.Recorder
	dispatcher notifications.Dispatcher
	logger     *observability.Logger
	metrics    *observability.Metrics
	cfg        config.BillingConfig
}

// NewService creates a billing service
func NewService(db *sql.DB, planService plans.Service, recorder audit.Recorder,
	dispatcher notifications.Dispatcher, logger *observability.Logger,
	metrics *observability.Metrics, cfg config.BillingConfig) *Service {
	return &Service{
		db:         db,
		plans:      planService,
		recorder:   recorder,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
		cfg:        cfg,
	}
}

// record writes an audit event, logging failures instead of propagating
// them
func (s *Service) record(ctx context.Context, event *audit.Event) {
	if s.recorder == nil {
		return
	}
	event.RequestID = observability.GetRequestID(ctx)
	if err := s.recorder.Record(ctx, event); err != nil && s.logger != nil {
		s.logger.WithError(err).WithField("event_type", string(event.EventType)).
			Error("failed to record audit event")
	}
}

func (s *Service) notify(ctx context.Context, n notifications.Notification) {
	notifications.Emit(ctx, s.dispatcher, s.logger, n)
}

func int64Ptr(v int64) *int64 { return &v }

func fmtID(id int64) string { return fmt.Sprintf("%d", id) }
