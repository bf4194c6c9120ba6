package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"

	"github.com/taskhive/taskhive/pkg/billing"
	"github.com/taskhive/taskhive/pkg/config"
	"github.com/taskhive/taskhive/pkg/notifications"
	"github.com/taskhive/taskhive/pkg/observability"
	"github.com/taskhive/taskhive/pkg/plans"
	"github.com/taskhive/taskhive/pkg/storage"
)

var (
	expirySchedule  = flag.String("expiry-schedule", "*/10 * * * *", "Cron schedule for the subscription expiry sweep")
	overdueSchedule = flag.String("overdue-schedule", "0 1 * * *", "Cron schedule for marking invoices overdue")
	warningSchedule = flag.String("warning-schedule", "0 9 * * *", "Cron schedule for expiring-soon warnings")
	warningWindow   = flag.Duration("warning-window", 72*time.Hour, "How far ahead to warn about expiring subscriptions")
	runOnce         = flag.Bool("run-once", false, "Run all sweeps once and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	db, err := storage.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer db.Close()

	var dispatcher notifications.Dispatcher = notifications.NewNoopDispatcher()
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		dispatcher = notifications.NewRedisDispatcher(client, nil)
	}

	service := billing.NewService(db, plans.NewPostgresService(db), nil, dispatcher, logger, nil, cfg.Billing)
	sweeper := &sweeper{service: service, logger: logger, batchSize: cfg.Billing.SweepBatchSize}

	if *runOnce {
		sweeper.renew()
		sweeper.expire()
		sweeper.markOverdue()
		sweeper.warnExpiring(*warningWindow)
		return
	}

	c := cron.New()

	// Renewal runs first so due auto-renewing subscriptions get their
	// invoice instead of being expired.
	if _, err := c.AddFunc(*expirySchedule, func() { sweeper.renew(); sweeper.expire() }); err != nil {
		log.Fatalf("Failed to schedule expiry sweep: %v", err)
	}
	if _, err := c.AddFunc(*overdueSchedule, sweeper.markOverdue); err != nil {
		log.Fatalf("Failed to schedule overdue sweep: %v", err)
	}
	if _, err := c.AddFunc(*warningSchedule, func() { sweeper.warnExpiring(*warningWindow) }); err != nil {
		log.Fatalf("Failed to schedule expiry warnings: %v", err)
	}

	c.Start()
	logger.WithFields(map[string]interface{}{
		"expiry_schedule":  *expirySchedule,
		"overdue_schedule": *overdueSchedule,
		"warning_schedule": *warningSchedule,
	}).Info("sweeper started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	ctx := c.Stop()
	<-ctx.Done()
	logger.Info("sweeper stopped")
}

type sweeper struct {
	service   *billing.Service
	logger    *observability.Logger
	batchSize int
}

// renew issues invoices for due auto-renewing subscriptions
func (s *sweeper) renew() {
	count, err := s.service.RenewDueSubscriptions(context.Background(), s.batchSize)
	if err != nil {
		s.logger.WithError(err).Error("renewal sweep failed")
		return
	}
	if count > 0 {
		s.logger.WithField("count", count).Info("issued renewal invoices")
	}
}

// expire keeps sweeping until a batch comes back smaller than the batch
// size, so a backlog is drained in one run
func (s *sweeper) expire() {
	ctx := context.Background()
	total := 0
	for {
		count, err := s.service.ExpireDueSubscriptions(ctx, s.batchSize)
		if err != nil {
			s.logger.WithError(err).Error("expiry sweep failed")
			return
		}
		total += count
		if count < s.batchSize {
			break
		}
	}
	if total > 0 {
		s.logger.WithField("count", total).Info("expired lapsed subscriptions")
	}
}

func (s *sweeper) markOverdue() {
	count, err := s.service.MarkOverdueInvoices(context.Background())
	if err != nil {
		s.logger.WithError(err).Error("overdue sweep failed")
		return
	}
	if count > 0 {
		s.logger.WithField("count", count).Info("marked invoices overdue")
	}
}

func (s *sweeper) warnExpiring(window time.Duration) {
	ctx := context.Background()
	subs, err := s.service.ListExpiringSoon(ctx, window)
	if err != nil {
		s.logger.WithError(err).Error("expiring-soon scan failed")
		return
	}
	for _, sub := range subs {
		s.service.NotifyExpiring(ctx, sub)
	}
	if len(subs) > 0 {
		s.logger.WithField("count", len(subs)).Info("sent expiry warnings")
	}
}
