package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taskhive/taskhive/pkg/api"
	"github.com/taskhive/taskhive/pkg/audit"
	"github.com/taskhive/taskhive/pkg/authz"
	"github.com/taskhive/taskhive/pkg/billing"
	"github.com/taskhive/taskhive/pkg/config"
	"github.com/taskhive/taskhive/pkg/limits"
	"github.com/taskhive/taskhive/pkg/notifications"
	"github.com/taskhive/taskhive/pkg/observability"
	"github.com/taskhive/taskhive/pkg/plans"
	"github.com/taskhive/taskhive/pkg/storage"
	"github.com/taskhive/taskhive/pkg/tasks"
	"github.com/taskhive/taskhive/pkg/teams"
	"github.com/taskhive/taskhive/pkg/tenants"
)

func main() {
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

	if err := storage.EnsureSchema(db); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	recorder, err := audit.NewDBRecorder(db)
	if err != nil {
		log.Fatalf("Failed to initialize audit recorder: %v", err)
	}

	var metrics *observability.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	var redisClient *redis.Client
	var dispatcher notifications.Dispatcher = notifications.NewNoopDispatcher()
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		dispatcher = notifications.NewRedisDispatcher(redisClient, metrics)
	}

	planService := plans.NewPostgresService(db)
	if err := planService.SeedDefaults(context.Background()); err != nil {
		log.Fatalf("Failed to seed default plans: %v", err)
	}

	enforcer := limits.NewEnforcer(db, metrics)
	tenantService := tenants.NewPostgresService(db, recorder, dispatcher, logger, metrics)
	billingService := billing.NewService(db, planService, recorder, dispatcher, logger, metrics, cfg.Billing)
	teamService := teams.NewService(db, enforcer, recorder, logger)
	taskService := tasks.NewService(db, enforcer, recorder, dispatcher, logger)

	server := api.NewServer(api.Services{
		Tenants:  tenantService,
		Plans:    planService,
		Billing:  billingService,
		Teams:    teamService,
		Tasks:    taskService,
		Limits:   enforcer,
		Recorder: recorder,
		Checker:  authz.NewRoleChecker(),
	}, logger, metrics)

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on a separate port for probes and scraping
	health := observability.NewHealthChecker(db, redisClient)
	probeMux := http.NewServeMux()
	probeMux.HandleFunc("/healthz", health.Liveness)
	probeMux.HandleFunc("/readyz", health.Readiness)
	if cfg.Observability.MetricsEnabled {
		probeMux.Handle("/metrics", observability.Handler(registry))
	}
	probeServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: probeMux,
	}

	go func() {
		logger.WithField("addr", probeServer.Addr).Info("health server listening")
		if err := probeServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("api server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("api server shutdown failed")
	}
	if err := probeServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("health server shutdown failed")
	}

	logger.Info("stopped")
}
