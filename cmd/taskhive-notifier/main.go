package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"

	"github.com/taskhive/taskhive/pkg/config"
	"github.com/taskhive/taskhive/pkg/notifications"
	"github.com/taskhive/taskhive/pkg/observability"
)

var workers = flag.Int("workers", 4, "Number of delivery workers")

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if !cfg.Redis.Enabled {
		log.Fatal("Notifier requires redis; set TASKHIVE_REDIS_ENABLED=true")
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	// Delivery is a structured log line per notification. Real channels
	// (email, chat hooks) plug in as alternative handlers.
	handler := func(_ context.Context, n notifications.Notification) error {
		entry := logger.WithFields(map[string]interface{}{
			"notification_type": string(n.Type),
			"tenant_id":         n.TenantID,
			"title":             n.Title,
		})
		if n.UserID != nil {
			entry = entry.WithField("user_id", *n.UserID)
		}
		entry.Info("notification delivered")
		return nil
	}

	consumer := notifications.NewConsumer(client, handler, logger, *workers)
	consumer.Start(context.Background())
	logger.WithField("workers", *workers).Info("notifier started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	consumer.Stop()
	logger.Info("notifier stopped")
}
