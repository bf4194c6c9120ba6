package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/taskhive/taskhive/pkg/observability"
)

// QueueKey is the Redis list delivery workers consume from
const QueueKey = "taskhive:notifications"

// Dispatcher enqueues notifications for delivery
type Dispatcher interface {
	// Dispatch enqueues a notification. Errors are returned for the
	// caller to log; callers must not fail their operation on them.
	Dispatch(ctx context.Context, n Notification) error
}

// RedisDispatcher pushes notifications onto a Redis list
type RedisDispatcher struct {
	client  *redis.Client
	metrics *observability.Metrics
}

// NewRedisDispatcher creates a Redis-backed dispatcher
func NewRedisDispatcher(client *redis.Client, metrics *observability.Metrics) *RedisDispatcher {
	return &RedisDispatcher{client: client, metrics: metrics}
}

// Dispatch serializes the notification and pushes it onto the queue
func (d *RedisDispatcher) Dispatch(ctx context.Context, n Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(n)
	if err != nil {
		d.observe(n.Type, "error")
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := d.client.LPush(ctx, QueueKey, payload).Err(); err != nil {
		d.observe(n.Type, "error")
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}

	d.observe(n.Type, "ok")
	return nil
}

func (d *RedisDispatcher) observe(t Type, outcome string) {
	if d.metrics != nil {
		d.metrics.NotificationsDispatchedTotal.WithLabelValues(string(t), outcome).Inc()
	}
}

// NoopDispatcher discards notifications. Used when Redis is disabled.
type NoopDispatcher struct{}

// NewNoopDispatcher creates a dispatcher that drops everything
func NewNoopDispatcher() *NoopDispatcher {
	return &NoopDispatcher{}
}

// Dispatch discards the notification
func (d *NoopDispatcher) Dispatch(_ context.Context, _ Notification) error {
	return nil
}

// Emit dispatches via the supplied dispatcher and logs failures. This is
// the helper services call so enqueue errors never propagate.
func Emit(ctx context.Context, dispatcher Dispatcher, logger *observability.Logger, n Notification) {
	if dispatcher == nil {
		return
	}
	if err := dispatcher.Dispatch(ctx, n); err != nil && logger != nil {
		logger.WithError(err).WithFields(map[string]interface{}{
			"notification_type": string(n.Type),
			"tenant_id":         n.TenantID,
		}).Warn("failed to dispatch notification")
	}
}
