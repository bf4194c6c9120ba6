package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/taskhive/taskhive/pkg/observability"
)

// Handler delivers a single notification. Implementations send email,
// call webhooks, and so on.
type Handler func(ctx context.Context, n Notification) error

// Consumer pops notifications off the Redis queue and hands them to a
// pool of delivery workers. A worker that panics is logged and replaced
// by the next loop iteration rather than taking the consumer down.
type Consumer struct {
	client   *redis.Client
	handler  Handler
	logger   *observability.Logger
	workers  int
	popWait  time.Duration
	deliverT time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewConsumer creates a consumer with the given worker count
func NewConsumer(client *redis.Client, handler Handler, logger *observability.Logger, workers int) *Consumer {
	if workers <= 0 {
		workers = 4
	}
	return &Consumer{
		client:   client,
		handler:  handler,
		logger:   logger,
		workers:  workers,
		popWait:  5 * time.Second,
		deliverT: 30 * time.Second,
	}
}

// Start launches the worker pool. It returns immediately; call Stop to
// drain.
func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.run(ctx, i)
	}
}

// Stop cancels the workers and waits for in-flight deliveries
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *Consumer) run(ctx context.Context, worker int) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.consumeOne(ctx); err != nil && ctx.Err() == nil {
			c.logger.WithError(err).WithField("worker", worker).Warn("notification delivery failed")
		}
	}
}

// consumeOne blocks for one queue entry and delivers it. Panics in the
// handler are recovered so one bad notification cannot kill the worker.
func (c *Consumer) consumeOne(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("delivery panicked: %v\n%s", r, debug.Stack())
		}
	}()

	result, err := c.client.BRPop(ctx, c.popWait, QueueKey).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to pop notification: %w", err)
	}
	if len(result) < 2 {
		return nil
	}

	var n Notification
	if err := json.Unmarshal([]byte(result[1]), &n); err != nil {
		return fmt.Errorf("failed to decode notification: %w", err)
	}

	deliverCtx, cancel := context.WithTimeout(ctx, c.deliverT)
	defer cancel()

	if err := c.handler(deliverCtx, n); err != nil {
		return fmt.Errorf("failed to deliver %s notification: %w", n.Type, err)
	}
	return nil
}
