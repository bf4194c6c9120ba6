package notifications

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/pkg/observability"
)

func TestConsumerDeliversQueuedNotifications(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	dispatcher := NewRedisDispatcher(client, nil)
	require.NoError(t, dispatcher.Dispatch(context.Background(), Notification{
		Type: TypeTenantApproved, TenantID: 1, Title: "Welcome",
	}))
	require.NoError(t, dispatcher.Dispatch(context.Background(), Notification{
		Type: TypeInvoiceIssued, TenantID: 2, Title: "Invoice",
	}))

	var mu sync.Mutex
	delivered := make([]Notification, 0)
	handler := func(_ context.Context, n Notification) error {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, n)
		return nil
	}

	consumer := NewConsumer(client, handler, observability.NewLogger(observability.DebugLevel, nil), 2)
	consumer.Start(context.Background())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(delivered) == 2
	}, 2*time.Second, 10*time.Millisecond)

	consumer.Stop()

	mu.Lock()
	defer mu.Unlock()
	types := map[Type]bool{}
	for _, n := range delivered {
		types[n.Type] = true
	}
	assert.True(t, types[TypeTenantApproved])
	assert.True(t, types[TypeInvoiceIssued])
}

func TestConsumerSurvivesPanickingHandler(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	dispatcher := NewRedisDispatcher(client, nil)
	require.NoError(t, dispatcher.Dispatch(context.Background(), Notification{Type: TypeTaskAssigned, TenantID: 1}))
	require.NoError(t, dispatcher.Dispatch(context.Background(), Notification{Type: TypeTaskAssigned, TenantID: 2}))

	var mu sync.Mutex
	var calls int
	handler := func(_ context.Context, n Notification) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			panic("delivery exploded")
		}
		return nil
	}

	consumer := NewConsumer(client, handler, observability.NewLogger(observability.DebugLevel, nil), 1)
	consumer.Start(context.Background())
	defer consumer.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 2
	}, 2*time.Second, 10*time.Millisecond)
}
