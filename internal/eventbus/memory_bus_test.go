package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T, cfg Config) *MemoryBus {
	t.Helper()
	bus := NewMemoryBus(cfg, nil)
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() {
		_ = bus.Stop(context.Background())
	})
	return bus
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := newTestBus(t, DefaultConfig())
	got := make(chan Event, 1)

	_, err := bus.Subscribe("ITINERARY", func(ctx context.Context, e Event) error {
		got <- e
		return nil
	}, DefaultSubscribeOptions())
	require.NoError(t, err)

	_, err = bus.Publish(context.Background(), "ITINERARY", map[string]any{"k": "v"})
	require.NoError(t, err)

	select {
	case e := <-got:
		require.Equal(t, "ITINERARY", e.Type)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestFIFOPerSagaOrdering(t *testing.T) {
	bus := newTestBus(t, DefaultConfig())

	var mu sync.Mutex
	var order []int

	_, err := bus.Subscribe("CANDIDATES", func(ctx context.Context, e Event) error {
		n := e.Data.(int)
		// stagger processing so races would show up as out-of-order
		// appends if the lane didn't serialize delivery.
		time.Sleep(time.Duration(5-n%3) * time.Millisecond)
		mu.Lock()
		order = append(order, n)
		mu.Unlock()
		return nil
	}, DefaultSubscribeOptions())
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		_, err := bus.Publish(context.Background(), "CANDIDATES", i, WithSagaID("saga-1"))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 20
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		require.Equal(t, i, v, "events for a single saga must be delivered in publish order")
	}
}

func TestRetryThenDeadLetter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	cfg.BaseRetryDelay = time.Millisecond
	bus := newTestBus(t, cfg)

	var attempts int32
	var mu sync.Mutex

	_, err := bus.Subscribe("VERIFY", func(ctx context.Context, e Event) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("downstream failure")
	}, DefaultSubscribeOptions())
	require.NoError(t, err)

	_, err = bus.Publish(context.Background(), "VERIFY", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(bus.DLQRecords()) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.EqualValues(t, 3, attempts) // 1 initial + 2 retries
}

func TestSchemaErrorWhenCorrelationRequired(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireCorrelationTracking = true
	bus := newTestBus(t, cfg)

	_, err := bus.Publish(context.Background(), "INTENT", nil)
	require.Error(t, err)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := newTestBus(t, DefaultConfig())
	var calls int32
	var mu sync.Mutex

	id, err := bus.Subscribe("OUTPUT", func(ctx context.Context, e Event) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}, DefaultSubscribeOptions())
	require.NoError(t, err)
	require.True(t, bus.Unsubscribe(id))

	_, err = bus.Publish(context.Background(), "OUTPUT", nil)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Zero(t, calls)
}

func TestHistoryReturnsRecentEvents(t *testing.T) {
	bus := newTestBus(t, DefaultConfig())
	for i := 0; i < 5; i++ {
		_, err := bus.Publish(context.Background(), "AVAILABILITY", i, WithSagaID("s1"))
		require.NoError(t, err)
	}
	events := bus.History(HistoryFilter{SagaID: "s1"})
	require.Len(t, events, 5)
}
