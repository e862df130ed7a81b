package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(nil)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Stop(context.Background()) })
	return m
}

func TestEnqueueDispatchesToHandler(t *testing.T) {
	m := newTestManager(t)
	got := make(chan any, 1)

	cfg := DefaultQueueConfig()
	require.NoError(t, m.CreateQueue("bookings", cfg, func(ctx context.Context, msg *Message) error {
		got <- msg.Payload
		return nil
	}))

	_, err := m.Enqueue("bookings", "payload-1", PriorityNormal, nil)
	require.NoError(t, err)

	select {
	case v := <-got:
		require.Equal(t, "payload-1", v)
	case <-time.After(time.Second):
		t.Fatal("message was never dispatched")
	}
}

func TestHigherPriorityDispatchesFirst(t *testing.T) {
	m := newTestManager(t)
	var mu sync.Mutex
	var order []string

	cfg := DefaultQueueConfig()
	cfg.Concurrency = 1
	cfg.BatchSize = 1
	require.NoError(t, m.CreateQueue("mixed", cfg, func(ctx context.Context, msg *Message) error {
		mu.Lock()
		order = append(order, msg.Payload.(string))
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		return nil
	}))

	_, err := m.Enqueue("mixed", "low", PriorityLow, nil)
	require.NoError(t, err)
	_, err = m.Enqueue("mixed", "critical", PriorityCritical, nil)
	require.NoError(t, err)
	_, err = m.Enqueue("mixed", "normal", PriorityNormal, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"critical", "normal", "low"}, order)
}

func TestRetryThenDeadLetterBoundary(t *testing.T) {
	m := newTestManager(t)
	var attempts int32
	var mu sync.Mutex

	cfg := DefaultQueueConfig()
	cfg.Retry = RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, BackoffFactor: 2}
	require.NoError(t, m.CreateQueue("flaky", cfg, func(ctx context.Context, msg *Message) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("boom")
	}))

	_, err := m.Enqueue("flaky", "x", PriorityNormal, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(m.DeadLetters("flaky")) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.EqualValues(t, 2, attempts)
}

func TestDeadLetterQueueNeverRetries(t *testing.T) {
	m := newTestManager(t)
	var calls int32
	var mu sync.Mutex

	dlqCfg := DefaultQueueConfig()
	dlqCfg.IsDeadLetterQueue = true
	require.NoError(t, m.CreateQueue("dlq", dlqCfg, func(ctx context.Context, msg *Message) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.New("dlq handler failure")
	}))

	mainCfg := DefaultQueueConfig()
	mainCfg.Retry = RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2}
	mainCfg.DeadLetterQueue = "dlq"
	require.NoError(t, m.CreateQueue("main", mainCfg, func(ctx context.Context, msg *Message) error {
		return errors.New("always fails")
	}))

	_, err := m.Enqueue("main", "x", PriorityNormal, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.EqualValues(t, 1, calls, "a DLQ's own failures must never retry or cascade to another DLQ")
}

// TestEnqueueAtMaxSizeFails is the literal §8 boundary: enqueue into a
// queue at exactly maxSize fails with QueueFull; at maxSize-1 succeeds.
func TestEnqueueAtMaxSizeFails(t *testing.T) {
	m := NewManager(nil) // no dispatch loop running: messages just accumulate

	cfg := DefaultQueueConfig()
	cfg.MaxSize = 3
	require.NoError(t, m.CreateQueue("bounded", cfg, func(ctx context.Context, msg *Message) error { return nil }))

	for i := 0; i < 2; i++ {
		_, err := m.Enqueue("bounded", i, PriorityNormal, nil)
		require.NoError(t, err, "enqueue below maxSize-1 must succeed")
	}

	depth, err := m.Depth("bounded")
	require.NoError(t, err)
	require.Equal(t, 2, depth)

	_, err = m.Enqueue("bounded", "at-max-minus-one", PriorityNormal, nil)
	require.NoError(t, err, "enqueue at maxSize-1 must succeed")

	_, err = m.Enqueue("bounded", "at-max", PriorityNormal, nil)
	require.Error(t, err, "enqueue at exactly maxSize must fail with QueueFull")
}

func TestMessageTTLDropsExpiredWithoutDispatch(t *testing.T) {
	m := newTestManager(t)
	var calls int32
	var mu sync.Mutex

	cfg := DefaultQueueConfig()
	require.NoError(t, m.CreateQueue("expiring", cfg, func(ctx context.Context, msg *Message) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}))

	ttl := 5 * time.Millisecond
	_, err := m.Enqueue("expiring", "x", PriorityNormal, &ttl)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Zero(t, calls, "an expired message must not be dispatched")
}
