package eventbus

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/holoncore/travel-orchestrator/holon"
)

type memorySubscription struct {
	id        string
	topic     string
	handler   Handler
	opts      SubscribeOptions
	cancelled atomic.Bool
}

func (s *memorySubscription) ID() string    { return s.id }
func (s *memorySubscription) Topic() string { return s.topic }
func (s *memorySubscription) Cancel() error {
	s.cancelled.Store(true)
	return nil
}

// MemoryBus is the in-process Bus implementation. It is the only engine
// this module ships — real deployments that need a durable broker behind
// the same Bus interface (Kafka, NATS, SQS) plug in by implementing Bus,
// which is intentionally transport-agnostic.
type MemoryBus struct {
	cfg Config
	log holon.Logger

	mu      sync.RWMutex
	topics  map[string]map[string]*memorySubscription
	subByID map[string]*memorySubscription

	lanes   *laneRegistry
	history *historyRing
	dlq     *deadLetterQueue

	maxDLQSize int

	started bool
	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewMemoryBus constructs a Bus with cfg and logger log (nil logger defaults
// to holon.NopLogger).
func NewMemoryBus(cfg Config, log holon.Logger) *MemoryBus {
	if log == nil {
		log = holon.NopLogger{}
	}
	return &MemoryBus{
		cfg:        cfg,
		log:        log,
		topics:     make(map[string]map[string]*memorySubscription),
		subByID:    make(map[string]*memorySubscription),
		lanes:      newLaneRegistry(cfg.SagaLaneHighWaterMark),
		history:    newHistoryRing(cfg.HistorySize),
		dlq:        newDeadLetterQueue(),
		maxDLQSize: 10000,
	}
}

// Start arms the bus's background context; delivery goroutines inherit it
// so Stop can cancel all in-flight work cooperatively.
func (b *MemoryBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}
	b.rootCtx, b.cancel = context.WithCancel(ctx)
	b.started = true
	return nil
}

// Stop cancels in-flight deliveries, closes every saga lane, and waits for
// outstanding work to unwind.
func (b *MemoryBus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return nil
	}
	b.started = false
	cancel := b.cancel
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.lanes.closeAll()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return holon.NewError(holon.KindTimeout, "event bus shutdown timed out")
	}
}

// Subscribe registers handler for topic, auto-creating the topic if this is
// its first subscriber.
func (b *MemoryBus) Subscribe(topic string, handler Handler, opts SubscribeOptions) (string, error) {
	if handler == nil {
		return "", holon.NewError(holon.KindInternal, "event handler cannot be nil")
	}
	sub := &memorySubscription{id: uuid.NewString(), topic: topic, handler: handler, opts: opts}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.topics[topic]; !ok {
		b.log.Warn("auto-creating topic on first subscribe", "topic", topic)
		b.topics[topic] = make(map[string]*memorySubscription)
	}
	b.topics[topic][sub.id] = sub
	b.subByID[sub.id] = sub
	return sub.id, nil
}

// Unsubscribe removes a subscription and drains its saga lanes.
func (b *MemoryBus) Unsubscribe(subscriptionID string) bool {
	b.mu.Lock()
	sub, ok := b.subByID[subscriptionID]
	if !ok {
		b.mu.Unlock()
		return false
	}
	sub.Cancel()
	delete(b.subByID, subscriptionID)
	if subs, ok := b.topics[sub.topic]; ok {
		delete(subs, subscriptionID)
	}
	b.mu.Unlock()

	b.lanes.closeAllFor(subscriptionID)
	return true
}

// Publish validates, records, and delivers an event. See Bus.Publish.
func (b *MemoryBus) Publish(ctx context.Context, topic string, payload any, opts ...PublishOption) (string, error) {
	params := publishParams{source: b.cfg.Source}
	for _, opt := range opts {
		opt(&params)
	}

	if b.cfg.RequireCorrelationTracking && (params.sagaID == "" || params.correlationID == "") {
		return "", holon.NewError(holon.KindSchema, "sagaId and correlationId are required for this deployment")
	}

	event := holon.NewWireEvent(topic, params.source, payload, params.sagaID, params.correlationID)
	event.SpanID = params.spanID

	b.history.append(event)

	b.mu.RLock()
	started := b.started
	rootCtx := b.rootCtx
	subs := make([]*memorySubscription, 0, len(b.topics[topic]))
	if !b.started {
		b.mu.RUnlock()
	} else {
		for _, s := range b.topics[topic] {
			if !s.cancelled.Load() {
				subs = append(subs, s)
			}
		}
		b.mu.RUnlock()
	}
	if !started {
		return event.ID, holon.NewError(holon.KindInternal, "event bus not started")
	}

	for _, sub := range subs {
		sub := sub
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.deliverToSubscription(rootCtx, sub, event)
		}()
	}
	return event.ID, nil
}

// History returns up to 100 recent events matching filter.
func (b *MemoryBus) History(filter HistoryFilter) []Event {
	return b.history.query(filter)
}

// DLQRecords exposes the current dead-letter backlog for operational ack.
func (b *MemoryBus) DLQRecords() []DLQRecord { return b.dlq.List() }

// AckDLQ removes a dead-letter record, the only sanctioned way to clear one
// (invariant f: DLQ routing is terminal).
func (b *MemoryBus) AckDLQ(id string) bool { return b.dlq.Ack(id) }

func (b *MemoryBus) deliverToSubscription(ctx context.Context, sub *memorySubscription, event Event) {
	process := func(pctx context.Context, e Event) {
		var lastErr error
		for attempt := 1; ; attempt++ {
			err := sub.handler(pctx, e)
			if err == nil {
				return
			}
			lastErr = err
			if !sub.opts.RetryOnFailure || attempt > b.cfg.MaxRetries {
				break
			}
			delay := backoffDelay(b.cfg.BaseRetryDelay, attempt)
			select {
			case <-pctx.Done():
				return
			case <-time.After(delay):
			}
		}
		b.routeToDLQ(sub, e, lastErr)
	}

	if event.SagaID == "" {
		process(ctx, event)
		return
	}

	lane := b.lanes.laneFor(sub.id, event.SagaID, process)
	done, accepted := lane.enqueue(ctx, event)
	if !accepted {
		b.routeToDLQ(sub, event, holon.NewError(holon.KindResourceExhausted, "saga lane high-water mark exceeded"))
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (b *MemoryBus) routeToDLQ(sub *memorySubscription, event Event, cause error) {
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	rec := DLQRecord{
		ID:                     uuid.NewString(),
		OriginalEvent:          event,
		SubscriptionID:         sub.id,
		Error:                  reason,
		Timestamp:              time.Now(),
		RequiresManualApproval: true,
	}
	b.dlq.put(rec)
	b.log.Error("event moved to dead-letter queue", "topic", event.Type, "subscription", sub.id, "error", reason)

	if b.dlq.size() > b.maxDLQSize {
		b.log.Error("event bus dead-letter queue overflow", "size", b.dlq.size())
	}

	// Emit on the reserved internal channel; best-effort, never recurses
	// into another DLQ attempt.
	if b.started {
		b.mu.RLock()
		dlqSubs := make([]*memorySubscription, 0, len(b.topics["dlq-message"]))
		for _, s := range b.topics["dlq-message"] {
			dlqSubs = append(dlqSubs, s)
		}
		rootCtx := b.rootCtx
		b.mu.RUnlock()
		for _, s := range dlqSubs {
			s := s
			go func() { _ = s.handler(rootCtx, holon.NewWireEvent("dlq-message", b.cfg.Source, rec, event.SagaID, event.CorrelationID)) }()
		}
	}
}

// HealthCheck reports degraded when the dead-letter backlog is large
// relative to its configured ceiling.
func (b *MemoryBus) HealthCheck() holon.HealthReport {
	size := b.dlq.size()
	status := holon.HealthOK
	if size > b.maxDLQSize/2 {
		status = holon.HealthDegraded
	}
	return holon.HealthReport{
		Module: "eventbus",
		Status: status,
		Details: map[string]any{
			"dlq_size": size,
		},
	}
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	jitter := time.Duration(rand.Intn(100)) * time.Millisecond
	exp := time.Duration(1)
	for i := 1; i < attempt; i++ {
		exp *= 2
	}
	return base*exp + jitter
}
