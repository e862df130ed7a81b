package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holoncore/travel-orchestrator/holon"
)

// Manager is the Queue Manager: a registry of named queues, each with its
// own dispatch loop, plus the dead-letter queues they feed (§5).
type Manager struct {
	log   holon.Logger
	clock holon.Clock

	mu       sync.RWMutex
	queues   map[string]*queueState
	handlers map[string]Handler
	dlqRecs  map[string][]DeadLetterRecord

	periodic *holon.PeriodicTask
	cancel   context.CancelFunc
}

// NewManager constructs an empty Manager.
func NewManager(log holon.Logger) *Manager {
	if log == nil {
		log = holon.NopLogger{}
	}
	return &Manager{
		log:      log,
		clock:    holon.RealClock,
		queues:   make(map[string]*queueState),
		handlers: make(map[string]Handler),
		dlqRecs:  make(map[string][]DeadLetterRecord),
		periodic: holon.NewPeriodicTask(),
	}
}

// CreateQueue registers a named queue with cfg and the handler its
// dispatch loop invokes for each ready message.
func (m *Manager) CreateQueue(name string, cfg QueueConfig, handler Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queues[name]; ok {
		return holon.NewError(holon.KindConflict, "queue already exists", holon.WithRule(name))
	}
	m.queues[name] = newQueueState(name, cfg)
	m.handlers[name] = handler
	return nil
}

func (m *Manager) queue(name string) (*queueState, Handler, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.queues[name]
	if !ok {
		return nil, nil, holon.NewError(holon.KindNotFound, "queue not found", holon.WithRule(name))
	}
	return q, m.handlers[name], nil
}

// Enqueue adds a message to a named queue, assigning it a TTL from the
// queue's MessageTTL if none is given.
func (m *Manager) Enqueue(queueName string, payload any, priority Priority, ttl *time.Duration) (string, error) {
	q, _, err := m.queue(queueName)
	if err != nil {
		return "", err
	}
	now := m.clock.Now()
	if ttl == nil && q.cfg.MessageTTL > 0 {
		d := q.cfg.MessageTTL
		ttl = &d
	}
	var expiresAt *time.Time
	if ttl != nil {
		t := now.Add(*ttl)
		expiresAt = &t
	}
	msg := &Message{
		ID:         uuid.NewString(),
		Queue:      queueName,
		Priority:   priority,
		Payload:    payload,
		EnqueuedAt: now,
		ExpiresAt:  expiresAt,
	}
	if !q.enqueue(msg) {
		return "", holon.NewError(holon.KindQueueFull, "queue is at capacity", holon.WithRule(queueName))
	}
	return msg.ID, nil
}

// Depth returns a queue's total pending+in-flight message count.
func (m *Manager) Depth(queueName string) (int, error) {
	q, _, err := m.queue(queueName)
	if err != nil {
		return 0, err
	}
	return q.depth(), nil
}

// dispatchOnce runs one selection+dispatch round for every queue: promote
// elapsed retries, select a ready batch under the rate limiter and
// concurrency cap, and run each message's handler with a processing
// timeout (§5.1).
func (m *Manager) dispatchOnce(ctx context.Context) {
	m.mu.RLock()
	queues := make([]*queueState, 0, len(m.queues))
	for _, q := range m.queues {
		queues = append(queues, q)
	}
	m.mu.RUnlock()

	now := m.clock.Now()
	for _, q := range queues {
		q.promoteRetries(now)
		batch := q.selectBatch(now)
		for _, msg := range batch {
			m.dispatch(ctx, q, msg)
		}
	}
}

func (m *Manager) dispatch(ctx context.Context, q *queueState, msg *Message) {
	_, handler, err := m.queue(q.name)
	if err != nil || handler == nil {
		q.completeFailure(msg, holon.NewError(holon.KindInternal, "queue has no registered handler"), m.clock.Now())
		return
	}

	go func() {
		timeout := q.cfg.ProcessingTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		start := m.clock.Now()
		q.recordWait(start.Sub(msg.EnqueuedAt))
		err := handler(hctx, msg)
		elapsed := m.clock.Now().Sub(start)

		if err == nil {
			q.completeSuccess(msg, elapsed)
			return
		}

		retry, delay := q.completeFailure(msg, err, m.clock.Now())
		if retry {
			m.log.Debug("message scheduled for retry", "queue", q.name, "message", msg.ID, "attempt", msg.Attempts, "delay", delay.String())
			return
		}
		m.deadLetter(q, msg, err)
	}()
}

func (m *Manager) deadLetter(q *queueState, msg *Message, cause error) {
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	rec := DeadLetterRecord{Message: *msg, Queue: q.name, Error: reason, Timestamp: m.clock.Now()}

	m.mu.Lock()
	m.dlqRecs[q.name] = append(m.dlqRecs[q.name], rec)
	m.mu.Unlock()
	m.log.Error("message dead-lettered", "queue", q.name, "message", msg.ID, "error", reason)

	if q.cfg.DeadLetterQueue == "" || q.cfg.IsDeadLetterQueue {
		return
	}
	if _, err := m.Enqueue(q.cfg.DeadLetterQueue, rec, PriorityNormal, nil); err != nil {
		m.log.Warn("failed to route message to dead-letter queue", "queue", q.name, "target", q.cfg.DeadLetterQueue, "error", err.Error())
	}
}

// DeadLetters returns the dead-letter backlog recorded against queueName.
func (m *Manager) DeadLetters(queueName string) []DeadLetterRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]DeadLetterRecord, len(m.dlqRecs[queueName]))
	copy(out, m.dlqRecs[queueName])
	return out
}

// Start arms the dispatch loop, ticking every 10ms — frequent enough that
// BatchSize/Concurrency, not loop latency, gate throughput.
func (m *Manager) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.periodic.Every(runCtx, 10*time.Millisecond, m.dispatchOnce)
	m.periodic.Start()
	return nil
}

func (m *Manager) Stop(ctx context.Context) error {
	m.periodic.Stop()
	if m.cancel != nil {
		m.cancel()
	}
	return nil
}

// HealthCheck aggregates every queue's health into one report, taking the
// worst status across all queues.
func (m *Manager) HealthCheck() holon.HealthReport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := holon.HealthOK
	details := make(map[string]any, len(m.queues))
	for name, q := range m.queues {
		r := q.health()
		details[name] = r.Details
		if r.Status == holon.HealthDown {
			status = holon.HealthDown
		} else if r.Status == holon.HealthDegraded && status != holon.HealthDown {
			status = holon.HealthDegraded
		}
	}
	return holon.HealthReport{Module: "queue", Status: status, Details: details}
}
