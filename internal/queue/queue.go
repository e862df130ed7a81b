package queue

import (
	"math"
	"sync"
	"time"

	"github.com/holoncore/travel-orchestrator/holon"
)

// pendingRetry is a message waiting out its backoff delay before
// rejoining the ready queue.
type pendingRetry struct {
	msg     *Message
	readyAt time.Time
}

// queueState is one named queue's runtime state: its ready heap,
// in-flight count, pending retries, rate limiter, and processing-time
// EMA (§5.1, §5.4).
type queueState struct {
	name string
	cfg  QueueConfig

	mu       sync.Mutex
	ready    *readyQueue
	inFlight int
	pending  []pendingRetry

	limiter *dualRateLimiter

	avgProcessingTime time.Duration
	avgWaitTime       time.Duration
	processed         int64
	failed            int64
	deadLettered      int64
}

func newQueueState(name string, cfg QueueConfig) *queueState {
	return &queueState{
		name:    name,
		cfg:     cfg,
		ready:   newReadyQueue(),
		limiter: newDualRateLimiter(cfg.RatePerSecond, cfg.RatePerMinute),
	}
}

// enqueue adds a message to the ready heap, rejecting it once the queue's
// total depth has reached cfg.MaxSize (§4.3, §8 boundary: enqueue at
// exactly maxSize fails, at maxSize-1 succeeds). Zero MaxSize is unbounded.
func (q *queueState) enqueue(msg *Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cfg.MaxSize > 0 && q.depthLocked() >= q.cfg.MaxSize {
		return false
	}
	q.ready.push(msg)
	return true
}

func (q *queueState) depthLocked() int {
	return q.ready.len() + len(q.pending) + q.inFlight
}

// promoteRetries moves any pending retry whose delay has elapsed back
// into the ready heap.
func (q *queueState) promoteRetries(now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var remaining []pendingRetry
	for _, p := range q.pending {
		if !now.Before(p.readyAt) {
			q.ready.push(p.msg)
		} else {
			remaining = append(remaining, p)
		}
	}
	q.pending = remaining
}

// selectBatch pops up to n ready, unexpired messages whose dispatch the
// rate limiter currently admits, respecting the queue's concurrency cap.
func (q *queueState) selectBatch(now time.Time) []*Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	capacity := q.cfg.Concurrency - q.inFlight
	if capacity <= 0 {
		return nil
	}
	n := q.cfg.BatchSize
	if n > capacity {
		n = capacity
	}

	var batch []*Message
	var deferred []*Message
	for len(batch) < n {
		m, ok := q.ready.pop()
		if !ok {
			break
		}
		if m.expired(now) {
			continue // dropped, not dispatched
		}
		if !q.limiter.allow() {
			deferred = append(deferred, m)
			continue
		}
		batch = append(batch, m)
	}
	for _, m := range deferred {
		q.ready.push(m)
	}
	if len(batch) > 0 {
		q.inFlight += len(batch)
	}
	return batch
}

func (q *queueState) completeSuccess(m *Message, duration time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inFlight--
	q.processed++
	q.updateEMA(duration)
}

// updateEMA maintains an exponential moving average with alpha=0.2,
// matching the teacher's scheduler job-duration tracking pattern.
func (q *queueState) updateEMA(sample time.Duration) {
	const alpha = 0.2
	if q.avgProcessingTime == 0 {
		q.avgProcessingTime = sample
		return
	}
	q.avgProcessingTime = time.Duration(alpha*float64(sample) + (1-alpha)*float64(q.avgProcessingTime))
}

// completeFailure applies the retry policy: requeue with backoff if
// attempts remain, otherwise dead-letter.
func (q *queueState) completeFailure(m *Message, cause error, now time.Time) (retry bool, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inFlight--
	q.failed++

	m.Attempts++
	if cause != nil {
		m.LastError = cause.Error()
	}

	if q.cfg.IsDeadLetterQueue || m.Attempts >= q.cfg.Retry.MaxAttempts {
		q.deadLettered++
		return false, 0
	}

	delay = backoffDelay(q.cfg.Retry, m.Attempts)
	q.pending = append(q.pending, pendingRetry{msg: m, readyAt: now.Add(delay)})
	return true, delay
}

func backoffDelay(policy RetryPolicy, attempt int) time.Duration {
	factor := policy.BackoffFactor
	if factor <= 1 {
		factor = 2
	}
	d := time.Duration(float64(policy.BaseDelay) * math.Pow(factor, float64(attempt-1)))
	if policy.MaxDelay > 0 && d > policy.MaxDelay {
		d = policy.MaxDelay
	}
	return d
}

func (q *queueState) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depthLocked()
}

// recordWait folds a message's queueing delay (time from enqueue to
// dispatch) into the wait-time EMA, alpha=0.2, the same shape as
// updateEMA's processing-time tracking.
func (q *queueState) recordWait(sample time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	const alpha = 0.2
	if q.avgWaitTime == 0 {
		q.avgWaitTime = sample
		return
	}
	q.avgWaitTime = time.Duration(alpha*float64(sample) + (1-alpha)*float64(q.avgWaitTime))
}

// health reports utilization, wait time, and error rate against the
// literal §4.3 thresholds: utilization > 80% of maxSize, average wait
// time > 50% of processingTimeout, error rate > 10%.
func (q *queueState) health() holon.HealthReport {
	q.mu.Lock()
	defer q.mu.Unlock()

	depth := q.depthLocked()
	util := 0.0
	if q.cfg.MaxSize > 0 {
		util = float64(depth) / float64(q.cfg.MaxSize)
	}
	total := q.processed + q.failed
	errRate := 0.0
	if total > 0 {
		errRate = float64(q.failed) / float64(total)
	}
	waitRatio := 0.0
	if q.cfg.ProcessingTimeout > 0 {
		waitRatio = float64(q.avgWaitTime) / float64(q.cfg.ProcessingTimeout)
	}

	status := holon.HealthOK
	if util > 0.8 || waitRatio > 0.5 || errRate > 0.1 {
		status = holon.HealthDegraded
	}

	return holon.HealthReport{
		Module: "queue." + q.name,
		Status: status,
		Details: map[string]any{
			"utilization":         util,
			"error_rate":          errRate,
			"depth":               depth,
			"avg_processing_time": q.avgProcessingTime.String(),
			"avg_wait_time":       q.avgWaitTime.String(),
			"dead_lettered":       q.deadLettered,
		},
	}
}
