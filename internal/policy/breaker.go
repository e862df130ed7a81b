package policy

import (
	"context"
	"sync"
	"time"

	"github.com/holoncore/travel-orchestrator/holon"
)

// BreakerState is a circuit breaker's current state (§6.4).
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// BreakerConfig tunes the breaker's trip/recovery thresholds, mirroring
// the reverse proxy's HTTP circuit breaker generalized to any call
// (§6.4's literal thresholds: 3% error rate over a 5s window, a 120s
// cooldown, a 15s half-open probe timeout, 3 consecutive half-open
// successes to close).
type BreakerConfig struct {
	ErrorRateThreshold    float64
	CallBudgetWindow      time.Duration
	CooldownPeriod        time.Duration
	HalfOpenProbeTimeout  time.Duration
	HalfOpenSuccessToClose int
	MinCallsInWindow      int
}

// DefaultBreakerConfig mirrors §6.4's literal thresholds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		ErrorRateThreshold:     0.03,
		CallBudgetWindow:       5 * time.Second,
		CooldownPeriod:         120 * time.Second,
		HalfOpenProbeTimeout:   15 * time.Second,
		HalfOpenSuccessToClose: 3,
		MinCallsInWindow:       10,
	}
}

type callRecord struct {
	at      time.Time
	success bool
}

// CircuitBreaker guards calls to an unreliable dependency, generalized
// from the teacher's HTTP-specific breaker to any func(ctx) error (§6.4).
type CircuitBreaker struct {
	name string
	cfg  BreakerConfig
	clock holon.Clock

	mu                sync.Mutex
	state             BreakerState
	openedAt          time.Time
	halfOpenSuccesses int
	calls             []callRecord
}

func NewCircuitBreaker(name string, cfg BreakerConfig, clock holon.Clock) *CircuitBreaker {
	if clock == nil {
		clock = holon.RealClock
	}
	return &CircuitBreaker{name: name, cfg: cfg, clock: clock, state: BreakerClosed}
}

func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState(b.clock.Now())
}

// currentState advances Open -> HalfOpen once the cooldown elapses.
// Caller must hold b.mu.
func (b *CircuitBreaker) currentState(now time.Time) BreakerState {
	if b.state == BreakerOpen && now.Sub(b.openedAt) >= b.cfg.CooldownPeriod {
		b.state = BreakerHalfOpen
		b.halfOpenSuccesses = 0
	}
	return b.state
}

// Execute runs fn if the breaker admits the call, recording the outcome.
// In HalfOpen every admitted call runs as a probe under HalfOpenProbeTimeout;
// concurrent half-open calls are not limited to one at a time.
func (b *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	now := b.clock.Now()

	b.mu.Lock()
	state := b.currentState(now)
	if state == BreakerOpen {
		b.mu.Unlock()
		return holon.NewError(holon.KindPolicyViolation, "circuit breaker "+b.name+" is open")
	}
	b.mu.Unlock()

	callCtx := ctx
	if state == BreakerHalfOpen && b.cfg.HalfOpenProbeTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.cfg.HalfOpenProbeTimeout)
		defer cancel()
	}

	err := fn(callCtx)
	b.record(err == nil, b.clock.Now())
	return err
}

func (b *CircuitBreaker) record(success bool, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls = append(b.calls, callRecord{at: now, success: success})
	cutoff := now.Add(-b.cfg.CallBudgetWindow)
	kept := b.calls[:0]
	for _, c := range b.calls {
		if c.at.After(cutoff) {
			kept = append(kept, c)
		}
	}
	b.calls = kept

	if b.state == BreakerHalfOpen {
		if success {
			b.halfOpenSuccesses++
			if b.halfOpenSuccesses >= b.cfg.HalfOpenSuccessToClose {
				b.state = BreakerClosed
				b.calls = nil
			}
		} else {
			b.trip(now)
		}
		return
	}

	if len(b.calls) < b.cfg.MinCallsInWindow {
		return
	}
	failures := 0
	for _, c := range b.calls {
		if !c.success {
			failures++
		}
	}
	if float64(failures)/float64(len(b.calls)) > b.cfg.ErrorRateThreshold {
		b.trip(now)
	}
}

func (b *CircuitBreaker) trip(now time.Time) {
	b.state = BreakerOpen
	b.openedAt = now
	b.halfOpenSuccesses = 0
}
