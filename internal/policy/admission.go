// Package policy implements the Policy component (PO): admission control,
// compliance validation, a small business-rule DSL, and circuit breakers
// guarding calls to unreliable dependencies.
package policy

import (
	"sync"
	"time"

	"github.com/holoncore/travel-orchestrator/holon"
)

// AdmissionConfig bounds how much concurrent work the system accepts
// (§6.1).
type AdmissionConfig struct {
	// PerClientRatePerMinute caps requests from a single client within a
	// sliding one-minute window.
	PerClientRatePerMinute int

	// MaxQueueDepth rejects admission once a named queue's depth (as
	// reported by the caller) is at or above this ceiling.
	MaxQueueDepth int

	// MaxActiveSagas caps how many sagas may be admitted and not yet
	// released concurrently.
	MaxActiveSagas int
}

// DefaultAdmissionConfig mirrors the built-in defaults (§6.1).
func DefaultAdmissionConfig() AdmissionConfig {
	return AdmissionConfig{PerClientRatePerMinute: 120, MaxQueueDepth: 1000, MaxActiveSagas: 500}
}

// slidingWindow counts events in the trailing window duration, evicting
// stale timestamps lazily on each check.
type slidingWindow struct {
	window time.Duration
	events []time.Time
}

func newSlidingWindow(window time.Duration) *slidingWindow {
	return &slidingWindow{window: window}
}

func (w *slidingWindow) record(now time.Time) int {
	cutoff := now.Add(-w.window)
	kept := w.events[:0]
	for _, t := range w.events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.events = append(kept, now)
	return len(w.events)
}

// Admission gates new saga/request admission against client rate limits,
// queue depth, and the active-saga concurrency cap (§6.1).
type Admission struct {
	cfg   AdmissionConfig
	clock holon.Clock

	mu           sync.Mutex
	perClient    map[string]*slidingWindow
	activeSagas  map[string]struct{}
}

func NewAdmission(cfg AdmissionConfig, clock holon.Clock) *Admission {
	if clock == nil {
		clock = holon.RealClock
	}
	return &Admission{
		cfg:         cfg,
		clock:       clock,
		perClient:   make(map[string]*slidingWindow),
		activeSagas: make(map[string]struct{}),
	}
}

// Admit decides whether a new saga for clientID may proceed. queueDepth
// is the caller-observed depth of the queue this work would enter.
func (a *Admission) Admit(clientID, sagaID string, queueDepth int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()

	if a.cfg.MaxQueueDepth > 0 && queueDepth >= a.cfg.MaxQueueDepth {
		return holon.NewError(holon.KindQueueFull, "queue depth at capacity", holon.WithRule(clientID))
	}
	if a.cfg.MaxActiveSagas > 0 && len(a.activeSagas) >= a.cfg.MaxActiveSagas {
		return holon.NewError(holon.KindResourceExhausted, "active saga concurrency cap reached")
	}

	if a.cfg.PerClientRatePerMinute > 0 {
		w, ok := a.perClient[clientID]
		if !ok {
			w = newSlidingWindow(time.Minute)
			a.perClient[clientID] = w
		}
		if w.record(now) > a.cfg.PerClientRatePerMinute {
			return holon.NewError(holon.KindRateLimited, "per-client rate limit exceeded", holon.WithRule(clientID))
		}
	}

	a.activeSagas[sagaID] = struct{}{}
	return nil
}

// Release frees a saga's admission slot (§6.1: admission is paired with
// an explicit release on saga termination).
func (a *Admission) Release(sagaID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.activeSagas, sagaID)
}

func (a *Admission) ActiveCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.activeSagas)
}
