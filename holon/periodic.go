package holon

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// PeriodicTask replaces ad hoc setInterval-style maintenance loops (TTL
// expiry, eviction, replication catch-up, health checks, breaker probing)
// with explicit, cancellable scheduled work. Two scheduling styles are
// supported: a fixed interval (the common case for sub-minute sweeps) and a
// cron expression (for coarser schedules like nightly reconciliation).
type PeriodicTask struct {
	cron   *cron.Cron
	mu     sync.Mutex
	cancel []func()
}

// NewPeriodicTask constructs a scheduler. Call Stop to cancel every
// scheduled task during module shutdown.
func NewPeriodicTask() *PeriodicTask {
	return &PeriodicTask{cron: cron.New()}
}

// Every runs fn on a fixed interval until the scheduler is stopped or ctx is
// cancelled, whichever comes first. fn is not invoked concurrently with
// itself — a slow run delays, but never overlaps, the next tick.
func (p *PeriodicTask) Every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	runCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = append(p.cancel, cancel)
	p.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				fn(runCtx)
			}
		}
	}()
}

// Cron runs fn on the given cron schedule until the scheduler is stopped.
func (p *PeriodicTask) Cron(spec string, fn func()) error {
	_, err := p.cron.AddFunc(spec, fn)
	return err
}

// Start begins any cron-scheduled work. Interval-scheduled work (Every)
// starts immediately when registered and does not need Start.
func (p *PeriodicTask) Start() {
	p.cron.Start()
}

// Stop cancels every interval task and stops the cron scheduler, waiting
// for in-flight cron jobs to finish.
func (p *PeriodicTask) Stop() {
	p.mu.Lock()
	cancels := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	<-p.cron.Stop().Done()
}
