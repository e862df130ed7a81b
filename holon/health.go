package holon

import "sync"

// HealthStatus is the tri-state result of a component health check.
type HealthStatus string

const (
	HealthOK       HealthStatus = "ok"
	HealthDegraded HealthStatus = "degraded"
	HealthDown     HealthStatus = "down"
)

// HealthReport is one module's self-reported health, with free-form details
// explaining a non-OK status (e.g. "lock count exceeds threshold").
type HealthReport struct {
	Module  string
	Status  HealthStatus
	Details map[string]any
}

// HealthReporter is implemented by modules that expose a health check. The
// state manager reports "degraded" only when a namespace holds more than
// twice its MaxSize; it does not check memory use, lock counts, or
// transaction counts. The queue manager's per-queue monitors report on their
// own queue metrics.
type HealthReporter interface {
	HealthCheck() HealthReport
}

// HealthAggregator collects reports from every registered HealthReporter and
// rolls them up into a single application-wide status: OK only if every
// module is OK, Down if any module is Down, Degraded otherwise.
type HealthAggregator struct {
	mu        sync.Mutex
	reporters map[string]HealthReporter
}

// NewHealthAggregator constructs an empty aggregator.
func NewHealthAggregator() *HealthAggregator {
	return &HealthAggregator{reporters: make(map[string]HealthReporter)}
}

// Register adds a module's reporter under its name, replacing any prior
// registration for that name.
func (a *HealthAggregator) Register(name string, r HealthReporter) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reporters[name] = r
}

// Aggregate runs every registered health check and returns the rollup.
func (a *HealthAggregator) Aggregate() (HealthStatus, []HealthReport) {
	a.mu.Lock()
	reporters := make(map[string]HealthReporter, len(a.reporters))
	for k, v := range a.reporters {
		reporters[k] = v
	}
	a.mu.Unlock()

	reports := make([]HealthReport, 0, len(reporters))
	overall := HealthOK
	for _, r := range reporters {
		rep := r.HealthCheck()
		reports = append(reports, rep)
		switch rep.Status {
		case HealthDown:
			overall = HealthDown
		case HealthDegraded:
			if overall == HealthOK {
				overall = HealthDegraded
			}
		}
	}
	return overall, reports
}
