package policy

import (
	"context"
	"sync"
	"time"

	"github.com/holoncore/travel-orchestrator/holon"
)

// ServiceName is the key other components use to look up the Policy.
const ServiceName = "policy"

// Config bundles every policy concern's configuration.
type Config struct {
	Admission  AdmissionConfig
	Compliance ComplianceConfig
	Breaker    BreakerConfig
}

func DefaultConfig() Config {
	return Config{Admission: DefaultAdmissionConfig(), Compliance: DefaultComplianceConfig(), Breaker: DefaultBreakerConfig()}
}

// Policy is the top-level Policy component (PO): admission control,
// compliance validation, business rules, and named circuit breakers, all
// sharing one violation ledger (§6).
type Policy struct {
	cfg Config
	log holon.Logger

	Admission  *Admission
	Compliance *Compliance

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	rules    map[string]RuleSet

	violations *violationRing
}

// New constructs a Policy component from cfg.
func New(cfg Config, log holon.Logger) *Policy {
	if log == nil {
		log = holon.NopLogger{}
	}
	return &Policy{
		cfg:        cfg,
		log:        log,
		Admission:  NewAdmission(cfg.Admission, holon.RealClock),
		Compliance: NewCompliance(cfg.Compliance),
		breakers:   make(map[string]*CircuitBreaker),
		rules:      make(map[string]RuleSet),
		violations: newViolationRing(1000),
	}
}

// Breaker returns the named circuit breaker, creating it with the
// policy's default BreakerConfig on first use.
func (p *Policy) Breaker(name string) *CircuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.breakers[name]; ok {
		return b
	}
	b := NewCircuitBreaker(name, p.cfg.Breaker, holon.RealClock)
	p.breakers[name] = b
	return b
}

// RegisterRuleSet associates a named RuleSet with a saga template so the
// workflow orchestrator can evaluate it by name at the relevant state
// transition.
func (p *Policy) RegisterRuleSet(name string, rules RuleSet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules[name] = rules
}

// EvaluateRules runs a named RuleSet against ctx, recording a Violation
// and returning the failure if any rule rejects it.
func (p *Policy) EvaluateRules(sagaID, ruleSetName string, ctx RuleContext) error {
	p.mu.Lock()
	rules, ok := p.rules[ruleSetName]
	p.mu.Unlock()
	if !ok {
		return nil
	}
	if err := rules.Evaluate(ctx); err != nil {
		p.violations.record(Violation{SagaID: sagaID, Rule: ruleSetName, Reason: err.Error(), Timestamp: time.Now()})
		p.log.Warn("business rule violation", "saga", sagaID, "ruleSet", ruleSetName, "error", err.Error())
		return err
	}
	return nil
}

// RecordViolation lets admission/compliance callers log a violation
// outside the rule-set path (e.g. a compliance check failure).
func (p *Policy) RecordViolation(sagaID, rule, reason string) {
	p.violations.record(Violation{SagaID: sagaID, Rule: rule, Reason: reason, Timestamp: time.Now()})
}

// RecentViolations returns up to n of the most recently recorded
// violations (0 means all currently buffered, up to 1000).
func (p *Policy) RecentViolations(n int) []Violation {
	return p.violations.recent(n)
}

func (p *Policy) Start(ctx context.Context) error { return nil }
func (p *Policy) Stop(ctx context.Context) error  { return nil }

// HealthCheck reports degraded when any breaker is open and down when
// the violation ledger is saturated (indicating sustained policy
// pressure rather than isolated incidents).
func (p *Policy) HealthCheck() holon.HealthReport {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := holon.HealthOK
	breakerStates := make(map[string]any, len(p.breakers))
	for name, b := range p.breakers {
		s := b.State()
		breakerStates[name] = s.String()
		if s == BreakerOpen && status == holon.HealthOK {
			status = holon.HealthDegraded
		}
	}
	if p.violations.size() >= 1000 {
		status = holon.HealthDown
	}
	return holon.HealthReport{
		Module: ServiceName,
		Status: status,
		Details: map[string]any{
			"breakers":         breakerStates,
			"active_sagas":     p.Admission.ActiveCount(),
			"violation_count":  p.violations.size(),
		},
	}
}
