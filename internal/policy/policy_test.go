package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAdmissionRateLimitDenial(t *testing.T) {
	a := NewAdmission(AdmissionConfig{PerClientRatePerMinute: 2, MaxActiveSagas: 100}, nil)
	require.NoError(t, a.Admit("client-1", "saga-1", 0))
	require.NoError(t, a.Admit("client-1", "saga-2", 0))
	err := a.Admit("client-1", "saga-3", 0)
	require.Error(t, err)
}

func TestAdmissionQueueDepthDenial(t *testing.T) {
	a := NewAdmission(AdmissionConfig{MaxQueueDepth: 5, MaxActiveSagas: 100}, nil)
	err := a.Admit("client-1", "saga-1", 5)
	require.Error(t, err)
}

func TestAdmissionReleaseFreesSlot(t *testing.T) {
	a := NewAdmission(AdmissionConfig{MaxActiveSagas: 1}, nil)
	require.NoError(t, a.Admit("c", "saga-1", 0))
	require.Error(t, a.Admit("c", "saga-2", 0))
	a.Release("saga-1")
	require.NoError(t, a.Admit("c", "saga-2", 0))
}

func TestComplianceRedactsForbiddenFields(t *testing.T) {
	c := NewCompliance(DefaultComplianceConfig())
	out := c.Redact(map[string]any{"name": "avery", "ssn": "123-45-6789"})
	require.Equal(t, "avery", out["name"])
	require.Equal(t, "***REDACTED***", out["ssn"])
}

func TestComplianceRequiresConsent(t *testing.T) {
	c := NewCompliance(ComplianceConfig{RequireConsent: true})
	require.Error(t, c.ValidateConsent(map[string]any{}))
	require.NoError(t, c.ValidateConsent(map[string]any{"consent": true}))
}

func TestRuleSetRejectsPriceDrift(t *testing.T) {
	rs := RuleSet{PriceDriftRule(0.1)}
	err := rs.Evaluate(RuleContext{PriceBefore: 100, PriceAfter: 130})
	require.Error(t, err)

	err = rs.Evaluate(RuleContext{PriceBefore: 100, PriceAfter: 105})
	require.NoError(t, err)
}

func TestCircuitBreakerTripsAndRecovers(t *testing.T) {
	cfg := BreakerConfig{
		ErrorRateThreshold:     0.5,
		CallBudgetWindow:       time.Minute,
		CooldownPeriod:         10 * time.Millisecond,
		HalfOpenProbeTimeout:   time.Second,
		HalfOpenSuccessToClose: 1,
		MinCallsInWindow:       2,
	}
	b := NewCircuitBreaker("downstream", cfg, nil)

	failing := func(ctx context.Context) error { return errors.New("boom") }
	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), failing)
	}
	require.Equal(t, BreakerOpen, b.State())

	err := b.Execute(context.Background(), func(ctx context.Context) error { return nil })
	require.Error(t, err, "a call while open must be rejected without invoking fn")

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Execute(context.Background(), func(ctx context.Context) error { return nil }))
	require.Equal(t, BreakerClosed, b.State())
}

func TestViolationRingIsBounded(t *testing.T) {
	r := newViolationRing(3)
	for i := 0; i < 5; i++ {
		r.record(Violation{SagaID: "s", Rule: "r"})
	}
	require.Equal(t, 3, r.size())
}
