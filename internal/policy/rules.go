package policy

import (
	"time"

	"github.com/holoncore/travel-orchestrator/holon"
)

// RuleContext carries the saga facts a business rule inspects (§6.3).
type RuleContext struct {
	PriceBefore float64
	PriceAfter  float64

	Confidence float64

	Elapsed       time.Duration
	TimeoutBudget time.Duration

	RevisionCount int
	MaxRevisions  int

	LicensePresent bool
}

// Rule is one business-rule check in the DSL. Rules are small, named,
// and composable rather than one monolithic validator, so a saga template
// can opt into exactly the rules it needs.
type Rule interface {
	Name() string
	Evaluate(ctx RuleContext) error
}

type ruleFunc struct {
	name string
	fn   func(RuleContext) error
}

func (r ruleFunc) Name() string             { return r.name }
func (r ruleFunc) Evaluate(ctx RuleContext) error { return r.fn(ctx) }

// PriceDriftRule rejects a price change exceeding maxDriftRatio of the
// original price (e.g. 0.15 for 15%).
func PriceDriftRule(maxDriftRatio float64) Rule {
	return ruleFunc{name: "price-drift", fn: func(ctx RuleContext) error {
		if ctx.PriceBefore == 0 {
			return nil
		}
		drift := (ctx.PriceAfter - ctx.PriceBefore) / ctx.PriceBefore
		if drift < 0 {
			drift = -drift
		}
		if drift > maxDriftRatio {
			return holon.NewError(holon.KindPolicyViolation, "price drift exceeds allowed ratio")
		}
		return nil
	}}
}

// ConfidenceFloorRule rejects a result below a minimum confidence score.
func ConfidenceFloorRule(minConfidence float64) Rule {
	return ruleFunc{name: "confidence-floor", fn: func(ctx RuleContext) error {
		if ctx.Confidence < minConfidence {
			return holon.NewError(holon.KindPolicyViolation, "confidence below required floor")
		}
		return nil
	}}
}

// TimeoutOverrunRule rejects a saga that has run past its timeout budget.
func TimeoutOverrunRule() Rule {
	return ruleFunc{name: "timeout-overrun", fn: func(ctx RuleContext) error {
		if ctx.TimeoutBudget > 0 && ctx.Elapsed > ctx.TimeoutBudget {
			return holon.NewError(holon.KindTimeout, "saga exceeded its timeout budget")
		}
		return nil
	}}
}

// RevisionCapRule rejects a saga that has been revised more than allowed.
func RevisionCapRule() Rule {
	return ruleFunc{name: "revision-cap", fn: func(ctx RuleContext) error {
		if ctx.MaxRevisions > 0 && ctx.RevisionCount > ctx.MaxRevisions {
			return holon.NewError(holon.KindPolicyViolation, "revision count exceeds the allowed cap")
		}
		return nil
	}}
}

// LicensePresenceRule rejects a saga missing a required license/permit
// flag (e.g. a booking that needs a supplier license on file).
func LicensePresenceRule() Rule {
	return ruleFunc{name: "license-presence", fn: func(ctx RuleContext) error {
		if !ctx.LicensePresent {
			return holon.NewError(holon.KindPolicyViolation, "required license is not present")
		}
		return nil
	}}
}

// RuleSet evaluates every rule against ctx and returns the first failure.
type RuleSet []Rule

func (rs RuleSet) Evaluate(ctx RuleContext) error {
	for _, r := range rs {
		if err := r.Evaluate(ctx); err != nil {
			return err
		}
	}
	return nil
}
