package policy

import (
	"strings"
	"time"

	"github.com/holoncore/travel-orchestrator/holon"
)

// ComplianceConfig lists the redaction and validation rules compliance
// checks enforce (§6.2).
type ComplianceConfig struct {
	// ForbiddenFields are redacted wherever they appear as map keys in a
	// payload before it leaves the system (logs, events, responses).
	ForbiddenFields []string

	// RequireConsent rejects payloads missing a truthy "consent" flag.
	RequireConsent bool

	// MaxRetentionAge rejects payloads whose recorded age exceeds this
	// duration (data past its retention window must not be processed).
	MaxRetentionAge time.Duration
}

// DefaultComplianceConfig mirrors the built-in defaults (§6.2).
func DefaultComplianceConfig() ComplianceConfig {
	return ComplianceConfig{
		ForbiddenFields: []string{"ssn", "creditCard", "password", "apiKey"},
		RequireConsent:  true,
		MaxRetentionAge: 365 * 24 * time.Hour,
	}
}

// Compliance validates and redacts payloads against ComplianceConfig.
type Compliance struct {
	cfg ComplianceConfig
}

func NewCompliance(cfg ComplianceConfig) *Compliance { return &Compliance{cfg: cfg} }

// Redact walks a map payload and replaces forbidden field values with a
// fixed mask, matching the teacher's field-matching approach: case
// insensitive, exact key match.
func (c *Compliance) Redact(payload map[string]any) map[string]any {
	forbidden := make(map[string]bool, len(c.cfg.ForbiddenFields))
	for _, f := range c.cfg.ForbiddenFields {
		forbidden[strings.ToLower(f)] = true
	}

	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if forbidden[strings.ToLower(k)] {
			out[k] = "***REDACTED***"
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = c.Redact(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// ValidateConsent rejects a payload missing a truthy consent flag when
// RequireConsent is set.
func (c *Compliance) ValidateConsent(payload map[string]any) error {
	if !c.cfg.RequireConsent {
		return nil
	}
	consent, _ := payload["consent"].(bool)
	if !consent {
		return holon.NewError(holon.KindPolicyViolation, "consent flag is required")
	}
	return nil
}

// ValidateRetention rejects data older than MaxRetentionAge.
func (c *Compliance) ValidateRetention(recordedAt time.Time, now time.Time) error {
	if c.cfg.MaxRetentionAge <= 0 {
		return nil
	}
	if now.Sub(recordedAt) > c.cfg.MaxRetentionAge {
		return holon.NewError(holon.KindPolicyViolation, "data exceeds maximum retention age")
	}
	return nil
}

// ValidateToken rejects an empty or explicitly expired token.
func (c *Compliance) ValidateToken(token string, expiresAt *time.Time, now time.Time) error {
	if token == "" {
		return holon.NewError(holon.KindPolicyViolation, "token is required")
	}
	if expiresAt != nil && now.After(*expiresAt) {
		return holon.NewError(holon.KindPolicyViolation, "token has expired")
	}
	return nil
}
