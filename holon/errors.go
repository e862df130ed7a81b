package holon

import (
	"errors"
	"fmt"
)

// Kind identifies the taxonomy of an Error as defined by the error handling
// design: callers branch on Kind via errors.Is against the sentinel below,
// never on the formatted message.
type Kind string

const (
	// KindSchema marks an invalid event or payload shape. Not retried.
	KindSchema Kind = "schema_error"
	// KindNotFound marks a missing saga, namespace, or key. Not retried.
	KindNotFound Kind = "not_found"
	// KindConflict marks a version mismatch, held lock, or duplicate
	// namespace. Retriable by the caller under a fresh read.
	KindConflict Kind = "conflict"
	// KindTimeout marks a state, message, lock, or transaction timeout.
	KindTimeout Kind = "timeout"
	// KindRateLimited marks an admission or rate-limiter denial.
	KindRateLimited Kind = "rate_limited"
	// KindQueueFull marks queue backpressure.
	KindQueueFull Kind = "queue_full"
	// KindResourceExhausted marks a resource-exhaustion backpressure signal.
	KindResourceExhausted Kind = "resource_exhausted"
	// KindCancelled marks cooperative cancellation.
	KindCancelled Kind = "cancelled"
	// KindPolicyViolation marks an admission, compliance, or business-rule
	// denial. Reason carries the human-readable explanation and Rule (if
	// set) names the specific rule that fired.
	KindPolicyViolation Kind = "policy_violation"
	// KindInternal marks a bug or invariant break. Propagated; the owning
	// saga fails.
	KindInternal Kind = "internal"
)

// Error is the single error type returned across EB, SM, QM, PO, and WO.
// User-visible failures carry kind, one-line reason, correlation id, and —
// for policy violations — the rule that fired.
type Error struct {
	Kind          Kind
	Reason        string
	CorrelationID string
	Rule          string
	Cause         error
}

func (e *Error) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("%s: %s (rule=%s)", e.Kind, e.Reason, e.Rule)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, holon.ErrTimeout) style comparisons by matching
// on Kind against a sentinel constructed with that kind alone.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Kind == e.Kind
	}
	return false
}

// Opt mutates an Error during construction.
type Opt func(*Error)

// WithCorrelationID attaches the saga/request correlation id to the error.
func WithCorrelationID(id string) Opt {
	return func(e *Error) { e.CorrelationID = id }
}

// WithRule attaches the specific business/compliance/admission rule name.
func WithRule(rule string) Opt {
	return func(e *Error) { e.Rule = rule }
}

// WithCause wraps an underlying error.
func WithCause(cause error) Opt {
	return func(e *Error) { e.Cause = cause }
}

// NewError constructs a taxonomy error. Every component builds its errors
// through this constructor so callers can errors.As into a single type.
func NewError(kind Kind, reason string, opts ...Opt) *Error {
	e := &Error{Kind: kind, Reason: reason}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// sentinels for errors.Is matching without allocating a reason string.
var (
	ErrSchema            = &Error{Kind: KindSchema}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrTimeout           = &Error{Kind: KindTimeout}
	ErrRateLimited       = &Error{Kind: KindRateLimited}
	ErrQueueFull         = &Error{Kind: KindQueueFull}
	ErrResourceExhausted = &Error{Kind: KindResourceExhausted}
	ErrCancelled         = &Error{Kind: KindCancelled}
	ErrPolicyViolation   = &Error{Kind: KindPolicyViolation}
	ErrInternal          = &Error{Kind: KindInternal}
)
