package eventbus

import "time"

// Config tunes one bus instance. Defaults follow §4.1 and §8 literally:
// three retries, exponential backoff with jitter, a history ring of 100.
type Config struct {
	// MaxRetries is the retry cap per delivery before the event moves to
	// the DLQ. Default 3.
	MaxRetries int

	// BaseRetryDelay is the `base_ms` term of
	// base_ms · 2^(attempt-1) + rand[0,100)ms.
	BaseRetryDelay time.Duration

	// HistorySize bounds the in-memory ring buffer per topic.
	HistorySize int

	// SagaLaneHighWaterMark bounds how many pending deliveries a single
	// (subscriber, saga) lane may queue before further events for that
	// pair are dropped straight to the DLQ rather than buffered unbounded
	// (§5 Backpressure).
	SagaLaneHighWaterMark int

	// RequireCorrelationTracking, when true, makes sagaId and
	// correlationId required publish fields; publish fails with
	// SchemaError otherwise (§4.1 Event schema).
	RequireCorrelationTracking bool

	// Source names this bus instance as a CloudEvents source attribute.
	Source string
}

// DefaultConfig returns the literal defaults named in the spec.
func DefaultConfig() Config {
	return Config{
		MaxRetries:            3,
		BaseRetryDelay:        100 * time.Millisecond,
		HistorySize:           100,
		SagaLaneHighWaterMark: 256,
		Source:                "eventbus",
	}
}
