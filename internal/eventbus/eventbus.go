// Package eventbus implements the Event Bus (EB): topic-addressed pub/sub
// with at-least-once delivery, per-saga FIFO ordering, bounded retry with
// exponential backoff plus jitter, dead-letter routing, and bounded
// in-memory event history.
package eventbus

import (
	"context"

	"github.com/holoncore/travel-orchestrator/holon"
)

// Event is the wire-stable event record (§6): id, type, data, timestamp,
// sagaId, correlationId, spanId, source, version.
type Event = holon.WireEvent

// Handler processes a delivered event. A non-nil error triggers the bus's
// retry policy (if the subscription's RetryOnFailure is set) and,
// eventually, dead-letter routing.
type Handler func(ctx context.Context, event Event) error

// SubscribeOptions configures a single subscription.
type SubscribeOptions struct {
	// RetryOnFailure enables the retry-then-DLQ pipeline for this
	// subscription. Defaults to true; set false for at-most-once,
	// exactly-once-on-success handlers (see the "retry=off" law in §8).
	RetryOnFailure bool
}

// DefaultSubscribeOptions matches the spec's "retry flag (default on)".
func DefaultSubscribeOptions() SubscribeOptions {
	return SubscribeOptions{RetryOnFailure: true}
}

// HistoryFilter narrows History() results.
type HistoryFilter struct {
	SagaID string
	Type   string
	Since  Event // zero value means "no lower bound"; only Timestamp is read
}

// Subscription is a handle to a live registration, returned indirectly
// through an ID but also usable directly for cancellation.
type Subscription interface {
	ID() string
	Topic() string
	Cancel() error
}

// Bus is the Event Bus contract (§4.1).
type Bus interface {
	holon.Startable
	holon.Stoppable

	// Subscribe registers handler for topic; unknown topics are
	// auto-created with a warning logged, never an error.
	Subscribe(topic string, handler Handler, opts SubscribeOptions) (string, error)

	// Unsubscribe removes a subscription by id. Returns false if the id is
	// unknown (already unsubscribed or never existed).
	Unsubscribe(subscriptionID string) bool

	// Publish validates the event against the schema, assigns it an id if
	// unset, appends it to the bounded history ring, then delivers it to
	// every subscriber of topic. SchemaError is returned synchronously;
	// delivery itself is asynchronous and at-least-once.
	Publish(ctx context.Context, topic string, payload any, opts ...PublishOption) (string, error)

	// History returns up to 100 recent events matching filter.
	History(filter HistoryFilter) []Event
}

// PublishOption customizes a single Publish call.
type PublishOption func(*publishParams)

type publishParams struct {
	sagaID, correlationID, spanID, source string
}

// WithSagaID attaches a saga id to the published event.
func WithSagaID(id string) PublishOption { return func(p *publishParams) { p.sagaID = id } }

// WithCorrelationID attaches a correlation id to the published event.
func WithCorrelationID(id string) PublishOption {
	return func(p *publishParams) { p.correlationID = id }
}

// WithSpanID attaches a trace span id to the published event.
func WithSpanID(id string) PublishOption { return func(p *publishParams) { p.spanID = id } }

// WithSource overrides the default bus source name for this event.
func WithSource(name string) PublishOption { return func(p *publishParams) { p.source = name } }
