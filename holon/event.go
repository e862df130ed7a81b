package holon

import (
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// WireEvent is the wire-stable event record described in the external
// interfaces: id, type, data, timestamp, sagaId, correlationId, spanId,
// source, version. It is backed by a CloudEvents v1.0 envelope so it
// serializes as standard CloudEvents JSON — sagaId/correlationId/spanId
// travel as CloudEvents extension attributes, and version as the
// "schemaversion" extension (the CloudEvents spec version is always 1.0).
type WireEvent struct {
	ID            string
	Type          string
	Data          any
	Timestamp     time.Time
	SagaID        string
	CorrelationID string
	SpanID        string
	Source        string
	Version       string
}

const defaultSchemaVersion = "1.0"

// NewWireEvent builds an event with a fresh id and current timestamp. The
// event bus is the only caller that should invoke this directly; every
// other component receives events, it doesn't mint them.
func NewWireEvent(topic, source string, data any, sagaID, correlationID string) WireEvent {
	return WireEvent{
		ID:            uuid.NewString(),
		Type:          topic,
		Data:          data,
		Timestamp:     time.Now(),
		SagaID:        sagaID,
		CorrelationID: correlationID,
		Source:        source,
		Version:       defaultSchemaVersion,
	}
}

// ToCloudEvent renders the event as a CloudEvents v1.0 envelope for
// serialization across process boundaries (HTTP bodies, persisted audit
// logs, message broker payloads).
func (e WireEvent) ToCloudEvent() cloudevents.Event {
	ce := cloudevents.NewEvent()
	ce.SetID(e.ID)
	ce.SetSource(e.Source)
	ce.SetType(e.Type)
	ce.SetTime(e.Timestamp)
	ce.SetSpecVersion(cloudevents.VersionV1)
	ce.SetExtension("sagaid", e.SagaID)
	ce.SetExtension("correlationid", e.CorrelationID)
	ce.SetExtension("spanid", e.SpanID)
	ce.SetExtension("schemaversion", e.Version)
	if e.Data != nil {
		_ = ce.SetData(cloudevents.ApplicationJSON, e.Data)
	}
	return ce
}

// FromCloudEvent recovers a WireEvent from a received CloudEvents envelope.
func FromCloudEvent(ce cloudevents.Event) WireEvent {
	ext := ce.Extensions()
	str := func(key string) string {
		if v, ok := ext[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	var data any
	_ = ce.DataAs(&data)
	version := str("schemaversion")
	if version == "" {
		version = defaultSchemaVersion
	}
	return WireEvent{
		ID:            ce.ID(),
		Type:          ce.Type(),
		Data:          data,
		Timestamp:     ce.Time(),
		SagaID:        str("sagaid"),
		CorrelationID: str("correlationid"),
		SpanID:        str("spanid"),
		Source:        ce.Source(),
		Version:       version,
	}
}
