package events

import (
	"time"

	"github.com/google/uuid"
)

// EventEnvelope is the unit of dispatch: a tenant, a selector and an opaque
// payload. Envelopes are values and are never mutated after construction.
type EventEnvelope struct {
	// ID correlates the envelope across logs, traces and transports.
	ID string

	// Tenant scopes every handler invocation for this envelope.
	Tenant string

	// Selector determines which handlers receive the envelope.
	Selector Selector

	// Payload is opaque to the dispatcher; handlers decode it.
	Payload []byte

	// EmittedAt records when the envelope was created by its producer.
	EmittedAt time.Time

	// Metadata holds transport positions when delivered by a broker.
	Metadata EventMetadata
}

// EventMetadata describes where in a stream an envelope was read from.
type EventMetadata struct {
	Partition int32
	Offset    int64
}

// NewEnvelope builds an envelope with a fresh correlation id.
func NewEnvelope(tenant string, selector Selector, payload []byte) EventEnvelope {
	return EventEnvelope{
		ID:        uuid.NewString(),
		Tenant:    tenant,
		Selector:  selector,
		Payload:   payload,
		EmittedAt: time.Now().UTC(),
	}
}
