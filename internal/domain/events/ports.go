// Package events defines the envelope that carries tenant scoped notification
// events and the ports used to move envelopes between producers and handlers.
package events

import "context"

// Publisher emits envelopes. Implementations must not block indefinitely;
// callers treat publishing as fire-and-forget and only log failures.
type Publisher interface {
	Publish(ctx context.Context, env EventEnvelope, opts ...PublishOption) error
}

// EventBus enables publishing and subscribing to envelopes across process
// boundaries. It abstracts messaging infrastructure details (like Kafka) to
// keep the dispatcher independent of the transport that carries events.
type EventBus interface {
	Publisher

	// Subscribe delivers envelopes whose selector is in selectors to handler.
	// Envelopes with other selectors are acknowledged and dropped.
	Subscribe(ctx context.Context, selectors []Selector, handler HandlerFunc) error

	// SubscribeAsync is Subscribe for handlers that complete out of band.
	// The transport acknowledges an envelope only after done is called.
	SubscribeAsync(ctx context.Context, selectors []Selector, handler AsyncHandlerFunc) error

	// Close releases transport resources.
	Close() error
}
