package events

// Selector names the kind of event an envelope carries. Handlers subscribe
// to selectors by exact match; there is no wildcard or prefix routing.
type Selector string

// String returns the selector's wire form.
func (s Selector) String() string { return string(s) }

// Selectors emitted by the notification service.
const (
	SelectorPostEmailConfiguration Selector = "post-email-configuration"
	SelectorPostSMSConfiguration   Selector = "post-sms-configuration"
	SelectorSendEmailNotification  Selector = "send-email-notification"
	SelectorSendSMSNotification    Selector = "send-sms-notification"

	// SelectorInitialize is emitted once after schema migrations complete.
	SelectorInitialize Selector = "initialize"
)

// Transport level names shared by every event bus implementation.
const (
	// Destination is the logical channel all notification envelopes travel on.
	Destination = "notification-v1"

	// HeaderTenant carries the tenant identifier alongside the payload.
	HeaderTenant = "X-Tenant-Identifier"
	// HeaderSelector carries the selector alongside the payload.
	HeaderSelector = "action"
	// HeaderEnvelopeID carries the correlation id of the envelope.
	HeaderEnvelopeID = "envelope-id"
)

// PublishOption is a function type that modifies PublishParams.
// It enables flexible configuration of event publishing behavior through functional options.
type PublishOption func(*PublishParams)

// PublishParams contains configuration options for publishing envelopes.
type PublishParams struct {
	// Key is used as a partition key to control event routing and ordering.
	// Defaults to the envelope tenant so one tenant's events stay ordered.
	Key string
	// Headers contain extra metadata key-value pairs attached to the event.
	Headers map[string]string
}

// WithKey returns a PublishOption that sets the partition key for event routing.
func WithKey(key string) PublishOption {
	return func(p *PublishParams) { p.Key = key }
}

// WithHeaders returns a PublishOption that attaches metadata headers to an event.
func WithHeaders(headers map[string]string) PublishOption {
	return func(p *PublishParams) { p.Headers = headers }
}
