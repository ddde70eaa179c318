package events

import "context"

// Handler processes one envelope's payload on behalf of tenant. The tenant
// argument always equals the envelope tenant, and ctx carries the same value.
// Handlers must be idempotent: transports deliver at least once.
type Handler func(ctx context.Context, tenant string, payload []byte) error

// HandlerFunc is the transport facing callback that receives whole envelopes.
type HandlerFunc func(ctx context.Context, env EventEnvelope) error

// AsyncHandlerFunc accepts an envelope for processing and reports the outcome
// through done, possibly after returning. A non-nil return means the envelope
// was not accepted and done will not be called.
type AsyncHandlerFunc func(ctx context.Context, env EventEnvelope, done func(error)) error

// Async adapts h to an AsyncHandlerFunc that completes before returning.
func (h HandlerFunc) Async() AsyncHandlerFunc {
	return func(ctx context.Context, env EventEnvelope, done func(error)) error {
		done(h(ctx, env))
		return nil
	}
}
