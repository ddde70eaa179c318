// Package memory provides an in-memory implementation of the event bus.
// It offers a lightweight, non-persistent broker suitable for tests and
// single-process deployments where durability is not required.
package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ahrav/notification-service/internal/domain/events"
	"github.com/ahrav/notification-service/pkg/common/logger"
)

// ErrBrokerClosed is returned by Publish and Subscribe after Close.
var ErrBrokerClosed = errors.New("memory broker is closed")

var _ events.EventBus = (*Broker)(nil)

type subscription struct {
	id        uint64
	selectors map[events.Selector]struct{}
	handler   events.AsyncHandlerFunc
}

// Broker delivers every published envelope synchronously to each subscriber
// whose selector set contains the envelope selector. Like a real transport,
// a subscriber error does not fail the publisher; it is only logged.
type Broker struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	closed bool

	offset atomic.Int64
	logger *logger.Logger
}

// NewBroker creates an empty broker.
func NewBroker(logger *logger.Logger) *Broker {
	return &Broker{logger: logger.With("component", "memory_event_bus")}
}

// Subscribe registers handler for selectors until ctx is done or the broker
// is closed.
func (b *Broker) Subscribe(ctx context.Context, selectors []events.Selector, handler events.HandlerFunc) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	return b.SubscribeAsync(ctx, selectors, handler.Async())
}

// SubscribeAsync registers an asynchronous handler. Publish returns once the
// handler has accepted the envelope; completions are only logged.
func (b *Broker) SubscribeAsync(ctx context.Context, selectors []events.Selector, handler events.AsyncHandlerFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	set := make(map[events.Selector]struct{}, len(selectors))
	for _, s := range selectors {
		set[s] = struct{}{}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBrokerClosed
	}
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, selectors: set, handler: handler})
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.unsubscribe(id)
	}()

	return nil
}

func (b *Broker) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers env to matching subscribers. Delivered envelopes carry a
// monotonically increasing offset in their metadata.
func (b *Broker) Publish(ctx context.Context, env events.EventEnvelope, _ ...events.PublishOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBrokerClosed
	}
	// Copy so handlers run without holding the lock.
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	env.Metadata = events.EventMetadata{Offset: b.offset.Add(1) - 1}

	for _, s := range subs {
		if _, ok := s.selectors[env.Selector]; !ok {
			continue
		}
		if err := s.handler(ctx, env, b.reportFailure(ctx, env)); err != nil {
			b.logger.Error(ctx, "subscriber did not accept envelope",
				"envelope_id", env.ID,
				"selector", env.Selector.String(),
				"tenant", env.Tenant,
				"error", err,
			)
		}
	}
	return nil
}

func (b *Broker) reportFailure(ctx context.Context, env events.EventEnvelope) func(error) {
	return func(err error) {
		if err == nil {
			return
		}
		b.logger.Error(ctx, "subscriber failed to handle envelope",
			"envelope_id", env.ID,
			"selector", env.Selector.String(),
			"tenant", env.Tenant,
			"error", err,
		)
	}
}

// Close drops every subscription. Subsequent calls are no-ops.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.subs = nil
	return nil
}
