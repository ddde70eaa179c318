// Package recorder captures the envelopes delivered to it so operators and
// end-to-end tests can verify that events were emitted.
package recorder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ahrav/notification-service/internal/domain/events"
)

// Event is one recorded delivery.
type Event struct {
	Tenant     string
	Selector   events.Selector
	Payload    []byte
	RecordedAt time.Time
}

type key struct {
	tenant   string
	selector events.Selector
}

// Registrar is the subset of the selector registry the recorder binds to.
type Registrar interface {
	Register(selector events.Selector, name string, handler events.Handler) error
}

// DefaultSelectors are the selectors Register subscribes to when none are given.
var DefaultSelectors = []events.Selector{
	events.SelectorPostEmailConfiguration,
	events.SelectorPostSMSConfiguration,
	events.SelectorSendEmailNotification,
	events.SelectorSendSMSNotification,
}

// Recorder keeps every event it receives, grouped by tenant and selector.
type Recorder struct {
	mu     sync.Mutex
	events map[key][]Event
	// changed is closed and replaced on every new event.
	changed chan struct{}
	limit   int
}

// New creates a Recorder retaining at most limit events per tenant and
// selector. A limit of zero keeps everything.
func New(limit int) *Recorder {
	return &Recorder{
		events:  make(map[key][]Event),
		changed: make(chan struct{}),
		limit:   limit,
	}
}

// Handler returns an events.Handler recording envelopes under selector.
func (r *Recorder) Handler(selector events.Selector) events.Handler {
	return func(_ context.Context, tenant string, payload []byte) error {
		r.record(tenant, selector, payload)
		return nil
	}
}

// Register subscribes the recorder to selectors, or DefaultSelectors when
// none are passed.
func (r *Recorder) Register(reg Registrar, selectors ...events.Selector) error {
	if len(selectors) == 0 {
		selectors = DefaultSelectors
	}
	for _, s := range selectors {
		if err := reg.Register(s, "recorder", r.Handler(s)); err != nil {
			return fmt.Errorf("registering recorder for %s: %w", s, err)
		}
	}
	return nil
}

func (r *Recorder) record(tenant string, selector events.Selector, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{tenant: tenant, selector: selector}
	evts := append(r.events[k], Event{
		Tenant:     tenant,
		Selector:   selector,
		Payload:    append([]byte(nil), payload...),
		RecordedAt: time.Now().UTC(),
	})
	if r.limit > 0 && len(evts) > r.limit {
		evts = evts[len(evts)-r.limit:]
	}
	r.events[k] = evts

	close(r.changed)
	r.changed = make(chan struct{})
}

// Events returns a copy of the events recorded for tenant and selector,
// oldest first.
func (r *Recorder) Events(tenant string, selector events.Selector) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	evts := r.events[key{tenant: tenant, selector: selector}]
	out := make([]Event, len(evts))
	copy(out, evts)
	return out
}

// Wait blocks until an event for tenant and selector satisfies match, or ctx
// is done. A nil match accepts any event. Events recorded before the call
// are considered.
func (r *Recorder) Wait(ctx context.Context, tenant string, selector events.Selector, match func(Event) bool) (Event, error) {
	k := key{tenant: tenant, selector: selector}
	for {
		r.mu.Lock()
		for _, e := range r.events[k] {
			if match == nil || match(e) {
				r.mu.Unlock()
				return e, nil
			}
		}
		changed := r.changed
		r.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return Event{}, fmt.Errorf("waiting for %s event of tenant %s: %w", selector, tenant, ctx.Err())
		}
	}
}

// Reset drops every recorded event.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = make(map[key][]Event)
}
