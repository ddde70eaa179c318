// Package registry maps selectors to the handlers subscribed to them. It is
// populated once at process start and then frozen, after which lookups read
// an immutable snapshot without locking.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/notification-service/internal/domain/events"
	"github.com/ahrav/notification-service/pkg/common/logger"
)

var (
	// ErrRegistryFrozen is returned by Register once Freeze has been called.
	ErrRegistryFrozen = errors.New("registry is frozen")
	// ErrNilHandler is returned when registering a nil handler.
	ErrNilHandler = errors.New("handler must not be nil")
	// ErrEmptySelector is returned when registering under an empty selector.
	ErrEmptySelector = errors.New("selector must not be empty")
)

// Registration binds a named handler to a selector.
type Registration struct {
	Selector events.Selector
	Name     string
	Handler  events.Handler
}

type table map[events.Selector][]Registration

// SelectorRegistry provides registration and retrieval of handlers keyed by
// exact selector. Multiple handlers may share a selector; they are returned
// in registration order.
type SelectorRegistry struct {
	mu      sync.Mutex
	pending table

	frozen   atomic.Bool
	snapshot atomic.Pointer[table]

	logger *logger.Logger
	tracer trace.Tracer
}

// NewSelectorRegistry creates an empty, unfrozen registry.
func NewSelectorRegistry(logger *logger.Logger, tracer trace.Tracer) *SelectorRegistry {
	return &SelectorRegistry{
		pending: make(table),
		logger:  logger.With("component", "selector_registry"),
		tracer:  tracer,
	}
}

// Register appends handler to the list for selector. An empty name is
// replaced by the selector and the handler's position.
func (r *SelectorRegistry) Register(selector events.Selector, name string, handler events.Handler) error {
	ctx, span := r.tracer.Start(context.Background(), "registry.register",
		trace.WithAttributes(
			attribute.String("selector", selector.String()),
			attribute.String("handler", name),
		))
	defer span.End()

	var err error
	switch {
	case selector == "":
		err = ErrEmptySelector
	case handler == nil:
		err = ErrNilHandler
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		span.SetStatus(codes.Error, ErrRegistryFrozen.Error())
		return ErrRegistryFrozen
	}

	if name == "" {
		name = fmt.Sprintf("%s#%d", selector, len(r.pending[selector]))
	}
	r.pending[selector] = append(r.pending[selector], Registration{
		Selector: selector,
		Name:     name,
		Handler:  handler,
	})

	span.AddEvent("handler_registered")
	span.SetStatus(codes.Ok, "handler registered")
	r.logger.Debug(ctx, "Handler registered for selector", "selector", selector.String(), "handler", name)

	return nil
}

// Freeze ends the registration phase and publishes the lookup snapshot.
// Calling it more than once is a no-op.
func (r *SelectorRegistry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		return
	}

	snap := make(table, len(r.pending))
	for sel, regs := range r.pending {
		snap[sel] = append([]Registration(nil), regs...)
	}
	r.snapshot.Store(&snap)
	r.frozen.Store(true)

	r.logger.Info(context.Background(), "Selector registry frozen", "selectors", len(snap))
}

// Frozen reports whether Freeze has been called.
func (r *SelectorRegistry) Frozen() bool { return r.frozen.Load() }

// Lookup returns the registrations for selector in registration order, or
// nil when nothing is subscribed. The returned slice must not be modified.
func (r *SelectorRegistry) Lookup(selector events.Selector) []Registration {
	if snap := r.snapshot.Load(); snap != nil {
		regs := (*snap)[selector]
		if len(regs) == 0 {
			return nil
		}
		return regs[:len(regs):len(regs)]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	regs := r.pending[selector]
	if len(regs) == 0 {
		return nil
	}
	return append([]Registration(nil), regs...)
}

// Selectors returns every selector with at least one registration, sorted.
func (r *SelectorRegistry) Selectors() []events.Selector {
	var t table
	if snap := r.snapshot.Load(); snap != nil {
		t = *snap
	} else {
		r.mu.Lock()
		defer r.mu.Unlock()
		t = r.pending
	}

	out := make([]events.Selector, 0, len(t))
	for sel, regs := range t {
		if len(regs) > 0 {
			out = append(out, sel)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
