// Package eventdispatcher routes event envelopes to the handlers subscribed to
// their selector. Every handler runs scoped to the envelope tenant, isolated
// from the others by panic recovery and a per-invocation timeout.
package eventdispatcher

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/ahrav/notification-service/internal/domain/events"
	"github.com/ahrav/notification-service/internal/domain/tenant"
	"github.com/ahrav/notification-service/internal/infra/messaging/registry"
	"github.com/ahrav/notification-service/pkg/common/logger"
)

// HandlerLookup resolves the registrations for a selector.
type HandlerLookup interface {
	Lookup(selector events.Selector) []registry.Registration
}

// Config tunes dispatch behavior. Zero values are replaced by defaults.
type Config struct {
	// HandlerTimeout bounds a single handler invocation.
	HandlerTimeout time.Duration
	// Workers bounds concurrent PublishAsync dispatches.
	Workers int
	// Policy decides whether handler failures surface as errors.
	Policy Policy
}

// DefaultConfig returns a 10s handler timeout and 2×GOMAXPROCS workers.
func DefaultConfig() Config {
	return Config{
		HandlerTimeout: 10 * time.Second,
		Workers:        2 * runtime.GOMAXPROCS(0),
		Policy:         PolicyBestEffort,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = def.HandlerTimeout
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	return c
}

// Dispatcher delivers envelopes to every handler registered for their
// selector, sequentially and in registration order.
//
// Typical usage:
//
//	reg := registry.NewSelectorRegistry(log, tracer)
//	_ = reg.Register(events.SelectorPostSMSConfiguration, "projection", projection.Handle)
//	reg.Freeze()
//
//	d := eventdispatcher.New(reg, eventdispatcher.DefaultConfig(), tracer, log, metrics)
//	res, err := d.Publish(ctx, env)
type Dispatcher struct {
	lookup  HandlerLookup
	cfg     Config
	sem     *semaphore.Weighted
	metrics DispatcherMetrics

	// mu orders Close against new dispatch admissions.
	mu       sync.RWMutex
	closed   atomic.Bool
	inflight sync.WaitGroup

	// baseCtx is cancelled when the shutdown grace period runs out.
	baseCtx context.Context
	cancel  context.CancelFunc

	tracer trace.Tracer
	logger *logger.Logger
}

// New constructs a Dispatcher reading handlers from lookup. A nil metrics
// value disables measurements.
func New(
	lookup HandlerLookup,
	cfg Config,
	tracer trace.Tracer,
	logger *logger.Logger,
	metrics DispatcherMetrics,
) *Dispatcher {
	cfg = cfg.withDefaults()
	if metrics == nil {
		metrics = noopMetrics{}
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		lookup:  lookup,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.Workers)),
		metrics: metrics,
		baseCtx: baseCtx,
		cancel:  cancel,
		tracer:  tracer,
		logger:  logger.With("component", "event_dispatcher"),
	}
}

// Publish dispatches env synchronously and returns once every matched
// handler has either returned or timed out. The Result is always populated;
// the error is non-nil for malformed envelopes, after Close, or when the
// failure policy rejects the outcomes.
func (d *Dispatcher) Publish(ctx context.Context, env events.EventEnvelope) (Result, error) {
	if !d.admit() {
		return newResult(env), ErrDispatcherClosed
	}
	defer d.inflight.Done()

	return d.dispatch(ctx, env)
}

// PublishAsync schedules env on the bounded worker pool. It blocks only
// while every worker is busy, and returns ctx's error if ctx ends first.
// Outcomes of asynchronous dispatches are reported through logs and metrics.
func (d *Dispatcher) PublishAsync(ctx context.Context, env events.EventEnvelope) error {
	return d.PublishAsyncFunc(ctx, env, nil)
}

// PublishAsyncFunc is PublishAsync with a completion callback. onDone runs on
// the worker goroutine once dispatch finishes and is never called when the
// envelope could not be scheduled.
func (d *Dispatcher) PublishAsyncFunc(
	ctx context.Context,
	env events.EventEnvelope,
	onDone func(Result, error),
) error {
	if d.closed.Load() {
		return ErrDispatcherClosed
	}
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquiring dispatch worker: %w", err)
	}
	if !d.admit() {
		d.sem.Release(1)
		return ErrDispatcherClosed
	}

	// The caller's cancellation must not abort work it handed off, but its
	// trace and logging values should carry over.
	detached := context.WithoutCancel(ctx)
	go func() {
		defer d.inflight.Done()
		defer d.sem.Release(1)

		res, err := d.dispatch(detached, env)
		if err != nil {
			d.logger.Warn(detached, "async dispatch rejected",
				"envelope_id", env.ID,
				"selector", env.Selector.String(),
				"tenant", env.Tenant,
				"error", err,
			)
		}
		if onDone != nil {
			onDone(res, err)
		}
	}()

	return nil
}

// Close stops admitting dispatches and waits for in-flight ones. When ctx
// ends before they finish, handler contexts are cancelled and Close waits for
// the dispatches to record their outcomes before returning ctx's error.
// Close may be called more than once.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed.Store(true)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		d.logger.Info(ctx, "dispatcher closed")
		return nil
	case <-ctx.Done():
		d.logger.Warn(ctx, "shutdown grace expired, cancelling in-flight handlers")
		d.cancel()
		<-done
		return fmt.Errorf("dispatcher shutdown grace expired: %w", ctx.Err())
	}
}

func (d *Dispatcher) admit() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed.Load() {
		return false
	}
	d.inflight.Add(1)
	return true
}

func newResult(env events.EventEnvelope) Result {
	return Result{
		EnvelopeID: env.ID,
		Selector:   env.Selector,
		Tenant:     env.Tenant,
	}
}

func validate(env events.EventEnvelope) error {
	switch {
	case env.Tenant == "":
		return &MalformedEnvelopeError{EnvelopeID: env.ID, Reason: "missing tenant"}
	case env.Selector == "":
		return &MalformedEnvelopeError{EnvelopeID: env.ID, Reason: "missing selector"}
	}
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, env events.EventEnvelope) (Result, error) {
	log := logger.NewLoggerContext(d.logger.With(
		"operation", "dispatch",
		"envelope_id", env.ID,
		"selector", env.Selector.String(),
		"tenant", env.Tenant,
		"partition", env.Metadata.Partition,
		"offset", env.Metadata.Offset,
	))
	ctx, span := d.tracer.Start(ctx, "event_dispatcher.publish",
		trace.WithAttributes(
			attribute.String("envelope_id", env.ID),
			attribute.String("selector", env.Selector.String()),
			attribute.String("tenant", env.Tenant),
			attribute.Int("partition", int(env.Metadata.Partition)),
			attribute.Int64("offset", env.Metadata.Offset),
		))
	defer span.End()

	res := newResult(env)

	if err := validate(env); err != nil {
		d.metrics.IncEnvelopesRejected(ctx, env.Selector.String())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn(ctx, "rejected malformed envelope", "error", err)
		return res, err
	}

	regs := d.lookup.Lookup(env.Selector)
	if len(regs) == 0 {
		d.metrics.IncUnmatchedEnvelopes(ctx, env.Selector.String())
		span.AddEvent("no_matching_handler")
		span.SetStatus(codes.Ok, "no matching handler")
		log.Debug(ctx, "no handler subscribed to selector")
		return res, nil
	}
	log.Add("handler_count", len(regs))

	res.Outcomes = make([]Outcome, 0, len(regs))
	for _, reg := range regs {
		res.Outcomes = append(res.Outcomes, d.invoke(ctx, env, reg, log))
	}
	d.metrics.IncEnvelopesDispatched(ctx, env.Selector.String())

	if err := d.cfg.Policy.evaluate(res); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch rejected by failure policy")
		log.Error(ctx, "dispatch rejected by failure policy",
			"policy", d.cfg.Policy.String(),
			"failed", res.Failed(),
			"error", err,
		)
		return res, err
	}

	span.SetStatus(codes.Ok, "envelope dispatched")
	log.Debug(ctx, "envelope dispatched", "failed", res.Failed())
	return res, nil
}

func (d *Dispatcher) invoke(
	ctx context.Context,
	env events.EventEnvelope,
	reg registry.Registration,
	log *logger.LoggerContext,
) Outcome {
	ctx, span := d.tracer.Start(ctx, "event_dispatcher.invoke_handler",
		trace.WithAttributes(
			attribute.String("handler", reg.Name),
			attribute.String("selector", env.Selector.String()),
		))
	defer span.End()

	hctx, cancel := context.WithTimeout(tenant.WithTenant(ctx, env.Tenant), d.cfg.HandlerTimeout)
	defer cancel()
	stop := context.AfterFunc(d.baseCtx, cancel)
	defer stop()

	var attempts atomic.Int32
	hctx = withAttemptCounter(hctx, &attempts)

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- Recover(reg.Name, reg.Handler)(hctx, env.Tenant, env.Payload)
	}()

	var err error
	select {
	case err = <-done:
	case <-hctx.Done():
		// A handler that finished at the deadline still counts as finished.
		select {
		case err = <-done:
		default:
			err = hctx.Err()
		}
	}

	out := Outcome{
		Handler:  reg.Name,
		Status:   StatusSucceeded,
		Duration: time.Since(start),
		Attempts: max(int(attempts.Load()), 1),
	}
	d.metrics.ObserveHandlerDuration(ctx, env.Selector.String(), reg.Name, out.Duration)

	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "handler succeeded")
		return out

	case errors.Is(err, context.DeadlineExceeded) && hctx.Err() != nil:
		out.Status = StatusTimedOut
		out.Err = &HandlerTimeoutError{Handler: reg.Name, Timeout: d.cfg.HandlerTimeout}
		d.metrics.IncHandlerTimeouts(ctx, env.Selector.String(), reg.Name)
		log.Warn(ctx, "handler timed out", "handler", reg.Name, "timeout", d.cfg.HandlerTimeout)

	default:
		out.Status = StatusFailed
		out.Err = &HandlerFailureError{Handler: reg.Name, Err: err}
		d.metrics.IncHandlerFailures(ctx, env.Selector.String(), reg.Name)

		var pe *PanicError
		if errors.As(err, &pe) {
			log.Error(ctx, "handler panicked", "handler", reg.Name, "panic", fmt.Sprint(pe.Value), "stack", string(pe.Stack))
		} else {
			log.Error(ctx, "handler failed", "handler", reg.Name, "attempts", out.Attempts, "error", err)
		}
	}

	span.RecordError(out.Err)
	span.SetStatus(codes.Error, out.Err.Error())
	return out
}
