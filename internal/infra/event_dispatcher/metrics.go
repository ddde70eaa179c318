package eventdispatcher

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DispatcherMetrics defines the measurements recorded while dispatching.
type DispatcherMetrics interface {
	IncEnvelopesDispatched(ctx context.Context, selector string)
	IncEnvelopesRejected(ctx context.Context, selector string)
	IncUnmatchedEnvelopes(ctx context.Context, selector string)
	IncHandlerFailures(ctx context.Context, selector, handler string)
	IncHandlerTimeouts(ctx context.Context, selector, handler string)
	ObserveHandlerDuration(ctx context.Context, selector, handler string, d time.Duration)
}

const namespace = "event_dispatcher"

type dispatcherMetrics struct {
	envelopesDispatched metric.Int64Counter
	envelopesRejected   metric.Int64Counter
	unmatchedEnvelopes  metric.Int64Counter
	handlerFailures     metric.Int64Counter
	handlerTimeouts     metric.Int64Counter
	handlerDuration     metric.Float64Histogram
}

// NewMetrics creates dispatcher metrics backed by the given meter provider.
func NewMetrics(mp metric.MeterProvider) (DispatcherMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(dispatcherMetrics)
	var err error

	if m.envelopesDispatched, err = meter.Int64Counter(
		"envelopes_dispatched_total",
		metric.WithDescription("Total number of envelopes dispatched"),
	); err != nil {
		return nil, err
	}

	if m.envelopesRejected, err = meter.Int64Counter(
		"envelopes_rejected_total",
		metric.WithDescription("Total number of malformed envelopes rejected before dispatch"),
	); err != nil {
		return nil, err
	}

	if m.unmatchedEnvelopes, err = meter.Int64Counter(
		"envelopes_unmatched_total",
		metric.WithDescription("Total number of envelopes with no subscribed handler"),
	); err != nil {
		return nil, err
	}

	if m.handlerFailures, err = meter.Int64Counter(
		"handler_failures_total",
		metric.WithDescription("Total number of handler invocations that failed"),
	); err != nil {
		return nil, err
	}

	if m.handlerTimeouts, err = meter.Int64Counter(
		"handler_timeouts_total",
		metric.WithDescription("Total number of handler invocations that timed out"),
	); err != nil {
		return nil, err
	}

	if m.handlerDuration, err = meter.Float64Histogram(
		"handler_duration_seconds",
		metric.WithDescription("Handler invocation duration in seconds"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *dispatcherMetrics) IncEnvelopesDispatched(ctx context.Context, selector string) {
	m.envelopesDispatched.Add(ctx, 1, metric.WithAttributes(attribute.String("selector", selector)))
}

func (m *dispatcherMetrics) IncEnvelopesRejected(ctx context.Context, selector string) {
	m.envelopesRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("selector", selector)))
}

func (m *dispatcherMetrics) IncUnmatchedEnvelopes(ctx context.Context, selector string) {
	m.unmatchedEnvelopes.Add(ctx, 1, metric.WithAttributes(attribute.String("selector", selector)))
}

func (m *dispatcherMetrics) IncHandlerFailures(ctx context.Context, selector, handler string) {
	m.handlerFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("selector", selector),
		attribute.String("handler", handler),
	))
}

func (m *dispatcherMetrics) IncHandlerTimeouts(ctx context.Context, selector, handler string) {
	m.handlerTimeouts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("selector", selector),
		attribute.String("handler", handler),
	))
}

func (m *dispatcherMetrics) ObserveHandlerDuration(ctx context.Context, selector, handler string, d time.Duration) {
	m.handlerDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("selector", selector),
		attribute.String("handler", handler),
	))
}

type noopMetrics struct{}

func (noopMetrics) IncEnvelopesDispatched(context.Context, string)                       {}
func (noopMetrics) IncEnvelopesRejected(context.Context, string)                         {}
func (noopMetrics) IncUnmatchedEnvelopes(context.Context, string)                        {}
func (noopMetrics) IncHandlerFailures(context.Context, string, string)                   {}
func (noopMetrics) IncHandlerTimeouts(context.Context, string, string)                   {}
func (noopMetrics) ObserveHandlerDuration(context.Context, string, string, time.Duration) {}
