package configuration

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ServiceMetrics records configuration service activity.
type ServiceMetrics interface {
	IncConfigurationsCreated(ctx context.Context, kind string)
	IncEmitFailures(ctx context.Context, selector string)
}

type serviceMetrics struct {
	created      metric.Int64Counter
	emitFailures metric.Int64Counter
}

const namespace = "notification_configuration"

// NewMetrics builds ServiceMetrics on mp.
func NewMetrics(mp metric.MeterProvider) (*serviceMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	created, err := meter.Int64Counter(
		"configurations_created_total",
		metric.WithDescription("Total number of gateway configurations created"),
	)
	if err != nil {
		return nil, err
	}

	emitFailures, err := meter.Int64Counter(
		"configuration_emit_failures_total",
		metric.WithDescription("Total number of configuration events that failed to publish"),
	)
	if err != nil {
		return nil, err
	}

	return &serviceMetrics{created: created, emitFailures: emitFailures}, nil
}

func (m *serviceMetrics) IncConfigurationsCreated(ctx context.Context, kind string) {
	m.created.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *serviceMetrics) IncEmitFailures(ctx context.Context, selector string) {
	m.emitFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("selector", selector)))
}

type noopMetrics struct{}

func (noopMetrics) IncConfigurationsCreated(context.Context, string) {}
func (noopMetrics) IncEmitFailures(context.Context, string)          {}
