// Package configuration implements the tenant-scoped management of SMS and
// email gateway configurations. Creating a configuration announces it on the
// event bus so delivery handlers can pick it up without a store round trip.
package configuration

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/notification-service/internal/domain/configuration"
	"github.com/ahrav/notification-service/internal/domain/events"
	"github.com/ahrav/notification-service/internal/domain/tenant"
	"github.com/ahrav/notification-service/pkg/common/logger"
)

// Service manages configurations of one kind.
type Service[T configuration.Record] struct {
	kind      configuration.Kind
	selector  events.Selector
	repo      configuration.Repository[T]
	publisher events.Publisher

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics ServiceMetrics
}

// SMSService manages SMS gateway configurations.
type SMSService = Service[configuration.SMSConfiguration]

// EmailService manages email gateway configurations.
type EmailService = Service[configuration.EmailConfiguration]

func newService[T configuration.Record](
	kind configuration.Kind,
	selector events.Selector,
	repo configuration.Repository[T],
	publisher events.Publisher,
	logger *logger.Logger,
	tracer trace.Tracer,
	metrics ServiceMetrics,
) *Service[T] {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Service[T]{
		kind:      kind,
		selector:  selector,
		repo:      repo,
		publisher: publisher,
		logger:    logger.With("component", "configuration_service", "kind", string(kind)),
		tracer:    tracer,
		metrics:   metrics,
	}
}

// NewSMSService creates a Service announcing new configurations on
// SelectorPostSMSConfiguration.
func NewSMSService(
	repo configuration.SMSRepository,
	publisher events.Publisher,
	logger *logger.Logger,
	tracer trace.Tracer,
	metrics ServiceMetrics,
) *SMSService {
	return newService(configuration.KindSMS, events.SelectorPostSMSConfiguration, repo, publisher, logger, tracer, metrics)
}

// NewEmailService creates a Service announcing new configurations on
// SelectorPostEmailConfiguration.
func NewEmailService(
	repo configuration.EmailRepository,
	publisher events.Publisher,
	logger *logger.Logger,
	tracer trace.Tracer,
	metrics ServiceMetrics,
) *EmailService {
	return newService(configuration.KindEmail, events.SelectorPostEmailConfiguration, repo, publisher, logger, tracer, metrics)
}

func (s *Service[T]) startSpan(ctx context.Context, op, tenantID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("tenant", tenantID),
		attribute.String("kind", string(s.kind)),
	)
	return s.tracer.Start(ctx, "configuration_service."+op, trace.WithAttributes(attrs...))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Create stores cfg for tenantID and announces it. It returns
// ErrConfigurationAlreadyExists when the identifier is taken. A failure to
// announce the configuration is logged and does not fail the call.
func (s *Service[T]) Create(ctx context.Context, tenantID string, cfg T) error {
	ctx, span := s.startSpan(ctx, "create", tenantID, attribute.String("identifier", cfg.Key()))
	defer span.End()

	if tenantID == "" {
		return fail(span, tenant.ErrTenantRequired)
	}

	if err := s.repo.Create(ctx, tenantID, cfg); err != nil {
		return fail(span, fmt.Errorf("creating %s configuration: %w", s.kind, err))
	}
	s.metrics.IncConfigurationsCreated(ctx, string(s.kind))

	// Read back so the announced record carries store defaults.
	stored, err := s.repo.FindByIdentifier(ctx, tenantID, cfg.Key())
	if err != nil {
		stored = cfg
	}
	s.emit(ctx, tenantID, stored)

	span.SetStatus(codes.Ok, "configuration created")
	return nil
}

func (s *Service[T]) emit(ctx context.Context, tenantID string, cfg T) {
	log := logger.NewLoggerContext(s.logger.With(
		"tenant", tenantID,
		"identifier", cfg.Key(),
		"selector", s.selector.String(),
	))

	payload, err := json.Marshal(cfg)
	if err != nil {
		s.metrics.IncEmitFailures(ctx, s.selector.String())
		log.Error(ctx, "failed to encode configuration event", "error", err)
		return
	}

	env := events.NewEnvelope(tenantID, s.selector, payload)
	if err := s.publisher.Publish(ctx, env, events.WithKey(tenantID)); err != nil {
		s.metrics.IncEmitFailures(ctx, s.selector.String())
		log.Error(ctx, "failed to publish configuration event", "envelope_id", env.ID, "error", err)
		return
	}
	log.Debug(ctx, "configuration event published", "envelope_id", env.ID)
}

// Update replaces the stored configuration or returns ErrConfigurationNotFound.
func (s *Service[T]) Update(ctx context.Context, tenantID string, cfg T) error {
	ctx, span := s.startSpan(ctx, "update", tenantID, attribute.String("identifier", cfg.Key()))
	defer span.End()

	if tenantID == "" {
		return fail(span, tenant.ErrTenantRequired)
	}
	if err := s.repo.Update(ctx, tenantID, cfg); err != nil {
		return fail(span, fmt.Errorf("updating %s configuration: %w", s.kind, err))
	}
	return nil
}

// Delete removes the configuration or returns ErrConfigurationNotFound.
func (s *Service[T]) Delete(ctx context.Context, tenantID, identifier string) error {
	ctx, span := s.startSpan(ctx, "delete", tenantID, attribute.String("identifier", identifier))
	defer span.End()

	if tenantID == "" {
		return fail(span, tenant.ErrTenantRequired)
	}
	if err := s.repo.Delete(ctx, tenantID, identifier); err != nil {
		return fail(span, fmt.Errorf("deleting %s configuration: %w", s.kind, err))
	}
	return nil
}

// FindByIdentifier returns the configuration or ErrConfigurationNotFound.
func (s *Service[T]) FindByIdentifier(ctx context.Context, tenantID, identifier string) (T, error) {
	ctx, span := s.startSpan(ctx, "find_by_identifier", tenantID, attribute.String("identifier", identifier))
	defer span.End()

	if tenantID == "" {
		var zero T
		return zero, fail(span, tenant.ErrTenantRequired)
	}
	cfg, err := s.repo.FindByIdentifier(ctx, tenantID, identifier)
	if err != nil {
		return cfg, fail(span, fmt.Errorf("finding %s configuration: %w", s.kind, err))
	}
	return cfg, nil
}

// FindAllActive returns the tenant's ACTIVE configurations.
func (s *Service[T]) FindAllActive(ctx context.Context, tenantID string) ([]T, error) {
	ctx, span := s.startSpan(ctx, "find_all_active", tenantID)
	defer span.End()

	if tenantID == "" {
		return nil, fail(span, tenant.ErrTenantRequired)
	}
	cfgs, err := s.repo.FindAllActive(ctx, tenantID)
	if err != nil {
		return nil, fail(span, fmt.Errorf("listing %s configurations: %w", s.kind, err))
	}
	span.SetAttributes(attribute.Int("count", len(cfgs)))
	return cfgs, nil
}

// Exists reports whether identifier is configured for tenantID.
func (s *Service[T]) Exists(ctx context.Context, tenantID, identifier string) (bool, error) {
	ctx, span := s.startSpan(ctx, "exists", tenantID, attribute.String("identifier", identifier))
	defer span.End()

	if tenantID == "" {
		return false, fail(span, tenant.ErrTenantRequired)
	}
	ok, err := s.repo.Exists(ctx, tenantID, identifier)
	if err != nil {
		return false, fail(span, fmt.Errorf("checking %s configuration: %w", s.kind, err))
	}
	return ok, nil
}
