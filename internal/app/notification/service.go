// Package notification publishes requests to send email and SMS messages.
// Delivery happens asynchronously in the handlers subscribed to the send
// selectors.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/notification-service/internal/domain/events"
	"github.com/ahrav/notification-service/internal/domain/tenant"
	"github.com/ahrav/notification-service/pkg/common/logger"
)

// ErrInvalidNotification wraps validation failures of a notification request.
var ErrInvalidNotification = errors.New("invalid notification")

// EmailNotification is the payload of a send-email-notification event.
type EmailNotification struct {
	To      []string `json:"to" validate:"required,min=1,dive,email"`
	Subject string   `json:"subject" validate:"required,max=998"`
	Body    string   `json:"body" validate:"required"`
	// Gateway optionally pins the email configuration to send through.
	Gateway string `json:"gateway,omitempty"`
}

// SMSNotification is the payload of a send-sms-notification event.
type SMSNotification struct {
	To   string `json:"to" validate:"required,e164"`
	Body string `json:"body" validate:"required,max=1600"`
	// Gateway optionally pins the SMS configuration to send through.
	Gateway string `json:"gateway,omitempty"`
}

// Service turns notification requests into events.
type Service struct {
	publisher events.Publisher
	validate  *validator.Validate

	logger *logger.Logger
	tracer trace.Tracer
}

// NewService creates a notification Service publishing through publisher.
func NewService(publisher events.Publisher, logger *logger.Logger, tracer trace.Tracer) *Service {
	return &Service{
		publisher: publisher,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.With("component", "notification_service"),
		tracer:    tracer,
	}
}

// SendEmail validates n and publishes it for delivery. It returns the
// envelope id assigned to the request.
func (s *Service) SendEmail(ctx context.Context, tenantID string, n EmailNotification) (string, error) {
	return s.send(ctx, tenantID, events.SelectorSendEmailNotification, n)
}

// SendSMS validates n and publishes it for delivery. It returns the envelope
// id assigned to the request.
func (s *Service) SendSMS(ctx context.Context, tenantID string, n SMSNotification) (string, error) {
	return s.send(ctx, tenantID, events.SelectorSendSMSNotification, n)
}

func (s *Service) send(ctx context.Context, tenantID string, selector events.Selector, n any) (string, error) {
	ctx, span := s.tracer.Start(ctx, "notification_service.send",
		trace.WithAttributes(
			attribute.String("tenant", tenantID),
			attribute.String("selector", selector.String()),
		))
	defer span.End()

	if tenantID == "" {
		span.SetStatus(codes.Error, tenant.ErrTenantRequired.Error())
		return "", tenant.ErrTenantRequired
	}
	if err := s.validate.Struct(n); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return "", fmt.Errorf("%w: %w", ErrInvalidNotification, err)
	}

	payload, err := json.Marshal(n)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("encoding notification: %w", err)
	}

	env := events.NewEnvelope(tenantID, selector, payload)
	span.SetAttributes(attribute.String("envelope_id", env.ID))
	if err := s.publisher.Publish(ctx, env, events.WithKey(tenantID)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return "", fmt.Errorf("publishing %s: %w", selector, err)
	}

	s.logger.Debug(ctx, "notification queued",
		"tenant", tenantID,
		"selector", selector.String(),
		"envelope_id", env.ID,
	)
	span.SetStatus(codes.Ok, "notification queued")
	return env.ID, nil
}
