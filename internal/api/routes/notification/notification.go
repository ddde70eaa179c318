// Package notification binds the endpoints that queue email and SMS sends.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ahrav/notification-service/internal/api/errs"
	"github.com/ahrav/notification-service/internal/api/mid"
	appNotification "github.com/ahrav/notification-service/internal/app/notification"
	"github.com/ahrav/notification-service/internal/domain/tenant"
	"github.com/ahrav/notification-service/pkg/common/logger"
	"github.com/ahrav/notification-service/pkg/web"
)

// Sender queues notifications.
type Sender interface {
	SendEmail(ctx context.Context, tenantID string, n appNotification.EmailNotification) (string, error)
	SendSMS(ctx context.Context, tenantID string, n appNotification.SMSNotification) (string, error)
}

// Config contains the dependencies needed by the notification handlers.
type Config struct {
	Log     *logger.Logger
	Sender  Sender
	Metrics mid.RequestMetrics
}

// Routes binds the notification endpoints.
func Routes(app *web.App, cfg Config) {
	mw := func(route string) []web.MidFunc {
		if cfg.Metrics == nil {
			return []web.MidFunc{mid.Tenant()}
		}
		return []web.MidFunc{mid.Metrics(cfg.Metrics, route), mid.Tenant()}
	}

	app.HandlerFunc(http.MethodPost, "notification", "/email", sendEmail(cfg), mw("/notification/email")...)
	app.HandlerFunc(http.MethodPost, "notification", "/sms", sendSMS(cfg), mw("/notification/sms")...)
}

// queuedResponse is returned once a notification is published.
type queuedResponse struct {
	EnvelopeID string `json:"envelope_id"`
}

// Encode implements the web.Encoder interface.
func (qr queuedResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(qr)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

func (queuedResponse) HTTPStatus() int { return http.StatusAccepted }

func toAppError(err error) *errs.Error {
	switch {
	case errors.Is(err, appNotification.ErrInvalidNotification), errors.Is(err, tenant.ErrTenantRequired):
		return errs.New(errs.InvalidArgument, err)
	default:
		return errs.New(errs.Unavailable, err)
	}
}

func sendEmail(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		var req appNotification.EmailNotification
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return errs.New(errs.InvalidArgument, err)
		}
		if err := errs.Check(req); err != nil {
			return errs.New(errs.InvalidArgument, err)
		}

		id, _ := tenant.FromContext(ctx)
		envID, err := cfg.Sender.SendEmail(ctx, id, req)
		if err != nil {
			return toAppError(err)
		}
		return queuedResponse{EnvelopeID: envID}
	}
}

func sendSMS(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		var req appNotification.SMSNotification
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return errs.New(errs.InvalidArgument, err)
		}
		if err := errs.Check(req); err != nil {
			return errs.New(errs.InvalidArgument, err)
		}

		id, _ := tenant.FromContext(ctx)
		envID, err := cfg.Sender.SendSMS(ctx, id, req)
		if err != nil {
			return toAppError(err)
		}
		return queuedResponse{EnvelopeID: envID}
	}
}
