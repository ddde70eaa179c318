// Package configuration binds the gateway configuration endpoints.
package configuration

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ahrav/notification-service/internal/api/errs"
	"github.com/ahrav/notification-service/internal/api/mid"
	appConfig "github.com/ahrav/notification-service/internal/app/configuration"
	"github.com/ahrav/notification-service/internal/domain/configuration"
	"github.com/ahrav/notification-service/internal/domain/tenant"
	"github.com/ahrav/notification-service/pkg/common/logger"
	"github.com/ahrav/notification-service/pkg/web"
)

// Service is the configuration service surface the handlers use.
type Service[T configuration.Record] interface {
	Create(ctx context.Context, tenantID string, cfg T) error
	Update(ctx context.Context, tenantID string, cfg T) error
	Delete(ctx context.Context, tenantID, identifier string) error
	FindByIdentifier(ctx context.Context, tenantID, identifier string) (T, error)
	FindAllActive(ctx context.Context, tenantID string) ([]T, error)
	Exists(ctx context.Context, tenantID, identifier string) (bool, error)
}

var (
	_ Service[configuration.SMSConfiguration]   = (*appConfig.SMSService)(nil)
	_ Service[configuration.EmailConfiguration] = (*appConfig.EmailService)(nil)
)

// Config contains the dependencies needed by the configuration handlers.
type Config struct {
	Log     *logger.Logger
	SMS     Service[configuration.SMSConfiguration]
	Email   Service[configuration.EmailConfiguration]
	Metrics mid.RequestMetrics
}

const group = "configuration"

// Routes binds the SMS and email configuration endpoints. Every route
// requires the tenant header.
func Routes(app *web.App, cfg Config) {
	bind(app, "/sms", cfg.SMS, cfg.Metrics)
	bind(app, "/email", cfg.Email, cfg.Metrics)
}

func bind[T configuration.Record](app *web.App, prefix string, svc Service[T], metrics mid.RequestMetrics) {
	h := handlers[T]{svc: svc}
	route := func(method, path string, fn web.HandlerFunc) {
		mw := []web.MidFunc{mid.Tenant()}
		if metrics != nil {
			mw = append([]web.MidFunc{mid.Metrics(metrics, "/"+group+prefix+path)}, mw...)
		}
		app.HandlerFunc(method, group, prefix+path, fn, mw...)
	}

	route(http.MethodGet, "/active", h.active)
	route(http.MethodGet, "/{identifier}", h.find)
	route(http.MethodPost, "/create", h.create)
	route(http.MethodPut, "/update", h.update)
	route(http.MethodDelete, "/delete/{identifier}", h.delete)
}

type handlers[T configuration.Record] struct {
	svc Service[T]
}

func (h handlers[T]) active(ctx context.Context, r *http.Request) web.Encoder {
	id, _ := tenant.FromContext(ctx)

	cfgs, err := h.svc.FindAllActive(ctx, id)
	if err != nil {
		return toAppError(err)
	}
	if cfgs == nil {
		cfgs = []T{}
	}
	return jsonResponse{value: cfgs, status: http.StatusOK}
}

func (h handlers[T]) find(ctx context.Context, r *http.Request) web.Encoder {
	id, _ := tenant.FromContext(ctx)
	identifier := web.Param(r, "identifier")

	cfg, err := h.svc.FindByIdentifier(ctx, id, identifier)
	if err != nil {
		if errors.Is(err, configuration.ErrConfigurationNotFound) {
			return errs.Newf(errs.NotFound, "gateway configuration with identifier %s doesn't exist", identifier)
		}
		return toAppError(err)
	}
	return jsonResponse{value: cfg, status: http.StatusOK}
}

func decode[T configuration.Record](r *http.Request) (T, *errs.Error) {
	var cfg T
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		return cfg, errs.New(errs.InvalidArgument, err)
	}
	if err := errs.Check(cfg); err != nil {
		return cfg, errs.New(errs.InvalidArgument, err)
	}
	return cfg, nil
}

func (h handlers[T]) create(ctx context.Context, r *http.Request) web.Encoder {
	id, _ := tenant.FromContext(ctx)

	cfg, appErr := decode[T](r)
	if appErr != nil {
		return appErr
	}

	if err := h.svc.Create(ctx, id, cfg); err != nil {
		if errors.Is(err, configuration.ErrConfigurationAlreadyExists) {
			return errs.Newf(errs.AlreadyExists, "configuration %s already exists", cfg.Key())
		}
		return toAppError(err)
	}
	return statusResponse{status: http.StatusCreated}
}

func (h handlers[T]) update(ctx context.Context, r *http.Request) web.Encoder {
	id, _ := tenant.FromContext(ctx)

	cfg, appErr := decode[T](r)
	if appErr != nil {
		return appErr
	}

	if err := h.svc.Update(ctx, id, cfg); err != nil {
		return toAppError(err)
	}
	return statusResponse{status: http.StatusAccepted}
}

func (h handlers[T]) delete(ctx context.Context, r *http.Request) web.Encoder {
	id, _ := tenant.FromContext(ctx)

	if err := h.svc.Delete(ctx, id, web.Param(r, "identifier")); err != nil {
		return toAppError(err)
	}
	return statusResponse{status: http.StatusOK}
}

func toAppError(err error) *errs.Error {
	switch {
	case errors.Is(err, configuration.ErrConfigurationNotFound):
		return errs.New(errs.NotFound, err)
	case errors.Is(err, configuration.ErrConfigurationAlreadyExists):
		return errs.New(errs.AlreadyExists, err)
	case errors.Is(err, tenant.ErrTenantRequired):
		return errs.New(errs.InvalidArgument, err)
	default:
		return errs.New(errs.Internal, err)
	}
}

type jsonResponse struct {
	value  any
	status int
}

// Encode implements the web.Encoder interface.
func (jr jsonResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(jr.value)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

func (jr jsonResponse) HTTPStatus() int { return jr.status }

// statusResponse carries only a status code.
type statusResponse struct {
	status int
}

// Encode implements the web.Encoder interface.
func (statusResponse) Encode() ([]byte, string, error) { return nil, "application/json", nil }

func (sr statusResponse) HTTPStatus() int { return sr.status }
