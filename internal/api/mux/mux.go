// Package mux wires the API middleware chain and routes into a single handler.
package mux

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/notification-service/internal/api/mid"
	"github.com/ahrav/notification-service/internal/api/routes/configuration"
	"github.com/ahrav/notification-service/internal/api/routes/health"
	"github.com/ahrav/notification-service/internal/api/routes/notification"
	domain "github.com/ahrav/notification-service/internal/domain/configuration"
	"github.com/ahrav/notification-service/pkg/common/logger"
	"github.com/ahrav/notification-service/pkg/web"
)

// Options represent optional parameters.
type Options struct {
	corsOrigin []string
}

// WithCORS provides configuration options for CORS.
func WithCORS(origins []string) func(opts *Options) {
	return func(opts *Options) {
		opts.corsOrigin = origins
	}
}

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Build         string
	Log           *logger.Logger
	Tracer        trace.Tracer
	SMS           configuration.Service[domain.SMSConfiguration]
	Email         configuration.Service[domain.EmailConfiguration]
	Notifications notification.Sender
	Metrics       mid.RequestMetrics
	Readiness     map[string]health.Check
}

// RouteAdder defines behavior that sets the routes to bind for an instance
// of the service.
type RouteAdder interface {
	Add(app *web.App, cfg Config)
}

// WebAPI constructs a http.Handler with all application routes bound.
func WebAPI(cfg Config, routeAdder RouteAdder, options ...func(opts *Options)) http.Handler {
	logger := func(ctx context.Context, msg string, args ...any) {
		cfg.Log.Info(ctx, msg, args...)
	}

	app := web.NewApp(
		logger,
		cfg.Tracer,
		mid.Otel(cfg.Tracer),
		mid.Logger(cfg.Log),
		mid.Errors(cfg.Log),
		mid.Panics(),
	)

	var opts Options
	for _, option := range options {
		option(&opts)
	}

	if len(opts.corsOrigin) > 0 {
		app.EnableCORS(opts.corsOrigin)
	}

	routeAdder.Add(app, cfg)

	return app
}
