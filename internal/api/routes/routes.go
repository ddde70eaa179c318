// Package routes binds every route group of the notification API.
package routes

import (
	"github.com/ahrav/notification-service/internal/api/mux"
	"github.com/ahrav/notification-service/internal/api/routes/configuration"
	"github.com/ahrav/notification-service/internal/api/routes/health"
	"github.com/ahrav/notification-service/internal/api/routes/notification"
	"github.com/ahrav/notification-service/pkg/web"
)

// Routes constructs an add value which provides the implementation of
// RouteAdder for specifying what routes to bind to this instance.
func Routes() add {
	return add{}
}

type add struct{}

// Add implements the RouteAdder interface.
func (add) Add(app *web.App, cfg mux.Config) {
	health.Routes(app, health.Config{
		Build:  cfg.Build,
		Log:    cfg.Log,
		Checks: cfg.Readiness,
	})

	configuration.Routes(app, configuration.Config{
		Log:     cfg.Log,
		SMS:     cfg.SMS,
		Email:   cfg.Email,
		Metrics: cfg.Metrics,
	})

	notification.Routes(app, notification.Config{
		Log:     cfg.Log,
		Sender:  cfg.Notifications,
		Metrics: cfg.Metrics,
	})
}
