// Package mid contains the middleware applied to every API route.
package mid

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/notification-service/pkg/common/otel"
	"github.com/ahrav/notification-service/pkg/web"
)

// Otel stores the tracer in the context so handlers can start child spans.
func Otel(tracer trace.Tracer) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			ctx = otel.InjectTracing(ctx, tracer)

			return next(ctx, r)
		}

		return h
	}

	return m
}
