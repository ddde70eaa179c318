package mid

import (
	"context"
	"net/http"
	"time"

	"github.com/ahrav/notification-service/pkg/web"
)

// RequestMetrics is the subset of the API metrics the middleware records.
type RequestMetrics interface {
	IncRequestsTotal(ctx context.Context, method, path string, status int)
	ObserveRequestDuration(ctx context.Context, method, path string, duration time.Duration)
}

// Metrics counts requests and their latency per route pattern.
func Metrics(metrics RequestMetrics, route string) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			start := time.Now()
			resp := next(ctx, r)

			metrics.IncRequestsTotal(ctx, r.Method, route, statusOf(resp))
			metrics.ObserveRequestDuration(ctx, r.Method, route, time.Since(start))
			return resp
		}

		return h
	}

	return m
}
