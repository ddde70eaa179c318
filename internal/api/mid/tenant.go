package mid

import (
	"context"
	"net/http"

	"github.com/ahrav/notification-service/internal/api/errs"
	"github.com/ahrav/notification-service/internal/domain/events"
	"github.com/ahrav/notification-service/internal/domain/tenant"
	"github.com/ahrav/notification-service/pkg/web"
)

// Tenant requires the tenant header and scopes the request context to it.
func Tenant() web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			id, err := tenant.Normalize(r.Header.Get(events.HeaderTenant))
			if err != nil {
				return errs.Newf(errs.InvalidArgument, "missing %s header", events.HeaderTenant)
			}

			return next(tenant.WithTenant(ctx, id), r)
		}

		return h
	}

	return m
}
