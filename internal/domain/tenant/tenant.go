// Package tenant carries the tenant identifier through request and handler
// contexts.
package tenant

import (
	"context"
	"errors"
	"strings"
)

// ErrTenantRequired is returned when an operation is attempted without a tenant.
var ErrTenantRequired = errors.New("tenant identifier is required")

type ctxKey struct{}

// WithTenant returns a copy of ctx carrying id.
func WithTenant(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the tenant stored in ctx, if any.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// MustFromContext returns the tenant stored in ctx or ErrTenantRequired.
func MustFromContext(ctx context.Context) (string, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return "", ErrTenantRequired
	}
	return id, nil
}

// Normalize trims surrounding whitespace and rejects empty identifiers.
func Normalize(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrTenantRequired
	}
	return id, nil
}
