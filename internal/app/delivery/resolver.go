package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahrav/notification-service/internal/domain/configuration"
	eventdispatcher "github.com/ahrav/notification-service/internal/infra/event_dispatcher"
)

// ErrNoActiveGateway is returned when a tenant has no usable configuration.
var ErrNoActiveGateway = errors.New("no active gateway configured")

// resolver finds the configuration to deliver through. The repository is
// authoritative; the projection only answers while the repository errors.
type resolver[T configuration.Record] struct {
	cache *Projection[T]
	repo  configuration.Repository[T]
}

// resolve returns the pinned gateway when identifier is set, otherwise the
// first active configuration by identifier. A missing or inactive gateway is
// permanent; repository errors without a cached answer are not.
func (r resolver[T]) resolve(ctx context.Context, tenant, identifier string) (T, error) {
	if identifier != "" {
		return r.pinned(ctx, tenant, identifier)
	}
	return r.first(ctx, tenant)
}

func (r resolver[T]) pinned(ctx context.Context, tenant, identifier string) (T, error) {
	var zero T

	cfg, err := r.repo.FindByIdentifier(ctx, tenant, identifier)
	switch {
	case errors.Is(err, configuration.ErrConfigurationNotFound):
		r.cache.Evict(tenant, identifier)
		return zero, eventdispatcher.Permanent(fmt.Errorf("%w: %s", ErrNoActiveGateway, identifier))
	case err != nil:
		cached, ok := r.cache.Get(tenant, identifier)
		if !ok {
			return zero, fmt.Errorf("loading gateway %s: %w", identifier, err)
		}
		cfg = cached
	default:
		r.cache.Put(tenant, cfg)
	}

	if !cfg.IsActive() {
		return zero, eventdispatcher.Permanent(fmt.Errorf("%w: %s is deactivated", ErrNoActiveGateway, identifier))
	}
	return cfg, nil
}

func (r resolver[T]) first(ctx context.Context, tenant string) (T, error) {
	var zero T

	active, err := r.repo.FindAllActive(ctx, tenant)
	if err != nil {
		if cached := r.cache.Active(tenant); len(cached) > 0 {
			return cached[0], nil
		}
		return zero, fmt.Errorf("listing gateways: %w", err)
	}

	r.cache.Replace(tenant, active)
	if len(active) == 0 {
		return zero, eventdispatcher.Permanent(ErrNoActiveGateway)
	}
	return active[0], nil
}
