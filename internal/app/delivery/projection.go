// Package delivery holds the event handlers that keep the gateway cache warm
// and deliver queued email and SMS notifications.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ahrav/notification-service/internal/domain/configuration"
	eventdispatcher "github.com/ahrav/notification-service/internal/infra/event_dispatcher"
)

// Projection caches configurations of one kind per tenant. Announcements
// and repository reads keep it current; deliverers fall back to it only
// while the repository is unavailable. Applying the same announcement twice
// leaves the cache unchanged.
type Projection[T configuration.Record] struct {
	mu      sync.RWMutex
	tenants map[string]map[string]T
}

// NewProjection creates an empty Projection.
func NewProjection[T configuration.Record]() *Projection[T] {
	return &Projection[T]{tenants: make(map[string]map[string]T)}
}

// Handle decodes a configuration announcement and upserts it for tenant.
// Undecodable payloads fail permanently.
func (p *Projection[T]) Handle(_ context.Context, tenant string, payload []byte) error {
	var cfg T
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return eventdispatcher.Permanent(fmt.Errorf("decoding configuration: %w", err))
	}
	if cfg.Key() == "" {
		return eventdispatcher.Permanent(errors.New("configuration without identifier"))
	}

	p.Put(tenant, cfg)
	return nil
}

// Put stores cfg for tenant, replacing any previous value.
func (p *Projection[T]) Put(tenant string, cfg T) {
	p.mu.Lock()
	defer p.mu.Unlock()

	byID, ok := p.tenants[tenant]
	if !ok {
		byID = make(map[string]T)
		p.tenants[tenant] = byID
	}
	byID[cfg.Key()] = cfg
}

// Evict drops identifier from the tenant's cache.
func (p *Projection[T]) Evict(tenant, identifier string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.tenants[tenant], identifier)
}

// Replace swaps the tenant's cache for cfgs.
func (p *Projection[T]) Replace(tenant string, cfgs []T) {
	byID := make(map[string]T, len(cfgs))
	for _, cfg := range cfgs {
		byID[cfg.Key()] = cfg
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.tenants[tenant] = byID
}

// Get returns the cached configuration for tenant and identifier.
func (p *Projection[T]) Get(tenant, identifier string) (T, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	cfg, ok := p.tenants[tenant][identifier]
	return cfg, ok
}

// Active returns the tenant's cached ACTIVE configurations by identifier.
func (p *Projection[T]) Active(tenant string) []T {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []T
	for _, cfg := range p.tenants[tenant] {
		if cfg.IsActive() {
			out = append(out, cfg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Len returns how many configurations are cached for tenant.
func (p *Projection[T]) Len(tenant string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.tenants[tenant])
}

// GatewayProjection pairs the SMS and email caches.
type GatewayProjection struct {
	SMS   *Projection[configuration.SMSConfiguration]
	Email *Projection[configuration.EmailConfiguration]
}

// NewGatewayProjection creates empty SMS and email caches.
func NewGatewayProjection() *GatewayProjection {
	return &GatewayProjection{
		SMS:   NewProjection[configuration.SMSConfiguration](),
		Email: NewProjection[configuration.EmailConfiguration](),
	}
}
