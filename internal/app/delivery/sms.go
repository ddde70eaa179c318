package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ahrav/notification-service/internal/app/notification"
	"github.com/ahrav/notification-service/internal/domain/configuration"
	eventdispatcher "github.com/ahrav/notification-service/internal/infra/event_dispatcher"
	"github.com/ahrav/notification-service/pkg/common/logger"
)

// SMSSender sends a text message through the account described by cfg.
type SMSSender interface {
	Send(ctx context.Context, cfg configuration.SMSConfiguration, to, body string) error
}

// tenantLimiter hands out one token bucket per tenant.
type tenantLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newTenantLimiter(perSecond float64, burst int) *tenantLimiter {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &tenantLimiter{
		limit:    limit,
		burst:    max(burst, 1),
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *tenantLimiter) get(tenant string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[tenant]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[tenant] = lim
	}
	return lim
}

// SMSDelivererConfig bounds the per-tenant send rate.
type SMSDelivererConfig struct {
	// RatePerSecond of zero disables limiting.
	RatePerSecond float64
	Burst         int
}

// SMSDeliverer handles send-sms-notification events.
type SMSDeliverer struct {
	gateways resolver[configuration.SMSConfiguration]
	sender   SMSSender
	limiter  *tenantLimiter
	logger   *logger.Logger
}

// NewSMSDeliverer creates an SMSDeliverer resolving accounts from cache,
// then repo.
func NewSMSDeliverer(
	cache *Projection[configuration.SMSConfiguration],
	repo configuration.SMSRepository,
	sender SMSSender,
	cfg SMSDelivererConfig,
	logger *logger.Logger,
) *SMSDeliverer {
	return &SMSDeliverer{
		gateways: resolver[configuration.SMSConfiguration]{cache: cache, repo: repo},
		sender:   sender,
		limiter:  newTenantLimiter(cfg.RatePerSecond, cfg.Burst),
		logger:   logger.With("component", "sms_deliverer"),
	}
}

// Handle delivers one SMS notification for tenant, waiting for the tenant's
// rate limit first.
func (d *SMSDeliverer) Handle(ctx context.Context, tenant string, payload []byte) error {
	var n notification.SMSNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return eventdispatcher.Permanent(fmt.Errorf("decoding sms notification: %w", err))
	}
	if n.To == "" {
		return eventdispatcher.Permanent(errors.New("sms notification without recipient"))
	}

	cfg, err := d.gateways.resolve(ctx, tenant, n.Gateway)
	if err != nil {
		return err
	}

	if err := d.limiter.get(tenant).Wait(ctx); err != nil {
		return fmt.Errorf("waiting for sms rate limit: %w", err)
	}

	start := time.Now()
	if err := d.sender.Send(ctx, cfg, n.To, n.Body); err != nil {
		return fmt.Errorf("sending sms via %s: %w", cfg.Identifier, err)
	}

	d.logger.Info(ctx, "sms delivered",
		"tenant", tenant,
		"gateway", cfg.Identifier,
		"duration", time.Since(start),
	)
	return nil
}
