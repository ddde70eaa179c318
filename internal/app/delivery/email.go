package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ahrav/notification-service/internal/app/notification"
	"github.com/ahrav/notification-service/internal/domain/configuration"
	eventdispatcher "github.com/ahrav/notification-service/internal/infra/event_dispatcher"
	"github.com/ahrav/notification-service/pkg/common/logger"
)

// Mail is a rendered email ready to hand to a MailSender.
type Mail struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// MailSender sends mail through the SMTP account described by cfg.
type MailSender interface {
	Send(ctx context.Context, cfg configuration.EmailConfiguration, mail Mail) error
}

// EmailDeliverer handles send-email-notification events.
type EmailDeliverer struct {
	gateways resolver[configuration.EmailConfiguration]
	sender   MailSender
	logger   *logger.Logger
}

// NewEmailDeliverer creates an EmailDeliverer resolving accounts from cache,
// then repo.
func NewEmailDeliverer(
	cache *Projection[configuration.EmailConfiguration],
	repo configuration.EmailRepository,
	sender MailSender,
	logger *logger.Logger,
) *EmailDeliverer {
	return &EmailDeliverer{
		gateways: resolver[configuration.EmailConfiguration]{cache: cache, repo: repo},
		sender:   sender,
		logger:   logger.With("component", "email_deliverer"),
	}
}

// Handle delivers one email notification for tenant.
func (d *EmailDeliverer) Handle(ctx context.Context, tenant string, payload []byte) error {
	var n notification.EmailNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return eventdispatcher.Permanent(fmt.Errorf("decoding email notification: %w", err))
	}
	if len(n.To) == 0 {
		return eventdispatcher.Permanent(errors.New("email notification without recipients"))
	}

	cfg, err := d.gateways.resolve(ctx, tenant, n.Gateway)
	if err != nil {
		return err
	}

	start := time.Now()
	mail := Mail{From: cfg.Username, To: n.To, Subject: n.Subject, Body: n.Body}
	if err := d.sender.Send(ctx, cfg, mail); err != nil {
		return fmt.Errorf("sending email via %s: %w", cfg.Identifier, err)
	}

	d.logger.Info(ctx, "email delivered",
		"tenant", tenant,
		"gateway", cfg.Identifier,
		"recipients", len(n.To),
		"duration", time.Since(start),
	)
	return nil
}
