package delivery

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	gomail "github.com/wneessen/go-mail"

	"github.com/ahrav/notification-service/internal/domain/configuration"
	eventdispatcher "github.com/ahrav/notification-service/internal/infra/event_dispatcher"
)

// SMTPSender delivers mail over SMTP, with implicit TLS for the smtps
// protocol and mandatory STARTTLS when the account asks for it.
type SMTPSender struct {
	DialTimeout time.Duration
	// TLSConfig overrides the client TLS settings; ServerName is filled in.
	TLSConfig *tls.Config
}

var _ MailSender = (*SMTPSender)(nil)

// NewSMTPSender creates an SMTPSender with the given dial timeout.
func NewSMTPSender(dialTimeout time.Duration) *SMTPSender {
	return &SMTPSender{DialTimeout: dialTimeout}
}

func (s *SMTPSender) tlsConfig(host string) *tls.Config {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if s.TLSConfig != nil {
		cfg = s.TLSConfig.Clone()
	}
	cfg.ServerName = host
	return cfg
}

func (s *SMTPSender) clientOptions(cfg configuration.EmailConfiguration) []gomail.Option {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSConfig(s.tlsConfig(cfg.Host)),
	}
	if s.DialTimeout > 0 {
		opts = append(opts, gomail.WithTimeout(s.DialTimeout))
	}

	switch {
	case cfg.Protocol == "smtps":
		opts = append(opts, gomail.WithSSL())
	case cfg.StartTLS:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	default:
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	}

	if cfg.SMTPAuth {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.AppPassword),
		)
	}
	return opts
}

// Send opens a session per message. Rejected credentials, senders and
// recipients are permanent; everything else may be retried.
func (s *SMTPSender) Send(ctx context.Context, cfg configuration.EmailConfiguration, mail Mail) error {
	msg, err := buildMessage(mail, time.Now())
	if err != nil {
		return eventdispatcher.Permanent(fmt.Errorf("building message: %w", err))
	}

	client, err := gomail.NewClient(cfg.Host, s.clientOptions(cfg)...)
	if err != nil {
		return eventdispatcher.Permanent(fmt.Errorf("configuring smtp client for %s: %w", cfg.Host, err))
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return classifySMTPError(fmt.Errorf("sending via %s: %w", cfg.Host, err))
	}
	return nil
}

// classifySMTPError marks 5xx replies and rejected envelopes as permanent.
func classifySMTPError(err error) error {
	var sendErr *gomail.SendError
	if errors.As(err, &sendErr) && !sendErr.IsTemp() {
		switch sendErr.Reason {
		case gomail.ErrSMTPMailFrom, gomail.ErrSMTPRcptTo:
			return eventdispatcher.Permanent(err)
		}
	}

	var reply *textproto.Error
	if errors.As(err, &reply) && reply.Code >= 500 {
		return eventdispatcher.Permanent(err)
	}
	return err
}

func buildMessage(mail Mail, now time.Time) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(mail.From); err != nil {
		return nil, fmt.Errorf("sender %q: %w", mail.From, err)
	}
	if err := msg.To(mail.To...); err != nil {
		return nil, fmt.Errorf("recipients: %w", err)
	}

	domain := "localhost"
	if at := strings.LastIndex(mail.From, "@"); at >= 0 {
		domain = mail.From[at+1:]
	}

	msg.Subject(mail.Subject)
	msg.SetDateWithValue(now)
	msg.SetMessageIDWithValue(uuid.NewString() + "@" + domain)
	msg.SetBodyString(gomail.TypeTextPlain, mail.Body)
	return msg, nil
}
