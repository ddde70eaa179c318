package delivery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ahrav/notification-service/internal/domain/configuration"
	eventdispatcher "github.com/ahrav/notification-service/internal/infra/event_dispatcher"
)

// HTTPGatewaySender posts messages to a Twilio-style REST API:
// POST {base}/Accounts/{sid}/Messages.json with basic auth.
type HTTPGatewaySender struct {
	baseURL string
	client  *http.Client
}

var _ SMSSender = (*HTTPGatewaySender)(nil)

// NewHTTPGatewaySender creates a sender for baseURL. Requests are traced
// through the otelhttp transport.
func NewHTTPGatewaySender(baseURL string, timeout time.Duration) *HTTPGatewaySender {
	return &HTTPGatewaySender{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Send returns a permanent error for 4xx responses other than 429.
func (s *HTTPGatewaySender) Send(ctx context.Context, cfg configuration.SMSConfiguration, to, body string) error {
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", s.baseURL, url.PathEscape(cfg.AccountSID))

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", cfg.SenderNumber)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return eventdispatcher.Permanent(fmt.Errorf("building gateway request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(cfg.AccountSID, cfg.AuthToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling sms gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	err = fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return eventdispatcher.Permanent(err)
	}
	return err
}
