package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"

	"github.com/ahrav/notification-service/internal/app/notification"
	"github.com/ahrav/notification-service/internal/domain/configuration"
	eventdispatcher "github.com/ahrav/notification-service/internal/infra/event_dispatcher"
	"github.com/ahrav/notification-service/internal/infra/storage/configuration/memory"
	"github.com/ahrav/notification-service/pkg/common/logger"
)

type fakeMailSender struct {
	mu   sync.Mutex
	sent []Mail
	cfgs []configuration.EmailConfiguration
	err  error
}

func (f *fakeMailSender) Send(_ context.Context, cfg configuration.EmailConfiguration, mail Mail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, mail)
	f.cfgs = append(f.cfgs, cfg)
	return nil
}

type fakeSMSSender struct {
	mu  sync.Mutex
	to  []string
	via []string
}

func (f *fakeSMSSender) Send(_ context.Context, cfg configuration.SMSConfiguration, to, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.to = append(f.to, to)
	f.via = append(f.via, cfg.Identifier)
	return nil
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestProjection_HandleIsIdempotent(t *testing.T) {
	t.Parallel()

	p := NewProjection[configuration.SMSConfiguration]()
	payload := mustJSON(t, configuration.SMSConfiguration{Identifier: "twilio", State: configuration.StateActive})

	require.NoError(t, p.Handle(context.Background(), "default", payload))
	require.NoError(t, p.Handle(context.Background(), "default", payload))

	assert.Equal(t, 1, p.Len("default"))
	assert.Equal(t, 0, p.Len("other"))

	cfg, ok := p.Get("default", "twilio")
	require.True(t, ok)
	assert.True(t, cfg.IsActive())
}

func TestProjection_MalformedIsPermanent(t *testing.T) {
	t.Parallel()

	p := NewProjection[configuration.EmailConfiguration]()
	err := p.Handle(context.Background(), "default", []byte("{"))
	assert.True(t, eventdispatcher.IsPermanent(err))

	err = p.Handle(context.Background(), "default", []byte(`{"host":"x"}`))
	assert.True(t, eventdispatcher.IsPermanent(err))
}

// unavailableEmailStore fails every read, standing in for a database outage.
type unavailableEmailStore struct {
	configuration.EmailRepository
	err error
}

func (s unavailableEmailStore) FindByIdentifier(context.Context, string, string) (configuration.EmailConfiguration, error) {
	return configuration.EmailConfiguration{}, s.err
}

func (s unavailableEmailStore) FindAllActive(context.Context, string) ([]configuration.EmailConfiguration, error) {
	return nil, s.err
}

func TestEmailDeliverer_ResolvesFromStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := NewProjection[configuration.EmailConfiguration]()
	repo := memory.NewEmailStore()
	sender := new(fakeMailSender)
	d := NewEmailDeliverer(cache, repo, sender, logger.Noop())

	payload := mustJSON(t, notification.EmailNotification{To: []string{"a@example.com"}, Subject: "s", Body: "b"})

	err := d.Handle(ctx, "default", payload)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoActiveGateway)
	assert.True(t, eventdispatcher.IsPermanent(err))

	require.NoError(t, repo.Create(ctx, "default", configuration.EmailConfiguration{Identifier: "stored", Username: "ops@example.com"}))
	require.NoError(t, d.Handle(ctx, "default", payload))
	require.Len(t, sender.cfgs, 1)
	assert.Equal(t, "stored", sender.cfgs[0].Identifier)
	assert.Equal(t, "ops@example.com", sender.sent[0].From)
	assert.Equal(t, 1, cache.Len("default"), "store reads refresh the cache")
}

func TestEmailDeliverer_SkipsRemovedGateways(t *testing.T) {
	t.Parallel()

	announced := configuration.EmailConfiguration{Identifier: "old", Username: "ops@example.com", State: configuration.StateActive}

	tests := []struct {
		name   string
		remove func(ctx context.Context, repo configuration.EmailRepository) error
	}{
		{
			name: "deleted",
			remove: func(ctx context.Context, repo configuration.EmailRepository) error {
				return repo.Delete(ctx, "t1", "old")
			},
		},
		{
			name: "deactivated",
			remove: func(ctx context.Context, repo configuration.EmailRepository) error {
				off := announced
				off.State = configuration.StateDeactivated
				return repo.Update(ctx, "t1", off)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			cache := NewProjection[configuration.EmailConfiguration]()
			repo := memory.NewEmailStore()
			sender := new(fakeMailSender)
			d := NewEmailDeliverer(cache, repo, sender, logger.Noop())

			require.NoError(t, repo.Create(ctx, "t1", announced))
			require.NoError(t, cache.Handle(ctx, "t1", mustJSON(t, announced)))
			require.NoError(t, tt.remove(ctx, repo))

			for _, gw := range []string{"", "old"} {
				payload := mustJSON(t, notification.EmailNotification{To: []string{"a@example.com"}, Gateway: gw})
				err := d.Handle(ctx, "t1", payload)
				assert.ErrorIs(t, err, ErrNoActiveGateway, "gateway %q", gw)
				assert.True(t, eventdispatcher.IsPermanent(err), "gateway %q", gw)
			}
			assert.Empty(t, sender.sent)
			assert.Empty(t, cache.Active("t1"))
		})
	}
}

func TestEmailDeliverer_FallsBackToCacheWhileStoreIsDown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	outage := errors.New("connection refused")
	cache := NewProjection[configuration.EmailConfiguration]()
	sender := new(fakeMailSender)
	d := NewEmailDeliverer(cache, unavailableEmailStore{err: outage}, sender, logger.Noop())
	payload := mustJSON(t, notification.EmailNotification{To: []string{"a@example.com"}})

	err := d.Handle(ctx, "default", payload)
	assert.ErrorIs(t, err, outage)
	assert.False(t, eventdispatcher.IsPermanent(err), "outages are retried")

	cache.Put("default", configuration.EmailConfiguration{Identifier: "announced", State: configuration.StateActive})
	require.NoError(t, d.Handle(ctx, "default", payload))
	require.Len(t, sender.cfgs, 1)
	assert.Equal(t, "announced", sender.cfgs[0].Identifier)

	pinned := mustJSON(t, notification.EmailNotification{To: []string{"a@example.com"}, Gateway: "announced"})
	require.NoError(t, d.Handle(ctx, "default", pinned))
}

func TestEmailDeliverer_PinnedGateway(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewEmailStore()
	require.NoError(t, repo.Create(ctx, "default", configuration.EmailConfiguration{Identifier: "off", State: configuration.StateDeactivated}))
	require.NoError(t, repo.Create(ctx, "default", configuration.EmailConfiguration{Identifier: "on"}))
	sender := new(fakeMailSender)
	d := NewEmailDeliverer(NewProjection[configuration.EmailConfiguration](), repo, sender, logger.Noop())

	for _, gw := range []string{"off", "missing"} {
		payload := mustJSON(t, notification.EmailNotification{To: []string{"a@example.com"}, Gateway: gw})
		err := d.Handle(ctx, "default", payload)
		assert.ErrorIs(t, err, ErrNoActiveGateway, gw)
		assert.True(t, eventdispatcher.IsPermanent(err), gw)
	}

	require.NoError(t, d.Handle(ctx, "default", mustJSON(t, notification.EmailNotification{To: []string{"a@example.com"}, Gateway: "on"})))
	require.Len(t, sender.cfgs, 1)
	assert.Equal(t, "on", sender.cfgs[0].Identifier)
}

func TestEmailDeliverer_SenderErrorIsRetryable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewEmailStore()
	require.NoError(t, repo.Create(ctx, "default", configuration.EmailConfiguration{Identifier: "gmail"}))
	boom := errors.New("connection reset")
	d := NewEmailDeliverer(NewProjection[configuration.EmailConfiguration](), repo, &fakeMailSender{err: boom}, logger.Noop())

	err := d.Handle(ctx, "default", mustJSON(t, notification.EmailNotification{To: []string{"a@example.com"}}))
	assert.ErrorIs(t, err, boom)
	assert.False(t, eventdispatcher.IsPermanent(err))
}

func TestSMSDeliverer_Handle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewSMSStore()
	require.NoError(t, repo.Create(ctx, "default", configuration.SMSConfiguration{Identifier: "twilio"}))
	sender := new(fakeSMSSender)
	d := NewSMSDeliverer(NewProjection[configuration.SMSConfiguration](), repo, sender, SMSDelivererConfig{}, logger.Noop())

	require.NoError(t, d.Handle(ctx, "default", mustJSON(t, notification.SMSNotification{To: "+15550100", Body: "hi"})))
	assert.Equal(t, []string{"+15550100"}, sender.to)
	assert.Equal(t, []string{"twilio"}, sender.via)

	err := d.Handle(ctx, "default", []byte("not json"))
	assert.True(t, eventdispatcher.IsPermanent(err))
}

func TestSMSDeliverer_RateLimitHonorsContext(t *testing.T) {
	t.Parallel()

	repo := memory.NewSMSStore()
	for _, tenant := range []string{"default", "other"} {
		require.NoError(t, repo.Create(context.Background(), tenant, configuration.SMSConfiguration{Identifier: "twilio"}))
	}
	d := NewSMSDeliverer(NewProjection[configuration.SMSConfiguration](), repo, new(fakeSMSSender), SMSDelivererConfig{RatePerSecond: 0.001, Burst: 1}, logger.Noop())
	payload := mustJSON(t, notification.SMSNotification{To: "+15550100", Body: "hi"})

	require.NoError(t, d.Handle(context.Background(), "default", payload))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, d.Handle(ctx, "default", payload), "bucket is empty")

	// Other tenants have their own bucket.
	require.NoError(t, d.Handle(context.Background(), "other", payload))
}

func TestHTTPGatewaySender(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		status        int
		wantErr       bool
		wantPermanent bool
	}{
		{"created", http.StatusCreated, false, false},
		{"bad request", http.StatusBadRequest, true, true},
		{"throttled", http.StatusTooManyRequests, true, false},
		{"unavailable", http.StatusServiceUnavailable, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/Accounts/AC1/Messages.json", r.URL.Path)
				user, pass, ok := r.BasicAuth()
				assert.True(t, ok)
				assert.Equal(t, "AC1", user)
				assert.Equal(t, "secret", pass)
				assert.NoError(t, r.ParseForm())
				assert.Equal(t, "+15550100", r.PostForm.Get("To"))
				assert.Equal(t, "+15550199", r.PostForm.Get("From"))
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			s := NewHTTPGatewaySender(srv.URL+"/", time.Second)
			cfg := configuration.SMSConfiguration{AccountSID: "AC1", AuthToken: "secret", SenderNumber: "+15550199"}
			err := s.Send(context.Background(), cfg, "+15550100", "hi")

			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantPermanent, eventdispatcher.IsPermanent(err))
		})
	}
}

func TestBuildMessage(t *testing.T) {
	t.Parallel()

	msg, err := buildMessage(Mail{
		From:    "ops@example.com",
		To:      []string{"a@example.com", "b@example.com"},
		Subject: "Grüße",
		Body:    "line one\nline two",
	}, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()
	lower := strings.ToLower(raw)

	assert.Contains(t, raw, "a@example.com")
	assert.Contains(t, raw, "b@example.com")
	assert.Contains(t, lower, "subject: =?utf-8?q?")
	assert.Contains(t, lower, "message-id: <")
	assert.Contains(t, raw, "@example.com>")
	assert.Contains(t, raw, "line one")
	assert.Contains(t, raw, "line two")

	_, err = buildMessage(Mail{From: "not an address", To: []string{"a@example.com"}}, time.Now())
	assert.Error(t, err)
}

func TestClassifySMTPError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		err           error
		wantPermanent bool
	}{
		{name: "rejected recipient", err: &gomail.SendError{Reason: gomail.ErrSMTPRcptTo}, wantPermanent: true},
		{name: "rejected sender", err: &gomail.SendError{Reason: gomail.ErrSMTPMailFrom}, wantPermanent: true},
		{name: "bad credentials", err: fmt.Errorf("SMTP AUTH failed: %w", &textproto.Error{Code: 535, Msg: "auth failed"}), wantPermanent: true},
		{name: "greylisted", err: &textproto.Error{Code: 451, Msg: "try later"}},
		{name: "connection reset", err: errors.New("connection reset by peer")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := classifySMTPError(tt.err)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.wantPermanent, eventdispatcher.IsPermanent(err))
		})
	}
}

func TestSMTPSender_ClientOptions(t *testing.T) {
	t.Parallel()

	s := NewSMTPSender(time.Second)
	for _, cfg := range []configuration.EmailConfiguration{
		{Host: "smtp.example.com", Port: 465, Protocol: "smtps", SMTPAuth: true, Username: "u", AppPassword: "p"},
		{Host: "smtp.example.com", Port: 587, Protocol: "smtp", StartTLS: true},
		{Host: "localhost", Port: 25, Protocol: "smtp"},
	} {
		_, err := gomail.NewClient(cfg.Host, s.clientOptions(cfg)...)
		assert.NoError(t, err, "%s:%d", cfg.Host, cfg.Port)
	}
}
