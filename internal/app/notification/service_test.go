package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/notification-service/internal/domain/events"
	"github.com/ahrav/notification-service/internal/domain/tenant"
	"github.com/ahrav/notification-service/pkg/common/logger"
)

type stubPublisher struct {
	envs []events.EventEnvelope
	err  error
}

func (p *stubPublisher) Publish(_ context.Context, env events.EventEnvelope, _ ...events.PublishOption) error {
	if p.err != nil {
		return p.err
	}
	p.envs = append(p.envs, env)
	return nil
}

func newTestService(pub events.Publisher) *Service {
	return NewService(pub, logger.Noop(), noop.NewTracerProvider().Tracer("test"))
}

func TestSendEmail(t *testing.T) {
	t.Parallel()

	pub := new(stubPublisher)
	svc := newTestService(pub)

	id, err := svc.SendEmail(context.Background(), "default", EmailNotification{
		To:      []string{"ops@example.com"},
		Subject: "hello",
		Body:    "world",
	})
	require.NoError(t, err)

	require.Len(t, pub.envs, 1)
	env := pub.envs[0]
	assert.Equal(t, id, env.ID)
	assert.Equal(t, events.SelectorSendEmailNotification, env.Selector)
	assert.Equal(t, "default", env.Tenant)

	var got EmailNotification
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, "hello", got.Subject)
}

func TestSendSMS_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		n    SMSNotification
	}{
		{"missing recipient", SMSNotification{Body: "hi"}},
		{"not e164", SMSNotification{To: "555-0100", Body: "hi"}},
		{"empty body", SMSNotification{To: "+15550100"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pub := new(stubPublisher)
			_, err := newTestService(pub).SendSMS(context.Background(), "default", tt.n)
			assert.ErrorIs(t, err, ErrInvalidNotification)
			assert.Empty(t, pub.envs)
		})
	}
}

func TestSend_Errors(t *testing.T) {
	t.Parallel()

	_, err := newTestService(new(stubPublisher)).SendSMS(context.Background(), "", SMSNotification{To: "+15550100", Body: "hi"})
	assert.ErrorIs(t, err, tenant.ErrTenantRequired)

	boom := errors.New("broker down")
	_, err = newTestService(&stubPublisher{err: boom}).SendSMS(context.Background(), "default", SMSNotification{To: "+15550100", Body: "hi"})
	assert.ErrorIs(t, err, boom)
}
