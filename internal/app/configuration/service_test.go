package configuration

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/notification-service/internal/domain/configuration"
	"github.com/ahrav/notification-service/internal/domain/events"
	"github.com/ahrav/notification-service/internal/domain/tenant"
	"github.com/ahrav/notification-service/internal/infra/storage/configuration/memory"
	"github.com/ahrav/notification-service/pkg/common/logger"
)

type recordingPublisher struct {
	mu   sync.Mutex
	envs []events.EventEnvelope
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, env events.EventEnvelope, _ ...events.PublishOption) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.envs = append(p.envs, env)
	return nil
}

type countingMetrics struct {
	noopMetrics
	emitFailures int
}

func (m *countingMetrics) IncEmitFailures(context.Context, string) { m.emitFailures++ }

func newSMSService(pub events.Publisher, m ServiceMetrics) *SMSService {
	tracer := noop.NewTracerProvider().Tracer("test")
	return NewSMSService(memory.NewSMSStore(), pub, logger.Noop(), tracer, m)
}

func TestService_CreateEmitsEvent(t *testing.T) {
	t.Parallel()

	pub := new(recordingPublisher)
	svc := newSMSService(pub, nil)

	cfg := configuration.SMSConfiguration{Identifier: "twilio", AuthToken: "t", AccountSID: "s", SenderNumber: "+1"}
	require.NoError(t, svc.Create(context.Background(), "default", cfg))

	require.Len(t, pub.envs, 1)
	env := pub.envs[0]
	assert.Equal(t, "default", env.Tenant)
	assert.Equal(t, events.SelectorPostSMSConfiguration, env.Selector)

	var got configuration.SMSConfiguration
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, "twilio", got.Identifier)
	assert.Equal(t, configuration.StateActive, got.State)
}

func TestService_CreateConflict(t *testing.T) {
	t.Parallel()

	pub := new(recordingPublisher)
	svc := newSMSService(pub, nil)
	ctx := context.Background()
	cfg := configuration.SMSConfiguration{Identifier: "twilio"}

	require.NoError(t, svc.Create(ctx, "default", cfg))
	err := svc.Create(ctx, "default", cfg)
	assert.ErrorIs(t, err, configuration.ErrConfigurationAlreadyExists)
	assert.Len(t, pub.envs, 1, "a rejected create must not be announced")
}

func TestService_EmitFailureIsNotReturned(t *testing.T) {
	t.Parallel()

	m := new(countingMetrics)
	svc := newSMSService(&recordingPublisher{err: errors.New("broker down")}, m)
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, "default", configuration.SMSConfiguration{Identifier: "twilio"}))
	assert.Equal(t, 1, m.emitFailures)

	ok, err := svc.Exists(ctx, "default", "twilio")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestService_NotFound(t *testing.T) {
	t.Parallel()

	svc := newSMSService(new(recordingPublisher), nil)
	ctx := context.Background()

	_, err := svc.FindByIdentifier(ctx, "default", "missing")
	assert.ErrorIs(t, err, configuration.ErrConfigurationNotFound)
	assert.ErrorIs(t, svc.Update(ctx, "default", configuration.SMSConfiguration{Identifier: "missing"}), configuration.ErrConfigurationNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "default", "missing"), configuration.ErrConfigurationNotFound)
}

func TestService_RequiresTenant(t *testing.T) {
	t.Parallel()

	svc := newSMSService(new(recordingPublisher), nil)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Create(ctx, "", configuration.SMSConfiguration{Identifier: "x"}), tenant.ErrTenantRequired)
	_, err := svc.FindAllActive(ctx, "")
	assert.ErrorIs(t, err, tenant.ErrTenantRequired)
}

func TestEmailService_FindAllActive(t *testing.T) {
	t.Parallel()

	pub := new(recordingPublisher)
	svc := NewEmailService(memory.NewEmailStore(), pub, logger.Noop(), noop.NewTracerProvider().Tracer("test"), nil)
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, "default", configuration.EmailConfiguration{Identifier: "a"}))
	require.NoError(t, svc.Create(ctx, "default", configuration.EmailConfiguration{Identifier: "b", State: configuration.StateDeactivated}))

	active, err := svc.FindAllActive(ctx, "default")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a", active[0].Identifier)

	require.Len(t, pub.envs, 2)
	assert.Equal(t, events.SelectorPostEmailConfiguration, pub.envs[0].Selector)
}
