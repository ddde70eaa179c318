package events_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/notification-service/internal/domain/events"
)

func TestNewEnvelopeAssignsIdentity(t *testing.T) {
	payload := []byte(`{"identifier":"twilio"}`)

	a := events.NewEnvelope("t1", events.SelectorPostSMSConfiguration, payload)
	b := events.NewEnvelope("t1", events.SelectorPostSMSConfiguration, payload)

	require.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID, "each envelope gets its own correlation id")
	assert.Equal(t, "t1", a.Tenant)
	assert.Equal(t, events.SelectorPostSMSConfiguration, a.Selector)
	assert.Equal(t, payload, a.Payload)
	assert.False(t, a.EmittedAt.IsZero())
	assert.Zero(t, a.Metadata)
}

func TestPublishOptions(t *testing.T) {
	var p events.PublishParams
	for _, opt := range []events.PublishOption{
		events.WithKey("tenant-a"),
		events.WithHeaders(map[string]string{"source": "api"}),
	} {
		opt(&p)
	}

	assert.Equal(t, "tenant-a", p.Key)
	assert.Equal(t, map[string]string{"source": "api"}, p.Headers)
}

func TestHandlerFuncAsyncCompletesInline(t *testing.T) {
	wantErr := errors.New("boom")
	h := events.HandlerFunc(func(context.Context, events.EventEnvelope) error { return wantErr })

	var got error
	calls := 0
	err := h.Async()(context.Background(), events.EventEnvelope{}, func(err error) {
		calls++
		got = err
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, got, wantErr)
}
