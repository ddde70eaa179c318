package recorder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/notification-service/internal/domain/events"
	"github.com/ahrav/notification-service/internal/infra/messaging/registry"
	"github.com/ahrav/notification-service/pkg/common/logger"
)

func TestRecorder_RegisterAndRecord(t *testing.T) {
	t.Parallel()

	reg := registry.NewSelectorRegistry(logger.Noop(), noop.NewTracerProvider().Tracer("test"))
	rec := New(0)
	require.NoError(t, rec.Register(reg))
	reg.Freeze()

	for _, s := range DefaultSelectors {
		regs := reg.Lookup(s)
		require.Len(t, regs, 1, s)
		require.NoError(t, regs[0].Handler(context.Background(), "default", []byte(s)))
	}

	evts := rec.Events("default", events.SelectorSendSMSNotification)
	require.Len(t, evts, 1)
	assert.Equal(t, []byte(events.SelectorSendSMSNotification), evts[0].Payload)
	assert.Empty(t, rec.Events("other", events.SelectorSendSMSNotification))
	assert.Empty(t, reg.Lookup(events.SelectorInitialize))
}

func TestRecorder_Limit(t *testing.T) {
	t.Parallel()

	rec := New(2)
	h := rec.Handler(events.SelectorSendEmailNotification)
	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, h(context.Background(), "t", []byte(p)))
	}

	evts := rec.Events("t", events.SelectorSendEmailNotification)
	require.Len(t, evts, 2)
	assert.Equal(t, "b", string(evts[0].Payload))
	assert.Equal(t, "c", string(evts[1].Payload))
}

func TestRecorder_Wait(t *testing.T) {
	t.Parallel()

	rec := New(0)
	h := rec.Handler(events.SelectorPostSMSConfiguration)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = h(context.Background(), "t", []byte("skip"))
		_ = h(context.Background(), "t", []byte("want"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	e, err := rec.Wait(ctx, "t", events.SelectorPostSMSConfiguration, func(e Event) bool {
		return string(e.Payload) == "want"
	})
	require.NoError(t, err)
	assert.Equal(t, "want", string(e.Payload))
}

func TestRecorder_WaitTimeout(t *testing.T) {
	t.Parallel()

	rec := New(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := rec.Wait(ctx, "t", events.SelectorPostSMSConfiguration, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
