package registry_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/notification-service/internal/domain/events"
	"github.com/ahrav/notification-service/internal/infra/messaging/registry"
	"github.com/ahrav/notification-service/pkg/common/logger"
)

func newTestRegistry() *registry.SelectorRegistry {
	return registry.NewSelectorRegistry(logger.Noop(), noop.NewTracerProvider().Tracer("test"))
}

func nopHandler(context.Context, string, []byte) error { return nil }

func TestRegisterPreservesOrder(t *testing.T) {
	reg := newTestRegistry()
	sel := events.SelectorPostEmailConfiguration

	require.NoError(t, reg.Register(sel, "h1", nopHandler))
	require.NoError(t, reg.Register(sel, "h2", nopHandler))
	require.NoError(t, reg.Register(sel, "h3", nopHandler))
	reg.Freeze()

	regs := reg.Lookup(sel)
	require.Len(t, regs, 3)
	assert.Equal(t, []string{"h1", "h2", "h3"}, []string{regs[0].Name, regs[1].Name, regs[2].Name})
	for _, r := range regs {
		assert.Equal(t, sel, r.Selector)
	}
}

func TestLookupExactMatchOnly(t *testing.T) {
	reg := newTestRegistry()
	require.NoError(t, reg.Register(events.SelectorPostSMSConfiguration, "sms", nopHandler))
	reg.Freeze()

	assert.Nil(t, reg.Lookup("post-sms"))
	assert.Nil(t, reg.Lookup(events.SelectorSendSMSNotification))
	assert.Len(t, reg.Lookup(events.SelectorPostSMSConfiguration), 1)
}

func TestRegisterValidation(t *testing.T) {
	reg := newTestRegistry()

	assert.ErrorIs(t, reg.Register("", "h", nopHandler), registry.ErrEmptySelector)
	assert.ErrorIs(t, reg.Register(events.SelectorInitialize, "h", nil), registry.ErrNilHandler)

	reg.Freeze()
	reg.Freeze()
	assert.True(t, reg.Frozen())
	assert.ErrorIs(t, reg.Register(events.SelectorInitialize, "late", nopHandler), registry.ErrRegistryFrozen)
}

func TestDefaultHandlerName(t *testing.T) {
	reg := newTestRegistry()
	require.NoError(t, reg.Register(events.SelectorInitialize, "", nopHandler))
	require.NoError(t, reg.Register(events.SelectorInitialize, "", nopHandler))

	regs := reg.Lookup(events.SelectorInitialize)
	require.Len(t, regs, 2)
	assert.Equal(t, "initialize#0", regs[0].Name)
	assert.Equal(t, "initialize#1", regs[1].Name)
}

func TestSelectorsSorted(t *testing.T) {
	reg := newTestRegistry()
	require.NoError(t, reg.Register(events.SelectorSendSMSNotification, "a", nopHandler))
	require.NoError(t, reg.Register(events.SelectorPostEmailConfiguration, "b", nopHandler))
	require.NoError(t, reg.Register(events.SelectorInitialize, "c", nopHandler))

	want := []events.Selector{
		events.SelectorInitialize,
		events.SelectorPostEmailConfiguration,
		events.SelectorSendSMSNotification,
	}
	assert.Equal(t, want, reg.Selectors())

	reg.Freeze()
	assert.Equal(t, want, reg.Selectors())
}

func TestLookupSliceIsolatedFromAppends(t *testing.T) {
	reg := newTestRegistry()
	require.NoError(t, reg.Register(events.SelectorInitialize, "a", nopHandler))
	require.NoError(t, reg.Register(events.SelectorInitialize, "b", nopHandler))
	reg.Freeze()

	first := reg.Lookup(events.SelectorInitialize)
	_ = append(first, registry.Registration{Name: "intruder"})

	again := reg.Lookup(events.SelectorInitialize)
	require.Len(t, again, 2)
	assert.Equal(t, "b", again[1].Name)
}

func TestConcurrentLookupAfterFreeze(t *testing.T) {
	reg := newTestRegistry()
	require.NoError(t, reg.Register(events.SelectorSendEmailNotification, "email", nopHandler))
	reg.Freeze()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Len(t, reg.Lookup(events.SelectorSendEmailNotification), 1)
		}()
	}
	wg.Wait()
}
