package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/notification-service/internal/domain/configuration"
)

func TestStore_TenantIsolation(t *testing.T) {
	t.Parallel()

	store := NewSMSStore()
	ctx := context.Background()
	cfg := configuration.SMSConfiguration{Identifier: "twilio", AuthToken: "t", AccountSID: "s", SenderNumber: "n"}

	require.NoError(t, store.Create(ctx, "a", cfg))
	require.NoError(t, store.Create(ctx, "b", cfg))
	assert.ErrorIs(t, store.Create(ctx, "a", cfg), configuration.ErrConfigurationAlreadyExists)

	require.NoError(t, store.Delete(ctx, "a", "twilio"))

	_, err := store.FindByIdentifier(ctx, "a", "twilio")
	assert.ErrorIs(t, err, configuration.ErrConfigurationNotFound)

	got, err := store.FindByIdentifier(ctx, "b", "twilio")
	require.NoError(t, err)
	assert.Equal(t, configuration.StateActive, got.State, "state defaults to active")
}

func TestStore_UpdateAndDeleteMissing(t *testing.T) {
	t.Parallel()

	store := NewEmailStore()
	ctx := context.Background()
	cfg := configuration.EmailConfiguration{Identifier: "gmail"}

	assert.ErrorIs(t, store.Update(ctx, "a", cfg), configuration.ErrConfigurationNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "a", "gmail"), configuration.ErrConfigurationNotFound)

	require.NoError(t, store.Create(ctx, "a", cfg))
	cfg.Host = "smtp.example.com"
	require.NoError(t, store.Update(ctx, "a", cfg))

	got, err := store.FindByIdentifier(ctx, "a", "gmail")
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com", got.Host)
	assert.Equal(t, "smtp", got.Protocol)
}

func TestStore_FindAllActive(t *testing.T) {
	t.Parallel()

	store := NewSMSStore()
	ctx := context.Background()

	for _, c := range []configuration.SMSConfiguration{
		{Identifier: "zeta"},
		{Identifier: "alpha"},
		{Identifier: "off", State: configuration.StateDeactivated},
	} {
		require.NoError(t, store.Create(ctx, "t1", c))
	}

	active, err := store.FindAllActive(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "alpha", active[0].Identifier)
	assert.Equal(t, "zeta", active[1].Identifier)

	active, err = store.FindAllActive(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, active)

	ok, err := store.Exists(ctx, "t1", "off")
	require.NoError(t, err)
	assert.True(t, ok)
}
