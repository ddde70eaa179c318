package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/notification-service/internal/domain/configuration"
	"github.com/ahrav/notification-service/internal/infra/storage"
)

func TestSMSStore_Lifecycle(t *testing.T) {
	t.Parallel()

	pool, cleanup := storage.SetupTestContainer(t)
	defer cleanup()

	store := NewSMSStore(pool, storage.NoOpTracer())
	ctx := context.Background()

	cfg := configuration.SMSConfiguration{
		Identifier:   "twilio",
		AuthToken:    "token",
		AccountSID:   "AC123",
		SenderNumber: "+15550100",
	}
	require.NoError(t, store.Create(ctx, "default", cfg))

	err := store.Create(ctx, "default", cfg)
	require.ErrorIs(t, err, configuration.ErrConfigurationAlreadyExists)

	// Identifiers are unique per tenant only.
	require.NoError(t, store.Create(ctx, "other", cfg))

	found, err := store.FindByIdentifier(ctx, "default", "twilio")
	require.NoError(t, err)
	assert.Equal(t, cfg.Normalized(), found)

	cfg.State = configuration.StateDeactivated
	require.NoError(t, store.Update(ctx, "default", cfg))

	active, err := store.FindAllActive(ctx, "default")
	require.NoError(t, err)
	assert.Empty(t, active)

	active, err = store.FindAllActive(ctx, "other")
	require.NoError(t, err)
	assert.Len(t, active, 1)

	require.NoError(t, store.Delete(ctx, "default", "twilio"))
	exists, err := store.Exists(ctx, "default", "twilio")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.FindByIdentifier(ctx, "default", "twilio")
	assert.ErrorIs(t, err, configuration.ErrConfigurationNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "default", "twilio"), configuration.ErrConfigurationNotFound)
	assert.ErrorIs(t, store.Update(ctx, "default", cfg), configuration.ErrConfigurationNotFound)
}

func TestEmailStore_Lifecycle(t *testing.T) {
	t.Parallel()

	pool, cleanup := storage.SetupTestContainer(t)
	defer cleanup()

	store := NewEmailStore(pool, storage.NoOpTracer())
	ctx := context.Background()

	cfg := configuration.EmailConfiguration{
		Identifier:  "gmail",
		Host:        "smtp.gmail.com",
		Port:        587,
		Username:    "ops@example.com",
		AppPassword: "secret",
		SMTPAuth:    true,
		StartTLS:    true,
	}
	require.NoError(t, store.Create(ctx, "default", cfg))
	require.ErrorIs(t, store.Create(ctx, "default", cfg), configuration.ErrConfigurationAlreadyExists)

	found, err := store.FindByIdentifier(ctx, "default", "gmail")
	require.NoError(t, err)
	assert.Equal(t, cfg.Normalized(), found)

	cfg.Port = 465
	cfg.Protocol = "smtps"
	require.NoError(t, store.Update(ctx, "default", cfg))

	active, err := store.FindAllActive(ctx, "default")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 465, active[0].Port)

	exists, err := store.Exists(ctx, "default", "gmail")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.Delete(ctx, "default", "gmail"))
	assert.ErrorIs(t, store.Delete(ctx, "default", "gmail"), configuration.ErrConfigurationNotFound)
}

func TestMigratorOnConnIsIdempotent(t *testing.T) {
	t.Parallel()

	pool, cleanup := storage.SetupTestContainer(t)
	defer cleanup()

	ctx := context.Background()
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	conn, err := db.Conn(ctx)
	require.NoError(t, err)

	m, err := storage.NewMigratorOnConn(ctx, conn)
	require.NoError(t, err)
	assert.ErrorIs(t, m.Up(), migrate.ErrNoChange, "schema applied by the container setup")

	srcErr, dbErr := m.Close()
	assert.NoError(t, srcErr)
	assert.NoError(t, dbErr)
	assert.ErrorIs(t, conn.PingContext(ctx), sql.ErrConnDone, "closing the migrator closes its connection")
}
