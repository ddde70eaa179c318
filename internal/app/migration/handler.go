// Package migration brings the database schema up to date and announces the
// running service version once it has.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/notification-service/internal/domain/events"
	"github.com/ahrav/notification-service/internal/infra/storage"
	"github.com/ahrav/notification-service/pkg/common/logger"
)

// Lease is a single database connection borrowed for the migration run.
type Lease interface {
	Ping(ctx context.Context) error
	// Conn is the connection migrations are applied on.
	Conn() *sql.Conn
	Release()
}

// Pool hands out connection leases.
type Pool interface {
	Acquire(ctx context.Context) (Lease, error)
}

// Migrator applies schema migrations. *migrate.Migrate satisfies it.
type Migrator interface {
	Up() error
	Close() (source error, database error)
}

// MigratorFactory builds a Migrator bound to the leased connection.
type MigratorFactory func(ctx context.Context, lease Lease) (Migrator, error)

type pgxPool struct{ pool *pgxpool.Pool }

func (p pgxPool) Acquire(ctx context.Context) (Lease, error) {
	db := stdlib.OpenDBFromPool(p.pool)
	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqlLease{db: db, conn: conn}, nil
}

// PgxPool adapts a pgx pool to Pool.
func PgxPool(pool *pgxpool.Pool) Pool { return pgxPool{pool: pool} }

type sqlLease struct {
	db   *sql.DB
	conn *sql.Conn
}

func (l *sqlLease) Ping(ctx context.Context) error { return l.conn.PingContext(ctx) }
func (l *sqlLease) Conn() *sql.Conn               { return l.conn }

// Release returns the connection to the pool. The migrator may already have
// closed it.
func (l *sqlLease) Release() {
	_ = l.conn.Close()
	_ = l.db.Close()
}

// EmbeddedMigrations returns a factory for migrators reading the embedded
// schema and writing on the leased connection.
func EmbeddedMigrations() MigratorFactory {
	return func(ctx context.Context, lease Lease) (Migrator, error) {
		m, err := storage.NewMigratorOnConn(ctx, lease.Conn())
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

// Config identifies the service being initialized.
type Config struct {
	// Version is returned by Initialize and carried in the initialize event.
	Version string
	// SystemTenant scopes the initialize event.
	SystemTenant string
}

// Handler runs the initialize command.
type Handler struct {
	cfg         Config
	pool        Pool
	newMigrator MigratorFactory
	publisher   events.Publisher

	logger *logger.Logger
	tracer trace.Tracer
}

// NewHandler creates a migration Handler. A nil publisher skips the
// initialize event.
func NewHandler(
	cfg Config,
	pool Pool,
	newMigrator MigratorFactory,
	publisher events.Publisher,
	logger *logger.Logger,
	tracer trace.Tracer,
) *Handler {
	return &Handler{
		cfg:         cfg,
		pool:        pool,
		newMigrator: newMigrator,
		publisher:   publisher,
		logger:      logger.With("component", "migration_handler"),
		tracer:      tracer,
	}
}

// Initialize applies pending migrations and returns the service version.
// A schema that is already current counts as success. Migrations run on a
// single borrowed connection, which is released on every path.
func (h *Handler) Initialize(ctx context.Context) (string, error) {
	ctx, span := h.tracer.Start(ctx, "migration.initialize",
		trace.WithAttributes(attribute.String("version", h.cfg.Version)))
	defer span.End()

	h.logger.Info(ctx, "starting service migration")

	if err := h.migrate(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.logger.Error(ctx, "service migration failed", "error", err)
		return "", err
	}

	h.emit(ctx)
	span.SetStatus(codes.Ok, "service initialized")
	h.logger.Info(ctx, "service migration finished", "version", h.cfg.Version)
	return h.cfg.Version, nil
}

func (h *Handler) migrate(ctx context.Context) error {
	lease, err := h.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer lease.Release()

	if err := lease.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	m, err := h.newMigrator(ctx, lease)
	if err != nil {
		return fmt.Errorf("preparing migrations: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			h.logger.Warn(ctx, "closing migrator", "source_error", srcErr, "database_error", dbErr)
		}
	}()

	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		h.logger.Debug(ctx, "schema already up to date")
	case err != nil:
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

func (h *Handler) emit(ctx context.Context) {
	if h.publisher == nil {
		return
	}

	env := events.NewEnvelope(h.cfg.SystemTenant, events.SelectorInitialize, []byte(h.cfg.Version))
	if err := h.publisher.Publish(ctx, env, events.WithKey(h.cfg.SystemTenant)); err != nil {
		h.logger.Error(ctx, "failed to publish initialize event", "envelope_id", env.ID, "error", err)
	}
}
