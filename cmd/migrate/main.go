// Command migrate applies the embedded schema migrations and exits. It runs
// the same initialize command the service runs at startup, without a bus.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/notification-service/internal/app/migration"
	"github.com/ahrav/notification-service/internal/config"
	"github.com/ahrav/notification-service/pkg/common/logger"
)

var build = "develop"

func main() {
	configPath := flag.String("config", os.Getenv("NOTIFY_CONFIG_FILE"), "path to an optional YAML config file")
	flag.Parse()

	cfg, err := config.NewViperLoader(*configPath).Load(context.Background())
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	log := logger.New(os.Stdout, logger.ParseLevel(cfg.Log.Level), "MIGRATE", nil)

	ctx := context.Background()
	if err := run(ctx, log, cfg); err != nil {
		log.Error(ctx, "migrate", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger, cfg *config.Config) error {
	if cfg.Storage != config.StoragePostgres {
		return fmt.Errorf("migrations require postgres storage, got %q", cfg.Storage)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("parsing db config: %w", err)
	}
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("creating db pool: %w", err)
	}
	defer pool.Close()

	h := migration.NewHandler(
		migration.Config{Version: build, SystemTenant: cfg.Service.SystemTenant},
		migration.PgxPool(pool),
		migration.EmbeddedMigrations(),
		nil,
		log,
		noop.NewTracerProvider().Tracer("migrate"),
	)

	version, err := h.Initialize(ctx)
	if err != nil {
		return err
	}

	log.Info(ctx, "migrate", "status", "schema current", "version", version)
	return nil
}
