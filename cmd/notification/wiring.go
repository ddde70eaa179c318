package main

import (
	"context"
	"fmt"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/notification-service/internal/app/delivery"
	"github.com/ahrav/notification-service/internal/app/migration"
	"github.com/ahrav/notification-service/internal/app/recorder"
	"github.com/ahrav/notification-service/internal/config"
	"github.com/ahrav/notification-service/internal/domain/configuration"
	"github.com/ahrav/notification-service/internal/domain/events"
	eventdispatcher "github.com/ahrav/notification-service/internal/infra/event_dispatcher"
	"github.com/ahrav/notification-service/internal/infra/eventbus/kafka"
	"github.com/ahrav/notification-service/internal/infra/eventbus/memory"
	"github.com/ahrav/notification-service/internal/infra/messaging/registry"
	memstore "github.com/ahrav/notification-service/internal/infra/storage/configuration/memory"
	pgstore "github.com/ahrav/notification-service/internal/infra/storage/configuration/postgres"
	"github.com/ahrav/notification-service/pkg/common/logger"
)

type stores struct {
	pool  *pgxpool.Pool
	sms   configuration.SMSRepository
	email configuration.EmailRepository
}

func (s stores) close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func openStores(ctx context.Context, cfg *config.Config, tracer trace.Tracer) (stores, error) {
	if cfg.Storage == config.StorageMemory {
		return stores{sms: memstore.NewSMSStore(), email: memstore.NewEmailStore()}, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN)
	if err != nil {
		return stores{}, fmt.Errorf("parsing db config: %w", err)
	}
	if cfg.Database.MinConns > 0 {
		poolCfg.MinConns = cfg.Database.MinConns
	}
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Database.MaxConns
	}
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return stores{}, fmt.Errorf("creating db pool: %w", err)
	}

	return stores{
		pool:  pool,
		sms:   pgstore.NewSMSStore(pool, tracer),
		email: pgstore.NewEmailStore(pool, tracer),
	}, nil
}

func connectBus(
	cfg *config.Config,
	log *logger.Logger,
	mp metric.MeterProvider,
	tracer trace.Tracer,
) (events.EventBus, error) {
	if cfg.Transport == config.TransportMemory {
		return memory.NewBroker(log), nil
	}

	client, err := kafka.NewClient(&kafka.ClientConfig{
		Brokers:           cfg.Kafka.Brokers,
		ClientID:          cfg.Kafka.ClientID,
		SessionTimeout:    cfg.Kafka.SessionTimeout,
		HeartbeatInterval: cfg.Kafka.HeartbeatInterval,
		InitialOffset:     cfg.Kafka.InitialOffset,
		Rebalance:         cfg.Kafka.Rebalance,
		Version:           cfg.Kafka.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka client: %w", err)
	}

	busMetrics, err := kafka.NewEventBusMetrics(mp)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("creating event bus metrics: %w", err)
	}

	bus, err := kafka.ConnectEventBus(&kafka.EventBusConfig{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          cfg.Kafka.Topic,
		GroupID:        cfg.Kafka.GroupID,
		ClientID:       cfg.Kafka.ClientID,
		ServiceType:    serviceType,
		CommitInterval: cfg.Kafka.CommitInterval,
		MaxInFlight:    cfg.Kafka.MaxInFlight,
	}, client, log, busMetrics, tracer)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting event bus: %w", err)
	}
	return kafkaBus{EventBus: bus, client: client}, nil
}

// kafkaBus closes the shared sarama client after the bus it backs.
type kafkaBus struct {
	*kafka.EventBus
	client interface{ Close() error }
}

func (b kafkaBus) Close() error {
	err := b.EventBus.Close()
	if cerr := b.client.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// registerHandlers binds the gateway projections, the deliverers and,
// when enabled, the event recorder.
func registerHandlers(
	reg *registry.SelectorRegistry,
	cfg *config.Config,
	st stores,
	log *logger.Logger,
) (*recorder.Recorder, error) {
	projection := delivery.NewGatewayProjection()
	retry := cfg.Dispatcher.RetryPolicy()

	sms := delivery.NewSMSDeliverer(
		projection.SMS,
		st.sms,
		delivery.NewHTTPGatewaySender(cfg.SMS.APIBaseURL, cfg.SMS.Timeout),
		delivery.SMSDelivererConfig{RatePerSecond: cfg.SMS.RatePerSecond, Burst: cfg.SMS.Burst},
		log,
	)
	email := delivery.NewEmailDeliverer(projection.Email, st.email, delivery.NewSMTPSender(cfg.SMTP.DialTimeout), log)

	bindings := []struct {
		selector events.Selector
		name     string
		handler  events.Handler
	}{
		{events.SelectorPostSMSConfiguration, "sms_projection", projection.SMS.Handle},
		{events.SelectorPostEmailConfiguration, "email_projection", projection.Email.Handle},
		{events.SelectorSendSMSNotification, "sms_deliverer", eventdispatcher.WithRetry(sms.Handle, retry)},
		{events.SelectorSendEmailNotification, "email_deliverer", eventdispatcher.WithRetry(email.Handle, retry)},
	}
	for _, b := range bindings {
		if err := reg.Register(b.selector, b.name, b.handler); err != nil {
			return nil, err
		}
	}

	if !cfg.Dispatcher.RecordEvents {
		return nil, nil
	}
	rec := recorder.New(cfg.Dispatcher.RecordLimit)
	if err := rec.Register(reg); err != nil {
		return nil, err
	}
	return rec, nil
}

func initialize(
	ctx context.Context,
	cfg *config.Config,
	pool *pgxpool.Pool,
	publisher events.Publisher,
	log *logger.Logger,
	tracer trace.Tracer,
) (string, error) {
	h := migration.NewHandler(
		migration.Config{Version: cfg.Service.Version, SystemTenant: cfg.Service.SystemTenant},
		migration.PgxPool(pool),
		migration.EmbeddedMigrations(),
		publisher,
		log,
		tracer,
	)
	return h.Initialize(ctx)
}
