package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/notification-service/internal/db"
	"github.com/ahrav/notification-service/internal/domain/configuration"
	"github.com/ahrav/notification-service/internal/infra/storage"
)

var _ configuration.SMSRepository = (*smsStore)(nil)

// smsStore persists SMS gateway configurations in the sms_configurations table.
type smsStore struct {
	q      *db.Queries
	tracer trace.Tracer
}

// NewSMSStore creates a PostgreSQL-backed SMSRepository.
func NewSMSStore(pool *pgxpool.Pool, tracer trace.Tracer) *smsStore {
	return &smsStore{q: db.New(pool), tracer: tracer}
}

func smsParams(tenant string, cfg configuration.SMSConfiguration) db.CreateSMSConfigurationParams {
	cfg = cfg.Normalized()
	return db.CreateSMSConfigurationParams{
		TenantID:     tenant,
		Identifier:   cfg.Identifier,
		AuthToken:    cfg.AuthToken,
		AccountSid:   cfg.AccountSID,
		SenderNumber: cfg.SenderNumber,
		State:        db.ConfigurationState(cfg.State),
	}
}

func toDomainSMS(row db.SmsConfiguration) configuration.SMSConfiguration {
	return configuration.SMSConfiguration{
		Identifier:   row.Identifier,
		AuthToken:    row.AuthToken,
		AccountSID:   row.AccountSid,
		SenderNumber: row.SenderNumber,
		State:        configuration.State(row.State),
	}
}

func (s *smsStore) Create(ctx context.Context, tenant string, cfg configuration.SMSConfiguration) error {
	attrs := storage.Attributes(attribute.String("tenant", tenant), attribute.String("identifier", cfg.Identifier))
	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.configuration.create_sms", attrs, func(ctx context.Context) error {
		if err := s.q.CreateSMSConfiguration(ctx, smsParams(tenant, cfg)); err != nil {
			return fmt.Errorf("failed to create sms configuration %s: %w", cfg.Identifier, translate(err))
		}
		return nil
	})
}

func (s *smsStore) Update(ctx context.Context, tenant string, cfg configuration.SMSConfiguration) error {
	attrs := storage.Attributes(attribute.String("tenant", tenant), attribute.String("identifier", cfg.Identifier))
	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.configuration.update_sms", attrs, func(ctx context.Context) error {
		n, err := s.q.UpdateSMSConfiguration(ctx, smsParams(tenant, cfg))
		if err != nil {
			return fmt.Errorf("failed to update sms configuration %s: %w", cfg.Identifier, err)
		}
		if n == 0 {
			return configuration.ErrConfigurationNotFound
		}
		return nil
	})
}

func (s *smsStore) Delete(ctx context.Context, tenant, identifier string) error {
	attrs := storage.Attributes(attribute.String("tenant", tenant), attribute.String("identifier", identifier))
	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.configuration.delete_sms", attrs, func(ctx context.Context) error {
		n, err := s.q.DeleteSMSConfiguration(ctx, tenant, identifier)
		if err != nil {
			return fmt.Errorf("failed to delete sms configuration %s: %w", identifier, err)
		}
		if n == 0 {
			return configuration.ErrConfigurationNotFound
		}
		return nil
	})
}

func (s *smsStore) FindByIdentifier(ctx context.Context, tenant, identifier string) (configuration.SMSConfiguration, error) {
	attrs := storage.Attributes(attribute.String("tenant", tenant), attribute.String("identifier", identifier))

	var cfg configuration.SMSConfiguration
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.configuration.get_sms", attrs, func(ctx context.Context) error {
		row, err := s.q.GetSMSConfiguration(ctx, tenant, identifier)
		if err != nil {
			return translate(err)
		}
		cfg = toDomainSMS(row)
		return nil
	})
	return cfg, err
}

func (s *smsStore) FindAllActive(ctx context.Context, tenant string) ([]configuration.SMSConfiguration, error) {
	attrs := storage.Attributes(attribute.String("tenant", tenant))

	var cfgs []configuration.SMSConfiguration
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.configuration.list_active_sms", attrs, func(ctx context.Context) error {
		rows, err := s.q.ListActiveSMSConfigurations(ctx, tenant)
		if err != nil {
			return fmt.Errorf("failed to list active sms configurations: %w", err)
		}
		cfgs = make([]configuration.SMSConfiguration, 0, len(rows))
		for _, r := range rows {
			cfgs = append(cfgs, toDomainSMS(r))
		}
		return nil
	})
	return cfgs, err
}

func (s *smsStore) Exists(ctx context.Context, tenant, identifier string) (bool, error) {
	attrs := storage.Attributes(attribute.String("tenant", tenant), attribute.String("identifier", identifier))

	var exists bool
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.configuration.sms_exists", attrs, func(ctx context.Context) error {
		var err error
		exists, err = s.q.SMSConfigurationExists(ctx, tenant, identifier)
		return err
	})
	return exists, err
}
