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

var _ configuration.EmailRepository = (*emailStore)(nil)

// emailStore persists SMTP gateway configurations in the email_configurations table.
type emailStore struct {
	q      *db.Queries
	tracer trace.Tracer
}

// NewEmailStore creates a PostgreSQL-backed EmailRepository.
func NewEmailStore(pool *pgxpool.Pool, tracer trace.Tracer) *emailStore {
	return &emailStore{q: db.New(pool), tracer: tracer}
}

func emailParams(tenant string, cfg configuration.EmailConfiguration) db.CreateEmailConfigurationParams {
	cfg = cfg.Normalized()
	return db.CreateEmailConfigurationParams{
		TenantID:    tenant,
		Identifier:  cfg.Identifier,
		Host:        cfg.Host,
		Port:        int32(cfg.Port),
		Protocol:    cfg.Protocol,
		Username:    cfg.Username,
		AppPassword: cfg.AppPassword,
		SmtpAuth:    cfg.SMTPAuth,
		StartTls:    cfg.StartTLS,
		State:       db.ConfigurationState(cfg.State),
	}
}

func toDomainEmail(row db.EmailConfiguration) configuration.EmailConfiguration {
	return configuration.EmailConfiguration{
		Identifier:  row.Identifier,
		Host:        row.Host,
		Port:        int(row.Port),
		Protocol:    row.Protocol,
		Username:    row.Username,
		AppPassword: row.AppPassword,
		SMTPAuth:    row.SmtpAuth,
		StartTLS:    row.StartTls,
		State:       configuration.State(row.State),
	}
}

func (s *emailStore) Create(ctx context.Context, tenant string, cfg configuration.EmailConfiguration) error {
	attrs := storage.Attributes(attribute.String("tenant", tenant), attribute.String("identifier", cfg.Identifier))
	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.configuration.create_email", attrs, func(ctx context.Context) error {
		if err := s.q.CreateEmailConfiguration(ctx, emailParams(tenant, cfg)); err != nil {
			return fmt.Errorf("failed to create email configuration %s: %w", cfg.Identifier, translate(err))
		}
		return nil
	})
}

func (s *emailStore) Update(ctx context.Context, tenant string, cfg configuration.EmailConfiguration) error {
	attrs := storage.Attributes(attribute.String("tenant", tenant), attribute.String("identifier", cfg.Identifier))
	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.configuration.update_email", attrs, func(ctx context.Context) error {
		n, err := s.q.UpdateEmailConfiguration(ctx, emailParams(tenant, cfg))
		if err != nil {
			return fmt.Errorf("failed to update email configuration %s: %w", cfg.Identifier, err)
		}
		if n == 0 {
			return configuration.ErrConfigurationNotFound
		}
		return nil
	})
}

func (s *emailStore) Delete(ctx context.Context, tenant, identifier string) error {
	attrs := storage.Attributes(attribute.String("tenant", tenant), attribute.String("identifier", identifier))
	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.configuration.delete_email", attrs, func(ctx context.Context) error {
		n, err := s.q.DeleteEmailConfiguration(ctx, tenant, identifier)
		if err != nil {
			return fmt.Errorf("failed to delete email configuration %s: %w", identifier, err)
		}
		if n == 0 {
			return configuration.ErrConfigurationNotFound
		}
		return nil
	})
}

func (s *emailStore) FindByIdentifier(ctx context.Context, tenant, identifier string) (configuration.EmailConfiguration, error) {
	attrs := storage.Attributes(attribute.String("tenant", tenant), attribute.String("identifier", identifier))

	var cfg configuration.EmailConfiguration
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.configuration.get_email", attrs, func(ctx context.Context) error {
		row, err := s.q.GetEmailConfiguration(ctx, tenant, identifier)
		if err != nil {
			return translate(err)
		}
		cfg = toDomainEmail(row)
		return nil
	})
	return cfg, err
}

func (s *emailStore) FindAllActive(ctx context.Context, tenant string) ([]configuration.EmailConfiguration, error) {
	attrs := storage.Attributes(attribute.String("tenant", tenant))

	var cfgs []configuration.EmailConfiguration
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.configuration.list_active_email", attrs, func(ctx context.Context) error {
		rows, err := s.q.ListActiveEmailConfigurations(ctx, tenant)
		if err != nil {
			return fmt.Errorf("failed to list active email configurations: %w", err)
		}
		cfgs = make([]configuration.EmailConfiguration, 0, len(rows))
		for _, r := range rows {
			cfgs = append(cfgs, toDomainEmail(r))
		}
		return nil
	})
	return cfgs, err
}

func (s *emailStore) Exists(ctx context.Context, tenant, identifier string) (bool, error) {
	attrs := storage.Attributes(attribute.String("tenant", tenant), attribute.String("identifier", identifier))

	var exists bool
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.configuration.email_exists", attrs, func(ctx context.Context) error {
		var err error
		exists, err = s.q.EmailConfigurationExists(ctx, tenant, identifier)
		return err
	})
	return exists, err
}
