package db

import (
	"context"

	"github.com/jackc/pgx/v5"
)

const createEmailConfiguration = `
INSERT INTO email_configurations (
    tenant_id, identifier, host, port, protocol, username, app_password, smtp_auth, start_tls, state
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

type CreateEmailConfigurationParams struct {
	TenantID    string
	Identifier  string
	Host        string
	Port        int32
	Protocol    string
	Username    string
	AppPassword string
	SmtpAuth    bool
	StartTls    bool
	State       ConfigurationState
}

func (q *Queries) CreateEmailConfiguration(ctx context.Context, arg CreateEmailConfigurationParams) error {
	_, err := q.db.Exec(ctx, createEmailConfiguration,
		arg.TenantID,
		arg.Identifier,
		arg.Host,
		arg.Port,
		arg.Protocol,
		arg.Username,
		arg.AppPassword,
		arg.SmtpAuth,
		arg.StartTls,
		arg.State,
	)
	return err
}

const updateEmailConfiguration = `
UPDATE email_configurations
SET host = $3, port = $4, protocol = $5, username = $6, app_password = $7,
    smtp_auth = $8, start_tls = $9, state = $10, updated_at = NOW()
WHERE tenant_id = $1 AND identifier = $2
`

type UpdateEmailConfigurationParams = CreateEmailConfigurationParams

func (q *Queries) UpdateEmailConfiguration(ctx context.Context, arg UpdateEmailConfigurationParams) (int64, error) {
	tag, err := q.db.Exec(ctx, updateEmailConfiguration,
		arg.TenantID,
		arg.Identifier,
		arg.Host,
		arg.Port,
		arg.Protocol,
		arg.Username,
		arg.AppPassword,
		arg.SmtpAuth,
		arg.StartTls,
		arg.State,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const deleteEmailConfiguration = `
DELETE FROM email_configurations WHERE tenant_id = $1 AND identifier = $2
`

func (q *Queries) DeleteEmailConfiguration(ctx context.Context, tenantID, identifier string) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteEmailConfiguration, tenantID, identifier)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const emailColumns = `tenant_id, identifier, host, port, protocol, username, app_password, smtp_auth, start_tls, state, created_at, updated_at`

const getEmailConfiguration = `
SELECT ` + emailColumns + `
FROM email_configurations
WHERE tenant_id = $1 AND identifier = $2
`

func scanEmailConfiguration(row pgx.Row) (EmailConfiguration, error) {
	var i EmailConfiguration
	err := row.Scan(
		&i.TenantID,
		&i.Identifier,
		&i.Host,
		&i.Port,
		&i.Protocol,
		&i.Username,
		&i.AppPassword,
		&i.SmtpAuth,
		&i.StartTls,
		&i.State,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func (q *Queries) GetEmailConfiguration(ctx context.Context, tenantID, identifier string) (EmailConfiguration, error) {
	return scanEmailConfiguration(q.db.QueryRow(ctx, getEmailConfiguration, tenantID, identifier))
}

const listActiveEmailConfigurations = `
SELECT ` + emailColumns + `
FROM email_configurations
WHERE tenant_id = $1 AND state = 'ACTIVE'
ORDER BY identifier
`

func (q *Queries) ListActiveEmailConfigurations(ctx context.Context, tenantID string) ([]EmailConfiguration, error) {
	rows, err := q.db.Query(ctx, listActiveEmailConfigurations, tenantID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (EmailConfiguration, error) {
		return scanEmailConfiguration(row)
	})
}

const emailConfigurationExists = `
SELECT EXISTS (SELECT 1 FROM email_configurations WHERE tenant_id = $1 AND identifier = $2)
`

func (q *Queries) EmailConfigurationExists(ctx context.Context, tenantID, identifier string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, emailConfigurationExists, tenantID, identifier).Scan(&exists)
	return exists, err
}
