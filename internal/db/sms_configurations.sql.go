package db

import (
	"context"

	"github.com/jackc/pgx/v5"
)

const createSMSConfiguration = `
INSERT INTO sms_configurations (tenant_id, identifier, auth_token, account_sid, sender_number, state)
VALUES ($1, $2, $3, $4, $5, $6)
`

type CreateSMSConfigurationParams struct {
	TenantID     string
	Identifier   string
	AuthToken    string
	AccountSid   string
	SenderNumber string
	State        ConfigurationState
}

func (q *Queries) CreateSMSConfiguration(ctx context.Context, arg CreateSMSConfigurationParams) error {
	_, err := q.db.Exec(ctx, createSMSConfiguration,
		arg.TenantID,
		arg.Identifier,
		arg.AuthToken,
		arg.AccountSid,
		arg.SenderNumber,
		arg.State,
	)
	return err
}

const updateSMSConfiguration = `
UPDATE sms_configurations
SET auth_token = $3, account_sid = $4, sender_number = $5, state = $6, updated_at = NOW()
WHERE tenant_id = $1 AND identifier = $2
`

type UpdateSMSConfigurationParams = CreateSMSConfigurationParams

func (q *Queries) UpdateSMSConfiguration(ctx context.Context, arg UpdateSMSConfigurationParams) (int64, error) {
	tag, err := q.db.Exec(ctx, updateSMSConfiguration,
		arg.TenantID,
		arg.Identifier,
		arg.AuthToken,
		arg.AccountSid,
		arg.SenderNumber,
		arg.State,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const deleteSMSConfiguration = `
DELETE FROM sms_configurations WHERE tenant_id = $1 AND identifier = $2
`

func (q *Queries) DeleteSMSConfiguration(ctx context.Context, tenantID, identifier string) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteSMSConfiguration, tenantID, identifier)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const getSMSConfiguration = `
SELECT tenant_id, identifier, auth_token, account_sid, sender_number, state, created_at, updated_at
FROM sms_configurations
WHERE tenant_id = $1 AND identifier = $2
`

func (q *Queries) GetSMSConfiguration(ctx context.Context, tenantID, identifier string) (SmsConfiguration, error) {
	row := q.db.QueryRow(ctx, getSMSConfiguration, tenantID, identifier)
	var i SmsConfiguration
	err := row.Scan(
		&i.TenantID,
		&i.Identifier,
		&i.AuthToken,
		&i.AccountSid,
		&i.SenderNumber,
		&i.State,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listActiveSMSConfigurations = `
SELECT tenant_id, identifier, auth_token, account_sid, sender_number, state, created_at, updated_at
FROM sms_configurations
WHERE tenant_id = $1 AND state = 'ACTIVE'
ORDER BY identifier
`

func (q *Queries) ListActiveSMSConfigurations(ctx context.Context, tenantID string) ([]SmsConfiguration, error) {
	rows, err := q.db.Query(ctx, listActiveSMSConfigurations, tenantID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (SmsConfiguration, error) {
		var i SmsConfiguration
		err := row.Scan(
			&i.TenantID,
			&i.Identifier,
			&i.AuthToken,
			&i.AccountSid,
			&i.SenderNumber,
			&i.State,
			&i.CreatedAt,
			&i.UpdatedAt,
		)
		return i, err
	})
}

const smsConfigurationExists = `
SELECT EXISTS (SELECT 1 FROM sms_configurations WHERE tenant_id = $1 AND identifier = $2)
`

func (q *Queries) SMSConfigurationExists(ctx context.Context, tenantID, identifier string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, smsConfigurationExists, tenantID, identifier).Scan(&exists)
	return exists, err
}
