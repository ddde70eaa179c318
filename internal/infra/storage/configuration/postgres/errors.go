// Package postgres provides PostgreSQL-backed configuration repositories.
package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ahrav/notification-service/internal/domain/configuration"
)

const uniqueViolation = "23505"

// translate maps driver errors onto the configuration sentinels.
func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return configuration.ErrConfigurationNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return configuration.ErrConfigurationAlreadyExists
	}
	return err
}
