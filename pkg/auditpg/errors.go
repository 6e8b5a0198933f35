package auditpg

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrParseConfig       = errors.New("auditpg: failed to parse connection config")
	ErrConnect           = errors.New("auditpg: failed to open connection")
	ErrHealthcheckFailed = errors.New("auditpg: healthcheck failed, connection is not available")
	ErrMigrate           = errors.New("auditpg: failed to apply migrations")
	ErrInsert            = errors.New("auditpg: failed to insert audit record")
	ErrQuery             = errors.New("auditpg: failed to query audit records")
	ErrDecode            = errors.New("auditpg: failed to decode audit record")
)

// IsDuplicateKeyError reports a unique constraint violation (SQLSTATE 23505).
func IsDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
