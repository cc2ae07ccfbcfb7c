package eventdb

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres error codes this package treats specially.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("eventdb: not found")

// isUniqueViolation reports whether err is a primary/unique-key conflict,
// which idempotent upserts must mask rather than fail on (spec.md §4.2).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// isForeignKeyViolation reports whether err is a foreign-key conflict,
// which is fatal to the caller (spec.md §4.2).
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}

// mapNoRows turns sql.ErrNoRows into the package's own ErrNotFound so
// callers never need to import database/sql just to compare errors.
func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
