// Package eventdb is the transactional persistence layer over the tables
// project, event, event_payload, status_processing_time, subscriber,
// event_delivery, subscription_category_sync_time, clean_up_events_queue,
// and status_change_events_queue (spec.md §3, §4.2).
//
// Every operation takes a Queryer so callers can write one function body
// that runs either standalone against the pool or inside a transaction —
// the fn(txn) -> Result<T, E> shape spec.md §9 asks for in place of the
// source's monadic chaining.
package eventdb

import (
	"context"
	"database/sql"
	"fmt"
)

// Queryer is the subset of *sql.DB and *sql.Tx that the store's operations
// need. Store and Tx both implement it.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store wraps the shared connection pool.
type Store struct {
	db *sql.DB
}

// New wraps an already-open *sql.DB. Migrations are assumed to have run.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying pool, for health checks.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *Store) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func (s *Store) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

// Tx wraps a single *sql.Tx. Transactions are never nested (spec.md §5).
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

// WithTx opens a transaction, runs fn inside it, commits on nil error and
// rolls back otherwise. This is the Status Changer's and the Finder's
// single point of transactional truth (spec.md §4.3 step 1, §4.5 step 1).
func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	tx := &Tx{tx: sqlTx}

	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
