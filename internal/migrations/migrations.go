// Package migrations is the Schema Migrator (spec.md §4.1): it applies an
// embedded golang-migrate baseline, then an ordered, idempotent sequence of
// Go-native evolution steps, each safe to re-run under crash-recovery.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed baseline
var baselineFS embed.FS

// Outcome is what a Step actually did, logged once per step.
type Outcome string

const (
	Applied        Outcome = "applied"
	AlreadyPresent Outcome = "already present"
	Skipped        Outcome = "skipped (later table exists)"
)

// Step is one idempotent schema evolution. Run must check current schema
// state and report AlreadyPresent/Skipped rather than erroring when there
// is nothing to do.
type Step struct {
	Name string
	Run  func(ctx context.Context, tx *sql.Tx) (Outcome, error)
}

// Apply runs the embedded baseline via golang-migrate, then every Step in
// fixed order, each inside its own transaction. Failure is fatal — the
// caller must refuse to serve until this returns nil.
func Apply(ctx context.Context, db *sql.DB, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	if err := applyBaseline(db); err != nil {
		return fmt.Errorf("apply baseline migrations: %w", err)
	}

	for _, step := range steps {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx for step %q: %w", step.Name, err)
		}

		outcome, err := step.Run(ctx, tx)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("step %q: %w", step.Name, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit step %q: %w", step.Name, err)
		}

		log.Info("migration step", "name", step.Name, "outcome", outcome)
	}

	return nil
}

// applyBaseline runs the embedded golang-migrate source against db: the
// pre-evolution schema (event_log, project without a slug column,
// subscriber, event_payload) that the Step sequence then evolves.
func applyBaseline(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(baselineFS, "baseline")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	defer sourceDriver.Close()

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "eventlog", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply baseline: %w", err)
	}
	return nil
}
