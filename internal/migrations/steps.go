package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

// steps is the fixed, compile-time-ordered evolution applied after the
// embedded baseline (spec.md §4.1). New steps are appended, never
// reordered or removed.
var steps = []Step{
	{Name: "rename event_log to event", Run: renameEventLogToEvent},
	{Name: "add project.project_path", Run: addProjectPath},
	{Name: "add project.project_slug", Run: addProjectSlug},
	{Name: "add project slug index", Run: addProjectSlugIndex},
	{Name: "create status_processing_time", Run: createStatusProcessingTime},
	{Name: "create event_delivery", Run: createEventDelivery},
	{Name: "create subscription_category_sync_time", Run: createCategorySyncTime},
	{Name: "create clean_up_events_queue", Run: createCleanUpEventsQueue},
	{Name: "create status_change_events_queue", Run: createStatusChangeEventsQueue},
	{Name: "backfill clean_up_events_queue.project_id", Run: backfillCleanUpQueueProjectID},
	{Name: "rename project_path to project_slug fleet-wide", Run: renameProjectPathToSlug},
}

func tableExists(ctx context.Context, tx *sql.Tx, name string) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx, `SELECT EXISTS (
		SELECT 1 FROM information_schema.tables WHERE table_name = $1
	)`, name).Scan(&exists)
	return exists, err
}

func columnExists(ctx context.Context, tx *sql.Tx, table, column string) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx, `SELECT EXISTS (
		SELECT 1 FROM information_schema.columns WHERE table_name = $1 AND column_name = $2
	)`, table, column).Scan(&exists)
	return exists, err
}

func indexExists(ctx context.Context, tx *sql.Tx, name string) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx, `SELECT EXISTS (
		SELECT 1 FROM pg_indexes WHERE indexname = $1
	)`, name).Scan(&exists)
	return exists, err
}

// renameEventLogToEvent: when both event_log and event exist, the old
// table is dropped rather than merged (spec.md §4.1 edge case).
func renameEventLogToEvent(ctx context.Context, tx *sql.Tx) (Outcome, error) {
	eventExists, err := tableExists(ctx, tx, "event")
	if err != nil {
		return "", err
	}
	logExists, err := tableExists(ctx, tx, "event_log")
	if err != nil {
		return "", err
	}

	switch {
	case eventExists && logExists:
		if _, err := tx.ExecContext(ctx, `DROP TABLE event_log`); err != nil {
			return "", fmt.Errorf("drop stale event_log: %w", err)
		}
		return Skipped, nil
	case eventExists:
		return AlreadyPresent, nil
	case logExists:
		if _, err := tx.ExecContext(ctx, `ALTER TABLE event_log RENAME TO event`); err != nil {
			return "", fmt.Errorf("rename event_log: %w", err)
		}
		return Applied, nil
	default:
		return "", fmt.Errorf("neither event nor event_log exists")
	}
}

func addProjectPath(ctx context.Context, tx *sql.Tx) (Outcome, error) {
	exists, err := columnExists(ctx, tx, "project", "project_path")
	if err != nil {
		return "", err
	}
	if exists {
		return AlreadyPresent, nil
	}
	if _, err := tx.ExecContext(ctx, `ALTER TABLE project ADD COLUMN project_path TEXT`); err != nil {
		return "", fmt.Errorf("add project_path: %w", err)
	}
	return Applied, nil
}

func addProjectSlug(ctx context.Context, tx *sql.Tx) (Outcome, error) {
	exists, err := columnExists(ctx, tx, "project", "project_slug")
	if err != nil {
		return "", err
	}
	if exists {
		return AlreadyPresent, nil
	}
	if _, err := tx.ExecContext(ctx, `ALTER TABLE project ADD COLUMN project_slug TEXT`); err != nil {
		return "", fmt.Errorf("add project_slug: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE project SET project_slug = project_path WHERE project_slug IS NULL`); err != nil {
		return "", fmt.Errorf("backfill project_slug: %w", err)
	}
	return Applied, nil
}

func addProjectSlugIndex(ctx context.Context, tx *sql.Tx) (Outcome, error) {
	exists, err := indexExists(ctx, tx, "idx_project_slug")
	if err != nil {
		return "", err
	}
	if exists {
		return AlreadyPresent, nil
	}
	if _, err := tx.ExecContext(ctx, `CREATE INDEX idx_project_slug ON project (project_slug)`); err != nil {
		return "", fmt.Errorf("create slug index: %w", err)
	}
	return Applied, nil
}

func createStatusProcessingTime(ctx context.Context, tx *sql.Tx) (Outcome, error) {
	exists, err := tableExists(ctx, tx, "status_processing_time")
	if err != nil {
		return "", err
	}
	if exists {
		return AlreadyPresent, nil
	}
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE status_processing_time (
			event_id   BIGINT NOT NULL,
			project_id BIGINT NOT NULL,
			status     TEXT NOT NULL,
			duration_ms BIGINT NOT NULL,
			PRIMARY KEY (event_id, project_id, status)
		)`); err != nil {
		return "", fmt.Errorf("create status_processing_time: %w", err)
	}
	return Applied, nil
}

func createEventDelivery(ctx context.Context, tx *sql.Tx) (Outcome, error) {
	exists, err := tableExists(ctx, tx, "event_delivery")
	if err != nil {
		return "", err
	}
	if exists {
		return AlreadyPresent, nil
	}
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE event_delivery (
			event_id       BIGINT NOT NULL,
			project_id     BIGINT NOT NULL,
			delivery_id    BIGINT NOT NULL,
			subscriber_url TEXT NOT NULL DEFAULT '',
			delivered_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (event_id, project_id)
		)`); err != nil {
		return "", fmt.Errorf("create event_delivery: %w", err)
	}
	return Applied, nil
}

func createCategorySyncTime(ctx context.Context, tx *sql.Tx) (Outcome, error) {
	exists, err := tableExists(ctx, tx, "subscription_category_sync_time")
	if err != nil {
		return "", err
	}
	if exists {
		return AlreadyPresent, nil
	}
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE subscription_category_sync_time (
			project_id BIGINT NOT NULL,
			category   TEXT NOT NULL,
			last_synced TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (project_id, category)
		)`); err != nil {
		return "", fmt.Errorf("create subscription_category_sync_time: %w", err)
	}
	return Applied, nil
}

func createCleanUpEventsQueue(ctx context.Context, tx *sql.Tx) (Outcome, error) {
	exists, err := tableExists(ctx, tx, "clean_up_events_queue")
	if err != nil {
		return "", err
	}
	if exists {
		return AlreadyPresent, nil
	}
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE clean_up_events_queue (
			project_id BIGINT,
			slug       TEXT NOT NULL,
			date       TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (slug, date)
		)`); err != nil {
		return "", fmt.Errorf("create clean_up_events_queue: %w", err)
	}
	return Applied, nil
}

func createStatusChangeEventsQueue(ctx context.Context, tx *sql.Tx) (Outcome, error) {
	exists, err := tableExists(ctx, tx, "status_change_events_queue")
	if err != nil {
		return "", err
	}
	if exists {
		return AlreadyPresent, nil
	}
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE status_change_events_queue (
			id         BIGSERIAL PRIMARY KEY,
			project_id BIGINT NOT NULL,
			body       BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return "", fmt.Errorf("create status_change_events_queue: %w", err)
	}
	return Applied, nil
}

// backfillCleanUpQueueProjectID resolves each queued slug to its
// project_id, dropping rows that fail to resolve (spec.md §4.1).
func backfillCleanUpQueueProjectID(ctx context.Context, tx *sql.Tx) (Outcome, error) {
	hasSlugCol, err := columnExists(ctx, tx, "project", "project_slug")
	if err != nil {
		return "", err
	}
	if !hasSlugCol {
		return Skipped, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE clean_up_events_queue q
		SET project_id = p.project_id
		FROM project p
		WHERE q.slug = p.project_slug AND q.project_id IS NULL
	`); err != nil {
		return "", fmt.Errorf("backfill clean_up_events_queue.project_id: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM clean_up_events_queue WHERE project_id IS NULL`)
	if err != nil {
		return "", fmt.Errorf("drop unresolved clean_up_events_queue rows: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if n > 0 {
		return Applied, nil
	}
	return AlreadyPresent, nil
}

// renameProjectPathToSlug drops the now-redundant project_path column once
// project_slug is fully populated.
func renameProjectPathToSlug(ctx context.Context, tx *sql.Tx) (Outcome, error) {
	hasPath, err := columnExists(ctx, tx, "project", "project_path")
	if err != nil {
		return "", err
	}
	if !hasPath {
		return AlreadyPresent, nil
	}

	var unpopulated int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM project WHERE project_slug IS NULL`).Scan(&unpopulated); err != nil {
		return "", fmt.Errorf("check project_slug population: %w", err)
	}
	if unpopulated > 0 {
		if _, err := tx.ExecContext(ctx, `UPDATE project SET project_slug = project_path WHERE project_slug IS NULL`); err != nil {
			return "", fmt.Errorf("backfill remaining project_slug: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `ALTER TABLE project DROP COLUMN project_path`); err != nil {
		return "", fmt.Errorf("drop project_path: %w", err)
	}
	return Applied, nil
}
