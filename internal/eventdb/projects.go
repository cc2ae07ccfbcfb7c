package eventdb

import (
	"context"
	"fmt"
	"time"
)

// UpsertProject inserts or updates a project, keeping latest_event_date
// non-decreasing (spec.md §3 invariant 3).
func UpsertProject(ctx context.Context, q Queryer, projectID int64, slug string, eventDate time.Time) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO project (project_id, project_slug, latest_event_date)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id) DO UPDATE
		SET latest_event_date = GREATEST(project.latest_event_date, EXCLUDED.latest_event_date)
	`, projectID, slug, eventDate)
	if err != nil {
		return fmt.Errorf("upsert project %d: %w", projectID, err)
	}
	return nil
}

// ProjectBySlug looks up a project's id and latest event date by slug.
func ProjectBySlug(ctx context.Context, q Queryer, slug string) (projectID int64, latestEventDate time.Time, err error) {
	row := q.QueryRowContext(ctx, `
		SELECT project_id, latest_event_date FROM project WHERE project_slug = $1
	`, slug)
	if err := row.Scan(&projectID, &latestEventDate); err != nil {
		return 0, time.Time{}, fmt.Errorf("project by slug %q: %w", slug, mapNoRows(err))
	}
	return projectID, latestEventDate, nil
}
