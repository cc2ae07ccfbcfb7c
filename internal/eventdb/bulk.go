package eventdb

import (
	"context"
	"fmt"

	"github.com/renku-io/event-log/internal/domain"
)

// BulkTransition moves every event of a project currently in one of
// fromStatuses to toStatus, returning the event ids that moved. Used by
// the project-wide updaters (RollbackToAwaitingDeletion,
// RedoProjectTransformation, ProjectEventsToNew).
func BulkTransition(ctx context.Context, q Queryer, projectID int64, fromStatuses []domain.EventStatus, toStatus domain.EventStatus) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `
		UPDATE event SET status = $1
		WHERE project_id = $2 AND status = ANY($3)
		RETURNING event_id
	`, toStatus, projectID, statusesToStrings(fromStatuses))
	if err != nil {
		return nil, fmt.Errorf("bulk transition project %d to %s: %w", projectID, toStatus, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan bulk-transitioned event id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteEventDeliveriesForEvents clears delivery rows for a batch of event
// ids belonging to one project.
func DeleteEventDeliveriesForEvents(ctx context.Context, q Queryer, projectID int64, eventIDs []int64) error {
	if len(eventIDs) == 0 {
		return nil
	}
	_, err := q.ExecContext(ctx, `
		DELETE FROM event_delivery WHERE project_id = $1 AND event_id = ANY($2)
	`, projectID, eventIDs)
	if err != nil {
		return fmt.Errorf("delete deliveries for project %d: %w", projectID, err)
	}
	return nil
}

// AllProjectSlugs returns every project's slug, used by AllEventsToNew to
// fan out one ProjectEventsToNew per project.
func AllProjectSlugs(ctx context.Context, q Queryer) ([]domain.Project, error) {
	rows, err := q.QueryContext(ctx, `SELECT project_id, project_slug, latest_event_date FROM project`)
	if err != nil {
		return nil, fmt.Errorf("all project slugs: %w", err)
	}
	defer rows.Close()

	var out []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Slug, &p.LatestEventDate); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
