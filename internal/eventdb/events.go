package eventdb

import (
	"context"
	"fmt"
	"time"

	"github.com/renku-io/event-log/internal/domain"
)

// InsertEvent creates a new event row in the status e.Status carries.
func InsertEvent(ctx context.Context, q Queryer, e domain.Event) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO event (project_id, status, created_date, execution_date, event_date, batch_date, event_body, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING event_id
	`, e.ProjectID, e.Status, e.CreatedDate, e.ExecutionDate, e.EventDate, e.BatchDate, e.EventBody, nullableString(e.Message)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert event for project %d: %w", e.ProjectID, err)
	}
	return id, nil
}

// UpdateEventStatus moves an event to newStatus, optionally updating its
// execution date. affected reports whether any row matched — callers use
// this to detect the "first writer wins" race of spec.md §4.3.
func UpdateEventStatus(ctx context.Context, q Queryer, eventID, projectID int64, fromStatuses []domain.EventStatus, newStatus domain.EventStatus, executionDate *time.Time) (affected bool, err error) {
	var res interface {
		RowsAffected() (int64, error)
	}
	if executionDate != nil {
		res, err = q.ExecContext(ctx, `
			UPDATE event SET status = $1, execution_date = $2
			WHERE event_id = $3 AND project_id = $4 AND status = ANY($5)
		`, newStatus, *executionDate, eventID, projectID, statusesToStrings(fromStatuses))
	} else {
		res, err = q.ExecContext(ctx, `
			UPDATE event SET status = $1
			WHERE event_id = $2 AND project_id = $3 AND status = ANY($4)
		`, newStatus, eventID, projectID, statusesToStrings(fromStatuses))
	}
	if err != nil {
		return false, fmt.Errorf("update event %d/%d status: %w", eventID, projectID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected for event %d/%d: %w", eventID, projectID, err)
	}
	return n > 0, nil
}

// UpsertEventPayload stores or overwrites the payload blob for an event.
func UpsertEventPayload(ctx context.Context, q Queryer, eventID, projectID int64, blob []byte) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO event_payload (event_id, project_id, blob)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id, project_id) DO UPDATE SET blob = EXCLUDED.blob
	`, eventID, projectID, blob)
	if err != nil {
		return fmt.Errorf("upsert payload for event %d/%d: %w", eventID, projectID, err)
	}
	return nil
}

// HasEventPayload reports whether an event has a stored payload
// (spec.md §3 invariant 4, §4.5 step 4).
func HasEventPayload(ctx context.Context, q Queryer, eventID, projectID int64) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM event_payload WHERE event_id = $1 AND project_id = $2)
	`, eventID, projectID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check payload for event %d/%d: %w", eventID, projectID, err)
	}
	return exists, nil
}

// UpsertProcessingTime records the processing time of an event entering a
// terminal success status; a row already present for the same status is
// overwritten.
func UpsertProcessingTime(ctx context.Context, q Queryer, eventID, projectID int64, status domain.EventStatus, d time.Duration) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO status_processing_time (event_id, project_id, status, duration_ms)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id, project_id, status) DO UPDATE SET duration_ms = EXCLUDED.duration_ms
	`, eventID, projectID, status, d.Milliseconds())
	if err != nil {
		return fmt.Errorf("upsert processing time for event %d/%d: %w", eventID, projectID, err)
	}
	return nil
}

// CountByStatus returns the number of events in each status for a project,
// used to reconcile gauges against the store (spec.md §8 invariant 1).
func CountByStatus(ctx context.Context, q Queryer, projectSlug string) (map[domain.EventStatus]int, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT e.status, COUNT(*)
		FROM event e
		JOIN project p ON p.project_id = e.project_id
		WHERE p.project_slug = $1
		GROUP BY e.status
	`, projectSlug)
	if err != nil {
		return nil, fmt.Errorf("count by status for project %q: %w", projectSlug, err)
	}
	defer rows.Close()

	counts := make(map[domain.EventStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count by status for project %q: %w", projectSlug, err)
		}
		counts[domain.EventStatus(status)] = n
	}
	return counts, rows.Err()
}

// FindEventsInStatus returns every event currently in one of the given
// statuses.
func FindEventsInStatus(ctx context.Context, q Queryer, statuses []domain.EventStatus) ([]domain.Event, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT event_id, project_id, status, created_date, execution_date, event_date, batch_date, event_body, COALESCE(message, '')
		FROM event
		WHERE status = ANY($1)
	`, statusesToStrings(statuses))
	if err != nil {
		return nil, fmt.Errorf("find events in status: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var status string
		if err := rows.Scan(&e.ID, &e.ProjectID, &status, &e.CreatedDate, &e.ExecutionDate, &e.EventDate, &e.BatchDate, &e.EventBody, &e.Message); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Status = domain.EventStatus(status)
		events = append(events, e)
	}
	return events, rows.Err()
}

func statusesToStrings(statuses []domain.EventStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
