package eventdb

import (
	"context"
	"fmt"
	"time"

	"github.com/renku-io/event-log/internal/domain"
)

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// EventSummary is one event plus its recorded processing times, the shape
// GET /events returns to callers (spec.md §6).
type EventSummary struct {
	ID              int64
	Status          domain.EventStatus
	Message         string
	ProcessingTimes []domain.ProcessingTime
}

// EventsForProject returns every event for a project, most recent first,
// each with its processing-time history attached.
func EventsForProject(ctx context.Context, q Queryer, projectSlug string) ([]EventSummary, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT e.event_id, e.project_id, e.status, COALESCE(e.message, '')
		FROM event e
		JOIN project p ON p.project_id = e.project_id
		WHERE p.project_slug = $1
		ORDER BY e.event_date DESC, e.event_id DESC
	`, projectSlug)
	if err != nil {
		return nil, fmt.Errorf("events for project %q: %w", projectSlug, err)
	}
	defer rows.Close()

	var out []EventSummary
	projectIDs := make(map[int64]bool)
	for rows.Next() {
		var s EventSummary
		var status string
		var projectID int64
		if err := rows.Scan(&s.ID, &projectID, &status, &s.Message); err != nil {
			return nil, fmt.Errorf("scan event summary: %w", err)
		}
		s.Status = domain.EventStatus(status)
		projectIDs[projectID] = true
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		times, err := processingTimesFor(ctx, q, out[i].ID, projectSlug)
		if err != nil {
			return nil, err
		}
		out[i].ProcessingTimes = times
	}
	return out, nil
}

func processingTimesFor(ctx context.Context, q Queryer, eventID int64, projectSlug string) ([]domain.ProcessingTime, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT t.event_id, t.project_id, t.status, t.duration_ms
		FROM status_processing_time t
		JOIN project p ON p.project_id = t.project_id
		WHERE t.event_id = $1 AND p.project_slug = $2
	`, eventID, projectSlug)
	if err != nil {
		return nil, fmt.Errorf("processing times for event %d: %w", eventID, err)
	}
	defer rows.Close()

	var out []domain.ProcessingTime
	for rows.Next() {
		var pt domain.ProcessingTime
		var status string
		var ms int64
		if err := rows.Scan(&pt.EventID, &pt.ProjectID, &status, &ms); err != nil {
			return nil, fmt.Errorf("scan processing time: %w", err)
		}
		pt.Status = domain.EventStatus(status)
		pt.Duration = msToDuration(ms)
		out = append(out, pt)
	}
	return out, rows.Err()
}
