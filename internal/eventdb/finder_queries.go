package eventdb

import (
	"context"
	"fmt"
	"time"

	"github.com/renku-io/event-log/internal/domain"
)

// CandidateProjects returns, for a single category, the projects whose
// latest event is not in one of activeStatuses and which have at least one
// event in awaitingStatuses eligible for dispatch (execution_date <= now).
// Results are capped at limit and ordered by latest_event_date descending,
// the ordering the finder's prioritizer then refines (spec.md §4.5 step 1).
func CandidateProjects(ctx context.Context, q Queryer, awaitingStatuses, activeStatuses []domain.EventStatus, now time.Time, limit int) ([]domain.ProjectInfo, error) {
	rows, err := q.QueryContext(ctx, `
		WITH latest AS (
			SELECT DISTINCT ON (project_id) project_id, status AS latest_status
			FROM event
			ORDER BY project_id, event_date DESC, event_id DESC
		)
		SELECT p.project_id, p.project_slug, p.latest_event_date,
			(SELECT COUNT(*) FROM event_delivery d WHERE d.project_id = p.project_id) AS occupancy
		FROM project p
		JOIN latest l ON l.project_id = p.project_id
		WHERE l.latest_status != ALL($1)
			AND EXISTS (
				SELECT 1 FROM event e
				WHERE e.project_id = p.project_id
					AND e.status = ANY($2)
					AND e.execution_date <= $3
			)
		ORDER BY p.latest_event_date DESC
		LIMIT $4
	`, statusesToStrings(activeStatuses), statusesToStrings(awaitingStatuses), now, limit)
	if err != nil {
		return nil, fmt.Errorf("candidate projects: %w", err)
	}
	defer rows.Close()

	var out []domain.ProjectInfo
	for rows.Next() {
		var info domain.ProjectInfo
		if err := rows.Scan(&info.ProjectID, &info.Slug, &info.LatestEventDate, &info.CurrentOccupancy); err != nil {
			return nil, fmt.Errorf("scan candidate project: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// ClaimEvent picks the eligible event with the greatest event_date for a
// single project, locking it with FOR UPDATE SKIP LOCKED so concurrent
// finder goroutines never race on the same row (spec.md §4.5 step 2, the
// same primitive a queue worker uses to claim its next pending job). When
// requirePayload is true, candidates in triples_generated without a stored
// payload are invisible (spec.md §4.5 step 4).
func ClaimEvent(ctx context.Context, tx *Tx, projectID int64, awaitingStatuses []domain.EventStatus, now time.Time, requirePayload bool) (*domain.Event, error) {
	query := `
		SELECT e.event_id, e.project_id, e.status, e.created_date, e.execution_date, e.event_date, e.batch_date, e.event_body, COALESCE(e.message, '')
		FROM event e
		WHERE e.project_id = $1 AND e.status = ANY($2) AND e.execution_date <= $3
	`
	if requirePayload {
		query += ` AND (e.status != 'triples_generated' OR EXISTS (SELECT 1 FROM event_payload ep WHERE ep.event_id = e.event_id AND ep.project_id = e.project_id))`
	}
	query += ` ORDER BY e.event_date DESC, e.event_id ASC FOR UPDATE SKIP LOCKED LIMIT 1`

	row := tx.QueryRowContext(ctx, query, projectID, statusesToStrings(awaitingStatuses), now)

	var e domain.Event
	var status string
	if err := row.Scan(&e.ID, &e.ProjectID, &status, &e.CreatedDate, &e.ExecutionDate, &e.EventDate, &e.BatchDate, &e.EventBody, &e.Message); err != nil {
		return nil, mapNoRows(err)
	}
	e.Status = domain.EventStatus(status)
	return &e, nil
}

// EventPayloadFor returns the stored payload blob for an event, if any.
func EventPayloadFor(ctx context.Context, q Queryer, eventID, projectID int64) (*domain.EventPayload, error) {
	var blob []byte
	err := q.QueryRowContext(ctx, `
		SELECT blob FROM event_payload WHERE event_id = $1 AND project_id = $2
	`, eventID, projectID).Scan(&blob)
	if err != nil {
		if err == ErrNotFound {
			return nil, nil
		}
		mapped := mapNoRows(err)
		if mapped == ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("event payload for %d/%d: %w", eventID, projectID, mapped)
	}
	return &domain.EventPayload{EventID: eventID, ProjectID: projectID, Blob: blob}, nil
}
