package eventdb

import (
	"context"
	"fmt"
	"time"
)

// UpsertEventDelivery records that deliveryID has taken responsibility for
// an event. Unique on (event_id, project_id) — spec.md §3 invariant 2.
func UpsertEventDelivery(ctx context.Context, q Queryer, eventID, projectID, deliveryID int64, subscriberURL string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO event_delivery (event_id, project_id, delivery_id, subscriber_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id, project_id) DO UPDATE
		SET delivery_id = EXCLUDED.delivery_id, subscriber_url = EXCLUDED.subscriber_url
	`, eventID, projectID, deliveryID, subscriberURL)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("upsert event_delivery for event %d/%d: %w", eventID, projectID, err)
	}
	return nil
}

// AssignDelivery records which subscriber actually took an event, once the
// registry has resolved one. The placeholder row inserted when the event
// was claimed (delivery_id 0, empty subscriber_url) is updated in place.
func AssignDelivery(ctx context.Context, q Queryer, eventID, projectID, deliveryID int64, subscriberURL string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE event_delivery SET delivery_id = $1, subscriber_url = $2, delivered_at = now()
		WHERE event_id = $3 AND project_id = $4
	`, deliveryID, subscriberURL, eventID, projectID)
	if err != nil {
		return fmt.Errorf("assign delivery for event %d/%d: %w", eventID, projectID, err)
	}
	return nil
}

// DeleteEventDelivery removes the delivery row for an event, if any.
func DeleteEventDelivery(ctx context.Context, q Queryer, eventID, projectID int64) error {
	_, err := q.ExecContext(ctx, `
		DELETE FROM event_delivery WHERE event_id = $1 AND project_id = $2
	`, eventID, projectID)
	if err != nil {
		return fmt.Errorf("delete event_delivery for event %d/%d: %w", eventID, projectID, err)
	}
	return nil
}

// ZombieCandidate is an in-flight event whose delivery row points at a
// subscriber that may have gone away.
type ZombieCandidate struct {
	EventID       int64
	ProjectID     int64
	Status        string
	SubscriberURL string
	DeliveredAt   time.Time
}

// FindStaleDeliveries returns every delivery older than threshold for
// events in one of the given statuses, the zombie cleaner's scan query
// (spec.md §7, §8 scenario 6).
func FindStaleDeliveries(ctx context.Context, q Queryer, statuses []string, threshold time.Time) ([]ZombieCandidate, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT d.event_id, d.project_id, e.status, d.subscriber_url, d.delivered_at
		FROM event_delivery d
		JOIN event e ON e.event_id = d.event_id AND e.project_id = d.project_id
		WHERE e.status = ANY($1) AND d.delivered_at < $2
	`, statuses, threshold)
	if err != nil {
		return nil, fmt.Errorf("find stale deliveries: %w", err)
	}
	defer rows.Close()

	var out []ZombieCandidate
	for rows.Next() {
		var c ZombieCandidate
		if err := rows.Scan(&c.EventID, &c.ProjectID, &c.Status, &c.SubscriberURL, &c.DeliveredAt); err != nil {
			return nil, fmt.Errorf("scan stale delivery: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
