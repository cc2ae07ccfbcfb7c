package statuschange

import (
	"context"
	"fmt"

	"github.com/renku-io/event-log/internal/domain"
	"github.com/renku-io/event-log/internal/eventdb"
)

// ToTriplesGeneratedUpdater transitions an event from generating_triples
// to triples_generated, storing its payload and processing time and
// clearing its delivery row (spec.md §4.3).
type ToTriplesGeneratedUpdater struct{}

func (ToTriplesGeneratedUpdater) UpdateDB(ctx context.Context, tx *eventdb.Tx, raw domain.StatusChangeEvent) (domain.DBUpdateResults, error) {
	event, ok := raw.(domain.ToTriplesGenerated)
	if !ok {
		return domain.DBUpdateResults{}, fmt.Errorf("ToTriplesGeneratedUpdater: unexpected event type %T", raw)
	}

	projectID, _, err := eventdb.ProjectBySlug(ctx, tx, event.ProjectSlug)
	if err != nil {
		return domain.DBUpdateResults{}, fmt.Errorf("resolve project %q: %w", event.ProjectSlug, err)
	}

	affected, err := eventdb.UpdateEventStatus(ctx, tx, event.EventID, projectID,
		[]domain.EventStatus{domain.StatusGeneratingTriples}, domain.StatusTriplesGenerated, nil)
	if err != nil {
		return domain.DBUpdateResults{}, err
	}
	if !affected {
		// Lost the race to a concurrent updater (spec.md §4.3 "first
		// writer wins"); nothing to do.
		return domain.Empty(), nil
	}

	if err := eventdb.UpsertEventPayload(ctx, tx, event.EventID, projectID, event.Payload); err != nil {
		return domain.DBUpdateResults{}, err
	}
	if err := eventdb.UpsertProcessingTime(ctx, tx, event.EventID, projectID, domain.StatusTriplesGenerated, event.ProcessingTime); err != nil {
		return domain.DBUpdateResults{}, err
	}
	if err := eventdb.DeleteEventDelivery(ctx, tx, event.EventID, projectID); err != nil {
		return domain.DBUpdateResults{}, err
	}

	return domain.ForProject(event.ProjectSlug,
		domain.StatusDelta{Status: domain.StatusGeneratingTriples, Delta: -1},
		domain.StatusDelta{Status: domain.StatusTriplesGenerated, Delta: 1},
	), nil
}

// OnRollback best-effort removes a delivery row left behind by a
// transition that failed to commit, so the event is not stuck reporting a
// subscriber that no longer owns it.
func (ToTriplesGeneratedUpdater) OnRollback(ctx context.Context, store *eventdb.Store, raw domain.StatusChangeEvent) error {
	event, ok := raw.(domain.ToTriplesGenerated)
	if !ok {
		return fmt.Errorf("ToTriplesGeneratedUpdater: unexpected event type %T", raw)
	}
	projectID, _, err := eventdb.ProjectBySlug(ctx, store, event.ProjectSlug)
	if err != nil {
		return nil
	}
	return eventdb.DeleteEventDelivery(ctx, store, event.EventID, projectID)
}
