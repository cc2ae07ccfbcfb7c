package statuschange

import (
	"context"
	"fmt"

	"github.com/renku-io/event-log/internal/domain"
	"github.com/renku-io/event-log/internal/eventdb"
)

// RollbackToTriplesGeneratedUpdater reverts an event from
// transforming_triples back to triples_generated and clears its delivery
// row.
type RollbackToTriplesGeneratedUpdater struct{}

func (RollbackToTriplesGeneratedUpdater) UpdateDB(ctx context.Context, tx *eventdb.Tx, raw domain.StatusChangeEvent) (domain.DBUpdateResults, error) {
	event, ok := raw.(domain.RollbackToTriplesGenerated)
	if !ok {
		return domain.DBUpdateResults{}, fmt.Errorf("RollbackToTriplesGeneratedUpdater: unexpected event type %T", raw)
	}

	projectID, _, err := eventdb.ProjectBySlug(ctx, tx, event.ProjectSlug)
	if err != nil {
		return domain.DBUpdateResults{}, fmt.Errorf("resolve project %q: %w", event.ProjectSlug, err)
	}

	affected, err := eventdb.UpdateEventStatus(ctx, tx, event.EventID, projectID,
		[]domain.EventStatus{domain.StatusTransformingTriples}, domain.StatusTriplesGenerated, nil)
	if err != nil {
		return domain.DBUpdateResults{}, err
	}
	if !affected {
		return domain.Empty(), nil
	}

	if err := eventdb.DeleteEventDelivery(ctx, tx, event.EventID, projectID); err != nil {
		return domain.DBUpdateResults{}, err
	}

	return domain.ForProject(event.ProjectSlug,
		domain.StatusDelta{Status: domain.StatusTransformingTriples, Delta: -1},
		domain.StatusDelta{Status: domain.StatusTriplesGenerated, Delta: 1},
	), nil
}

func (RollbackToTriplesGeneratedUpdater) OnRollback(ctx context.Context, store *eventdb.Store, raw domain.StatusChangeEvent) error {
	event, ok := raw.(domain.RollbackToTriplesGenerated)
	if !ok {
		return fmt.Errorf("RollbackToTriplesGeneratedUpdater: unexpected event type %T", raw)
	}
	projectID, _, err := eventdb.ProjectBySlug(ctx, store, event.ProjectSlug)
	if err != nil {
		return nil
	}
	return eventdb.DeleteEventDelivery(ctx, store, event.EventID, projectID)
}
