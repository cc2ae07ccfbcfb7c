package statuschange

import (
	"context"
	"fmt"

	"github.com/renku-io/event-log/internal/domain"
	"github.com/renku-io/event-log/internal/eventdb"
)

// ToAwaitingDeletionUpdater marks an event as scheduled for hard deletion.
// Events in new, an in-flight status, triples_generated, triples_store or
// a recoverable failure may transition here; non-recoverable failures,
// skipped and events already in a deletion status are left as they are.
// A delivery row, if one exists, is cleared since the event is leaving
// the dispatch pipeline.
type ToAwaitingDeletionUpdater struct{}

var fromAnyActiveStatus = []domain.EventStatus{
	domain.StatusNew,
	domain.StatusGeneratingTriples,
	domain.StatusTriplesGenerated,
	domain.StatusTransformingTriples,
	domain.StatusTriplesStore,
	domain.StatusGenerationRecoverableFailure,
	domain.StatusTransformationRecoverableFailure,
}

func (ToAwaitingDeletionUpdater) UpdateDB(ctx context.Context, tx *eventdb.Tx, raw domain.StatusChangeEvent) (domain.DBUpdateResults, error) {
	event, ok := raw.(domain.ToAwaitingDeletion)
	if !ok {
		return domain.DBUpdateResults{}, fmt.Errorf("ToAwaitingDeletionUpdater: unexpected event type %T", raw)
	}

	projectID, _, err := eventdb.ProjectBySlug(ctx, tx, event.ProjectSlug)
	if err != nil {
		return domain.DBUpdateResults{}, fmt.Errorf("resolve project %q: %w", event.ProjectSlug, err)
	}

	affected, err := eventdb.UpdateEventStatus(ctx, tx, event.EventID, projectID,
		fromAnyActiveStatus, domain.StatusAwaitingDeletion, nil)
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
		domain.StatusDelta{Status: domain.StatusAwaitingDeletion, Delta: 1},
	), nil
}

func (ToAwaitingDeletionUpdater) OnRollback(ctx context.Context, store *eventdb.Store, raw domain.StatusChangeEvent) error {
	event, ok := raw.(domain.ToAwaitingDeletion)
	if !ok {
		return fmt.Errorf("ToAwaitingDeletionUpdater: unexpected event type %T", raw)
	}
	projectID, _, err := eventdb.ProjectBySlug(ctx, store, event.ProjectSlug)
	if err != nil {
		return nil
	}
	return eventdb.DeleteEventDelivery(ctx, store, event.EventID, projectID)
}
