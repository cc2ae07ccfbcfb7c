package statuschange

import (
	"context"
	"fmt"

	"github.com/renku-io/event-log/internal/domain"
	"github.com/renku-io/event-log/internal/eventdb"
)

// RollbackToNewUpdater reverts an event from generating_triples back to
// new and clears its delivery row. Only valid from generating_triples
// (spec.md §4.3).
type RollbackToNewUpdater struct{}

func (RollbackToNewUpdater) UpdateDB(ctx context.Context, tx *eventdb.Tx, raw domain.StatusChangeEvent) (domain.DBUpdateResults, error) {
	event, ok := raw.(domain.RollbackToNew)
	if !ok {
		return domain.DBUpdateResults{}, fmt.Errorf("RollbackToNewUpdater: unexpected event type %T", raw)
	}

	projectID, _, err := eventdb.ProjectBySlug(ctx, tx, event.ProjectSlug)
	if err != nil {
		return domain.DBUpdateResults{}, fmt.Errorf("resolve project %q: %w", event.ProjectSlug, err)
	}

	affected, err := eventdb.UpdateEventStatus(ctx, tx, event.EventID, projectID,
		[]domain.EventStatus{domain.StatusGeneratingTriples}, domain.StatusNew, nil)
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
		domain.StatusDelta{Status: domain.StatusGeneratingTriples, Delta: -1},
		domain.StatusDelta{Status: domain.StatusNew, Delta: 1},
	), nil
}

func (RollbackToNewUpdater) OnRollback(ctx context.Context, store *eventdb.Store, raw domain.StatusChangeEvent) error {
	event, ok := raw.(domain.RollbackToNew)
	if !ok {
		return fmt.Errorf("RollbackToNewUpdater: unexpected event type %T", raw)
	}
	projectID, _, err := eventdb.ProjectBySlug(ctx, store, event.ProjectSlug)
	if err != nil {
		return nil
	}
	return eventdb.DeleteEventDelivery(ctx, store, event.EventID, projectID)
}
