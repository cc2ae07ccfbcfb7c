package statuschange

import (
	"context"
	"fmt"

	"github.com/renku-io/event-log/internal/domain"
	"github.com/renku-io/event-log/internal/eventdb"
)

// resyncableStatuses are the statuses ProjectEventsToNew resets back to
// new: anything still in the generation/transformation pipeline short of
// a terminal success or a deletion in progress.
var resyncableStatuses = []domain.EventStatus{
	domain.StatusGeneratingTriples,
	domain.StatusTriplesGenerated,
	domain.StatusTransformingTriples,
	domain.StatusGenerationRecoverableFailure,
	domain.StatusTransformationRecoverableFailure,
}

// ProjectEventsToNewUpdater forces a full resync of one project: every
// non-terminal event is reset to new and its delivery row (if any) is
// cleared, so the generation finder picks it up again from the start.
type ProjectEventsToNewUpdater struct{}

func (ProjectEventsToNewUpdater) UpdateDB(ctx context.Context, tx *eventdb.Tx, raw domain.StatusChangeEvent) (domain.DBUpdateResults, error) {
	event, ok := raw.(domain.ProjectEventsToNew)
	if !ok {
		return domain.DBUpdateResults{}, fmt.Errorf("ProjectEventsToNewUpdater: unexpected event type %T", raw)
	}

	ids, err := eventdb.BulkTransition(ctx, tx, event.ProjectID, resyncableStatuses, domain.StatusNew)
	if err != nil {
		return domain.DBUpdateResults{}, err
	}
	if len(ids) == 0 {
		return domain.Empty(), nil
	}
	if err := eventdb.DeleteEventDeliveriesForEvents(ctx, tx, event.ProjectID, ids); err != nil {
		return domain.DBUpdateResults{}, err
	}

	return domain.ForProject(event.ProjectSlug,
		domain.StatusDelta{Status: domain.StatusNew, Delta: len(ids)},
	), nil
}

func (ProjectEventsToNewUpdater) OnRollback(context.Context, *eventdb.Store, domain.StatusChangeEvent) error {
	return nil
}
