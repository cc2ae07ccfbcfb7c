package statuschange

import (
	"context"
	"fmt"

	"github.com/renku-io/event-log/internal/domain"
	"github.com/renku-io/event-log/internal/eventdb"
)

// RollbackToAwaitingDeletionUpdater reverts every event of a project
// currently in deleting back to awaiting_deletion.
type RollbackToAwaitingDeletionUpdater struct{}

func (RollbackToAwaitingDeletionUpdater) UpdateDB(ctx context.Context, tx *eventdb.Tx, raw domain.StatusChangeEvent) (domain.DBUpdateResults, error) {
	event, ok := raw.(domain.RollbackToAwaitingDeletion)
	if !ok {
		return domain.DBUpdateResults{}, fmt.Errorf("RollbackToAwaitingDeletionUpdater: unexpected event type %T", raw)
	}

	projectID, _, err := eventdb.ProjectBySlug(ctx, tx, event.ProjectSlug)
	if err != nil {
		return domain.DBUpdateResults{}, fmt.Errorf("resolve project %q: %w", event.ProjectSlug, err)
	}

	ids, err := eventdb.BulkTransition(ctx, tx, projectID, []domain.EventStatus{domain.StatusDeleting}, domain.StatusAwaitingDeletion)
	if err != nil {
		return domain.DBUpdateResults{}, err
	}
	if len(ids) == 0 {
		return domain.Empty(), nil
	}

	return domain.ForProject(event.ProjectSlug,
		domain.StatusDelta{Status: domain.StatusDeleting, Delta: -len(ids)},
		domain.StatusDelta{Status: domain.StatusAwaitingDeletion, Delta: len(ids)},
	), nil
}

func (RollbackToAwaitingDeletionUpdater) OnRollback(context.Context, *eventdb.Store, domain.StatusChangeEvent) error {
	return nil
}
