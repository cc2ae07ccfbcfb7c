package statuschange

import (
	"context"
	"fmt"

	"github.com/renku-io/event-log/internal/domain"
	"github.com/renku-io/event-log/internal/eventdb"
)

// RedoProjectTransformationUpdater moves every event of a project in
// triples_store back to triples_generated so it is re-transformed.
type RedoProjectTransformationUpdater struct{}

func (RedoProjectTransformationUpdater) UpdateDB(ctx context.Context, tx *eventdb.Tx, raw domain.StatusChangeEvent) (domain.DBUpdateResults, error) {
	event, ok := raw.(domain.RedoProjectTransformation)
	if !ok {
		return domain.DBUpdateResults{}, fmt.Errorf("RedoProjectTransformationUpdater: unexpected event type %T", raw)
	}

	projectID, _, err := eventdb.ProjectBySlug(ctx, tx, event.ProjectSlug)
	if err != nil {
		return domain.DBUpdateResults{}, fmt.Errorf("resolve project %q: %w", event.ProjectSlug, err)
	}

	ids, err := eventdb.BulkTransition(ctx, tx, projectID, []domain.EventStatus{domain.StatusTriplesStore}, domain.StatusTriplesGenerated)
	if err != nil {
		return domain.DBUpdateResults{}, err
	}
	if len(ids) == 0 {
		return domain.Empty(), nil
	}

	return domain.ForProject(event.ProjectSlug,
		domain.StatusDelta{Status: domain.StatusTriplesStore, Delta: -len(ids)},
		domain.StatusDelta{Status: domain.StatusTriplesGenerated, Delta: len(ids)},
	), nil
}

func (RedoProjectTransformationUpdater) OnRollback(context.Context, *eventdb.Store, domain.StatusChangeEvent) error {
	return nil
}
