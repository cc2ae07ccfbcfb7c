package statuschange

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/renku-io/event-log/internal/domain"
	"github.com/renku-io/event-log/internal/eventdb"
)

// AllEventsToNewUpdater enumerates every project in the store and emits
// one outbound ProjectEventsToNew notification per project via Publish.
// It always returns domain.Empty() — the real counter changes happen when
// each emitted notification is itself processed by
// ProjectEventsToNewUpdater (spec.md §4.3).
type AllEventsToNewUpdater struct {
	Publish func(ctx context.Context, event domain.ProjectEventsToNew) error
	Log     *slog.Logger
}

func (u AllEventsToNewUpdater) UpdateDB(ctx context.Context, tx *eventdb.Tx, raw domain.StatusChangeEvent) (domain.DBUpdateResults, error) {
	if _, ok := raw.(domain.AllEventsToNew); !ok {
		return domain.DBUpdateResults{}, fmt.Errorf("AllEventsToNewUpdater: unexpected event type %T", raw)
	}

	projects, err := eventdb.AllProjectSlugs(ctx, tx)
	if err != nil {
		return domain.DBUpdateResults{}, err
	}

	log := u.Log
	if log == nil {
		log = slog.Default()
	}

	for _, p := range projects {
		notification := domain.ProjectEventsToNew{ProjectID: p.ID, ProjectSlug: p.Slug}
		if u.Publish == nil {
			continue
		}
		if err := u.Publish(ctx, notification); err != nil {
			log.Error("failed to publish ProjectEventsToNew", "project_slug", p.Slug, "error", err)
		}
	}

	return domain.Empty(), nil
}

func (AllEventsToNewUpdater) OnRollback(context.Context, *eventdb.Store, domain.StatusChangeEvent) error {
	return nil
}
