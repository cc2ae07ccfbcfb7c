// Package statuschange is the heart of the event state machine
// (spec.md §4.3): it applies a StatusChangeEvent against the store using a
// per-variant Updater, invokes the gauges updater in a best-effort manner
// on success, and invokes the updater's rollback hook on transactional
// failure.
package statuschange

import (
	"context"
	"log/slog"

	"github.com/renku-io/event-log/internal/domain"
	"github.com/renku-io/event-log/internal/eventdb"
	"github.com/renku-io/event-log/internal/gauges"
)

// Updater is the per-variant capability set: a transactional UpdateDB step
// and a best-effort OnRollback compensation hook.
type Updater interface {
	UpdateDB(ctx context.Context, tx *eventdb.Tx, event domain.StatusChangeEvent) (domain.DBUpdateResults, error)
	OnRollback(ctx context.Context, store *eventdb.Store, event domain.StatusChangeEvent) error
}

// Changer applies status-change events against the store.
type Changer struct {
	store  *eventdb.Store
	gauges gauges.GaugesUpdater
	log    *slog.Logger
}

// New builds a Changer.
func New(store *eventdb.Store, gaugesUpdater gauges.GaugesUpdater, log *slog.Logger) *Changer {
	if log == nil {
		log = slog.Default()
	}
	return &Changer{store: store, gauges: gaugesUpdater, log: log}
}

// Apply runs updater.UpdateDB inside one transaction, commits, then
// best-effort updates gauges. On transactional failure it invokes
// updater.OnRollback and always propagates the original failure to the
// caller (spec.md §4.3 step 3).
func (c *Changer) Apply(ctx context.Context, updater Updater, event domain.StatusChangeEvent) (domain.DBUpdateResults, error) {
	var results domain.DBUpdateResults

	err := c.store.WithTx(ctx, func(tx *eventdb.Tx) error {
		r, err := updater.UpdateDB(ctx, tx, event)
		if err != nil {
			return err
		}
		results = r
		return nil
	})

	if err != nil {
		if rbErr := updater.OnRollback(ctx, c.store, event); rbErr != nil {
			c.log.Error("rollback hook failed", "error", rbErr, "original_error", err)
		}
		return domain.DBUpdateResults{}, err
	}

	c.gauges.UpdateGauges(results)
	c.log.Info("status change applied", "event_type", eventTypeName(event))

	return results, nil
}

func eventTypeName(event domain.StatusChangeEvent) string {
	switch event.(type) {
	case domain.ToTriplesGenerated:
		return "ToTriplesGenerated"
	case domain.ToTriplesStore:
		return "ToTriplesStore"
	case domain.ToFailure:
		return "ToFailure"
	case domain.RollbackToNew:
		return "RollbackToNew"
	case domain.RollbackToTriplesGenerated:
		return "RollbackToTriplesGenerated"
	case domain.RollbackToAwaitingDeletion:
		return "RollbackToAwaitingDeletion"
	case domain.ToAwaitingDeletion:
		return "ToAwaitingDeletion"
	case domain.RedoProjectTransformation:
		return "RedoProjectTransformation"
	case domain.ProjectEventsToNew:
		return "ProjectEventsToNew"
	case domain.AllEventsToNew:
		return "AllEventsToNew"
	default:
		return "unknown"
	}
}
