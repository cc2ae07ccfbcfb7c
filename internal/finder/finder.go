// Package finder selects the next deliverable event for a category,
// respecting the latest-event-date rule and project prioritization, marks
// it in-flight, and hands it back with its payload when applicable
// (spec.md §4.5).
package finder

import (
	"context"
	"errors"
	"log/slog"

	"github.com/renku-io/event-log/internal/clock"
	"github.com/renku-io/event-log/internal/domain"
	"github.com/renku-io/event-log/internal/eventdb"
)

// ErrNoEventAvailable is returned by PopEvent when no project has an
// eligible event right now.
var ErrNoEventAvailable = errors.New("finder: no event available")

// Prioritizer ranks candidate projects; PopEvent dispatches to the
// highest-priority project first (spec.md §4.5 step 1).
type Prioritizer interface {
	Prioritize(ctx context.Context, candidates []domain.ProjectInfo, totalOccupancy int) []domain.ProjectPriority
}

// Finder is one category's event finder.
type Finder struct {
	category    domain.Category
	store       *eventdb.Store
	prioritizer Prioritizer
	clock       clock.Clock
	log         *slog.Logger

	fetchLimit int
}

// New builds a Finder for one category.
func New(category domain.Category, store *eventdb.Store, prioritizer Prioritizer, fetchLimit int, c clock.Clock, log *slog.Logger) *Finder {
	if c == nil {
		c = clock.Real{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Finder{category: category, store: store, prioritizer: prioritizer, clock: c, log: log, fetchLimit: fetchLimit}
}

// PopEvent implements the six-step selection algorithm of spec.md §4.5
// inside one transaction, using SELECT ... FOR UPDATE SKIP LOCKED so
// concurrent finder goroutines never race on the same candidate row.
func (f *Finder) PopEvent(ctx context.Context) (*domain.Event, *domain.EventPayload, domain.EventStatus, error) {
	var (
		event        *domain.Event
		payload      *domain.EventPayload
		sourceStatus domain.EventStatus
	)

	err := f.store.WithTx(ctx, func(tx *eventdb.Tx) error {
		now := f.clock.Now()
		awaiting := f.category.AwaitingStatuses()
		active := f.category.ActiveStatuses()

		candidates, err := eventdb.CandidateProjects(ctx, tx, awaiting, active, now, f.fetchLimit)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return ErrNoEventAvailable
		}

		totalOccupancy := 0
		for _, c := range candidates {
			totalOccupancy += c.CurrentOccupancy
		}

		priorities := f.prioritizer.Prioritize(ctx, candidates, totalOccupancy)
		if len(priorities) == 0 {
			return ErrNoEventAvailable
		}

		requirePayload := f.category == domain.CategoryAwaitingTransformation

		for _, p := range priorities {
			claimed, err := eventdb.ClaimEvent(ctx, tx, p.ProjectID, awaiting, now, requirePayload)
			if errors.Is(err, eventdb.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}

			inFlight := f.category.InFlightStatus()
			affected, err := eventdb.UpdateEventStatus(ctx, tx, claimed.ID, claimed.ProjectID,
				[]domain.EventStatus{claimed.Status}, inFlight, &now)
			if err != nil {
				return err
			}
			if !affected {
				continue
			}

			if err := eventdb.UpsertEventDelivery(ctx, tx, claimed.ID, claimed.ProjectID, 0, ""); err != nil {
				return err
			}

			if requirePayload || claimed.Status == domain.StatusTriplesGenerated || claimed.Status == domain.StatusTransformationRecoverableFailure {
				pl, err := eventdb.EventPayloadFor(ctx, tx, claimed.ID, claimed.ProjectID)
				if err != nil {
					return err
				}
				payload = pl
			}

			sourceStatus = claimed.Status
			claimed.Status = inFlight
			claimed.ExecutionDate = now
			event = claimed
			return nil
		}

		return ErrNoEventAvailable
	})
	if err != nil {
		if errors.Is(err, ErrNoEventAvailable) {
			return nil, nil, "", ErrNoEventAvailable
		}
		f.log.Error("popEvent failed", "category", f.category, "error", err)
		return nil, nil, "", err
	}

	f.log.Info("event claimed", "category", f.category, "event_id", event.ID, "project_id", event.ProjectID)
	return event, payload, sourceStatus, nil
}
