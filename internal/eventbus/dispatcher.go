// Package eventbus ties a category's Finder, Registry and Sender into a
// single dispatch loop: pop an eligible event, wait for an available
// subscriber, ship it, and act on the outcome (spec.md §4.5, §7).
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/renku-io/event-log/internal/clock"
	"github.com/renku-io/event-log/internal/domain"
	"github.com/renku-io/event-log/internal/eventdb"
	"github.com/renku-io/event-log/internal/finder"
	"github.com/renku-io/event-log/internal/gauges"
	"github.com/renku-io/event-log/internal/registry"
	"github.com/renku-io/event-log/internal/sender"
)

// Dispatcher runs one category's claim-dispatch-react loop.
type Dispatcher struct {
	category Category
	store    *eventdb.Store
	finder   *finder.Finder
	registry *registry.Registry
	sender   *sender.Sender
	gauges   gauges.GaugesUpdater
	clock    clock.Clock
	log      *slog.Logger

	retryInterval time.Duration
}

// Category is a narrow view of domain.Category, scoped to the statuses a
// dispatcher needs to roll an event back to its source status.
type Category = domain.Category

// New builds a Dispatcher for one category.
func New(category Category, store *eventdb.Store, f *finder.Finder, reg *registry.Registry, snd *sender.Sender, gaugesUpdater gauges.GaugesUpdater, retryInterval time.Duration, c clock.Clock, log *slog.Logger) *Dispatcher {
	if c == nil {
		c = clock.Real{}
	}
	if log == nil {
		log = slog.Default()
	}
	if gaugesUpdater == nil {
		gaugesUpdater = gauges.NoOp{}
	}
	return &Dispatcher{
		category:      category,
		store:         store,
		finder:        f,
		registry:      reg,
		sender:        snd,
		gauges:        gaugesUpdater,
		clock:         c,
		log:           log,
		retryInterval: retryInterval,
	}
}

// Run claims and dispatches events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := d.dispatchOne(ctx); err != nil {
			if errors.Is(err, finder.ErrNoEventAvailable) {
				d.sleep(ctx, d.retryInterval)
				continue
			}
			if errors.Is(err, context.Canceled) {
				return
			}
			d.log.Error("dispatch cycle failed", "category", d.category, "error", err)
			d.sleep(ctx, d.retryInterval)
		}
	}
}

func (d *Dispatcher) sleep(ctx context.Context, dur time.Duration) {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// dispatchOne claims one event, waits for a subscriber, ships it, and
// reacts to the outcome.
func (d *Dispatcher) dispatchOne(ctx context.Context) error {
	event, payload, sourceStatus, err := d.finder.PopEvent(ctx)
	if err != nil {
		return err
	}

	handle, err := d.registry.FindAvailable(ctx)
	if err != nil {
		// No subscriber ever showed up; put the event back so another
		// dispatch cycle (or a restart) can claim it. ctx is usually done
		// by now, so the rollback runs detached from its cancellation.
		if rbErr := d.rollback(context.WithoutCancel(ctx), *event, sourceStatus, d.clock.Now()); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}

	if err := eventdb.AssignDelivery(ctx, d.store.DB(), event.ID, event.ProjectID, handle.DeliveryID, handle.URL); err != nil {
		return fmt.Errorf("assign delivery: %w", err)
	}

	result, sendErr := d.sender.Send(ctx, handle.URL, *event, payload)
	if sendErr != nil {
		// Fatal 4xx from the subscriber: not retried until re-scheduled
		// by an upstream source (spec.md §7).
		d.log.Error("subscriber rejected event", "category", d.category, "event_id", event.ID, "subscriber_url", handle.URL, "error", sendErr)
		return nil
	}

	switch result {
	case sender.Delivered:
		d.registry.MarkBusy(handle.URL)
		d.gauges.RecordSent(d.category)
		d.log.Info("event delivered", "category", d.category, "event_id", event.ID, "subscriber_url", handle.URL)
		return nil
	case sender.TemporarilyUnavailable:
		d.registry.MarkBusy(handle.URL)
		retryAt := d.clock.Now().Add(d.retryInterval)
		return d.rollback(ctx, *event, sourceStatus, retryAt)
	case sender.Misdelivered:
		d.registry.Delete(handle.URL)
		return d.rollback(ctx, *event, sourceStatus, d.clock.Now())
	default:
		return fmt.Errorf("unknown sending result %q", result)
	}
}

// rollback resets a failed-to-deliver event back to an awaiting status and
// clears its delivery row so the finder can claim it again.
func (d *Dispatcher) rollback(ctx context.Context, event domain.Event, to domain.EventStatus, executionDate time.Time) error {
	return d.store.WithTx(ctx, func(tx *eventdb.Tx) error {
		_, err := eventdb.UpdateEventStatus(ctx, tx, event.ID, event.ProjectID,
			[]domain.EventStatus{d.category.InFlightStatus()}, to, &executionDate)
		if err != nil {
			return err
		}
		return eventdb.DeleteEventDelivery(ctx, tx, event.ID, event.ProjectID)
	})
}
