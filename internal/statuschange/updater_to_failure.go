package statuschange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/renku-io/event-log/internal/domain"
	"github.com/renku-io/event-log/internal/eventdb"
)

// ToFailureUpdater moves an event into a failure status. Recoverable
// failures are rescheduled via a monotonic per-event back-off;
// non-recoverable failures are terminal and free the in-flight slot
// (spec.md §4.3).
type ToFailureUpdater struct {
	// Now is injected so the back-off schedule is computed against a
	// controllable clock in tests; defaults to time.Now when nil.
	Now func() time.Time
	// RetryInterval seeds the exponential back-off schedule; see
	// retryBackoff.
	RetryInterval time.Duration
}

func (u ToFailureUpdater) now() time.Time {
	if u.Now != nil {
		return u.Now()
	}
	return time.Now()
}

func (u ToFailureUpdater) UpdateDB(ctx context.Context, tx *eventdb.Tx, raw domain.StatusChangeEvent) (domain.DBUpdateResults, error) {
	event, ok := raw.(domain.ToFailure)
	if !ok {
		return domain.DBUpdateResults{}, fmt.Errorf("ToFailureUpdater: unexpected event type %T", raw)
	}

	projectID, _, err := eventdb.ProjectBySlug(ctx, tx, event.ProjectSlug)
	if err != nil {
		return domain.DBUpdateResults{}, fmt.Errorf("resolve project %q: %w", event.ProjectSlug, err)
	}

	fromStatus := sourceStatusFor(event.NewStatus)

	var executionDate *time.Time
	if event.Recoverable {
		when := u.now().Add(u.retryBackoff(event.Attempt))
		executionDate = &when
	}

	affected, err := eventdb.UpdateEventStatus(ctx, tx, event.EventID, projectID,
		[]domain.EventStatus{fromStatus}, event.NewStatus, executionDate)
	if err != nil {
		return domain.DBUpdateResults{}, err
	}
	if !affected {
		return domain.Empty(), nil
	}

	if event.ProcessingTime != nil {
		if err := eventdb.UpsertProcessingTime(ctx, tx, event.EventID, projectID, event.NewStatus, *event.ProcessingTime); err != nil {
			return domain.DBUpdateResults{}, err
		}
	}

	if !event.Recoverable {
		// Non-recoverable failures free the in-flight slot permanently.
		if err := eventdb.DeleteEventDelivery(ctx, tx, event.EventID, projectID); err != nil {
			return domain.DBUpdateResults{}, err
		}
	}

	return domain.ForProject(event.ProjectSlug,
		domain.StatusDelta{Status: fromStatus, Delta: -1},
		domain.StatusDelta{Status: event.NewStatus, Delta: 1},
	), nil
}

func (u ToFailureUpdater) OnRollback(ctx context.Context, store *eventdb.Store, raw domain.StatusChangeEvent) error {
	event, ok := raw.(domain.ToFailure)
	if !ok {
		return fmt.Errorf("ToFailureUpdater: unexpected event type %T", raw)
	}
	if event.Recoverable {
		// The event remains in-flight; its delivery row is left intact
		// so the zombie cleaner can still reconcile it.
		return nil
	}
	projectID, _, err := eventdb.ProjectBySlug(ctx, store, event.ProjectSlug)
	if err != nil {
		return nil
	}
	return eventdb.DeleteEventDelivery(ctx, store, event.EventID, projectID)
}

// sourceStatusFor returns the in-flight status a failure status transitions
// from: generation failures come from generating_triples, transformation
// failures from transforming_triples.
func sourceStatusFor(newStatus domain.EventStatus) domain.EventStatus {
	if strings.HasPrefix(string(newStatus), "generation_") {
		return domain.StatusGeneratingTriples
	}
	return domain.StatusTransformingTriples
}

// retryBackoff computes the monotonic per-event back-off delay for the
// given attempt number using an exponential schedule (spec.md §9 open
// question, resolved via cenkalti/backoff/v4's ExponentialBackOff, called
// NextBackOff attempt times: attempts 0 and 1 both wait RetryInterval, and
// each attempt after that multiplies the interval by the configured
// multiplier, reproducibly, with no randomization jitter applied here so
// the schedule stays deterministic for tests).
func (u ToFailureUpdater) retryBackoff(attempt int) time.Duration {
	interval := u.RetryInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval
	b.RandomizationFactor = 0
	b.Reset()

	delay := b.InitialInterval
	for i := 0; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	if delay == backoff.Stop {
		return b.MaxInterval
	}
	return delay
}

// NewToFailureUpdater builds a ToFailureUpdater whose back-off schedule is
// seeded from the configured retry interval.
func NewToFailureUpdater(interval time.Duration) ToFailureUpdater {
	return ToFailureUpdater{RetryInterval: interval}
}
