// Package zombie finds in-flight events whose delivery has gone stale —
// the subscriber that claimed them never reported back — and rolls them
// back to a status the finder will dispatch again (spec.md §7, §8
// scenario 6). Modeled on the orphan-session sweep of a long-running
// worker pool: a periodic ticker scan plus a one-time startup sweep,
// both funneling through the same recovery path.
package zombie

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/renku-io/event-log/internal/clock"
	"github.com/renku-io/event-log/internal/domain"
	"github.com/renku-io/event-log/internal/eventdb"
)

// rollback maps an in-flight status to the status a stale delivery should
// be reset to, so the finder picks the event up again (spec.md §7).
var rollback = map[domain.EventStatus]domain.EventStatus{
	domain.StatusGeneratingTriples:  domain.StatusNew,
	domain.StatusTransformingTriples: domain.StatusTriplesGenerated,
	domain.StatusDeleting:           domain.StatusAwaitingDeletion,
}

func staleStatuses() []string {
	out := make([]string, 0, len(rollback))
	for s := range rollback {
		out = append(out, string(s))
	}
	return out
}

// stats tracks zombie-scan metrics (thread-safe).
type stats struct {
	mu          sync.Mutex
	lastScan    time.Time
	recovered   int
}

// Cleaner periodically scans for and recovers zombie deliveries.
type Cleaner struct {
	store     *eventdb.Store
	clock     clock.Clock
	log       *slog.Logger
	threshold time.Duration

	stats stats
}

// New builds a Cleaner whose threshold is the delivery age beyond which a
// claimed event is considered abandoned.
func New(store *eventdb.Store, threshold time.Duration, c clock.Clock, log *slog.Logger) *Cleaner {
	if c == nil {
		c = clock.Real{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Cleaner{store: store, clock: c, log: log, threshold: threshold}
}

// Run scans for zombies every scanInterval until ctx is cancelled. All
// instances of the service run this independently — recovery is
// idempotent, so overlapping scans are harmless.
func (c *Cleaner) Run(ctx context.Context, scanInterval time.Duration) {
	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.scan(ctx); err != nil {
				c.log.Error("zombie scan failed", "error", err)
			}
		}
	}
}

// scan finds and recovers every delivery older than the configured
// threshold.
func (c *Cleaner) scan(ctx context.Context) error {
	deadline := c.clock.Now().Add(-c.threshold)

	zombies, err := eventdb.FindStaleDeliveries(ctx, c.store.DB(), staleStatuses(), deadline)
	if err != nil {
		return fmt.Errorf("find stale deliveries: %w", err)
	}

	if len(zombies) == 0 {
		c.stats.mu.Lock()
		c.stats.lastScan = c.clock.Now()
		c.stats.mu.Unlock()
		return nil
	}

	c.log.Warn("detected zombie deliveries", "count", len(zombies))

	recovered := 0
	for _, z := range zombies {
		if err := c.recover(ctx, z); err != nil {
			c.log.Error("failed to recover zombie delivery", "event_id", z.EventID, "project_id", z.ProjectID, "error", err)
			continue
		}
		recovered++
	}

	c.stats.mu.Lock()
	c.stats.lastScan = c.clock.Now()
	c.stats.recovered += recovered
	c.stats.mu.Unlock()

	return nil
}

// recover resets a single stale delivery's event to the retry status with
// its execution date set to now, and clears its delivery row, inside one
// transaction.
func (c *Cleaner) recover(ctx context.Context, z eventdb.ZombieCandidate) error {
	from := domain.EventStatus(z.Status)
	to, ok := rollback[from]
	if !ok {
		return fmt.Errorf("no rollback status defined for %q", z.Status)
	}

	now := c.clock.Now()
	return c.store.WithTx(ctx, func(tx *eventdb.Tx) error {
		affected, err := eventdb.UpdateEventStatus(ctx, tx, z.EventID, z.ProjectID, []domain.EventStatus{from}, to, &now)
		if err != nil {
			return err
		}
		if !affected {
			// Already moved on by the time we got here; nothing to undo.
			return nil
		}
		if err := eventdb.DeleteEventDelivery(ctx, tx, z.EventID, z.ProjectID); err != nil {
			return err
		}
		c.log.Warn("zombie delivery recovered", "event_id", z.EventID, "project_id", z.ProjectID,
			"from_status", from, "to_status", to, "subscriber_url", z.SubscriberURL)
		return nil
	})
}

// CleanupStartupZombies performs a one-time sweep at process start, before
// any finder goroutine begins claiming events, so a crash mid-delivery in
// a previous run never leaves an event stuck past the normal scan cadence.
func CleanupStartupZombies(ctx context.Context, store *eventdb.Store, threshold time.Duration, c clock.Clock, log *slog.Logger) error {
	cleaner := New(store, threshold, c, log)
	if err := cleaner.scan(ctx); err != nil {
		return fmt.Errorf("startup zombie cleanup: %w", err)
	}
	return nil
}
