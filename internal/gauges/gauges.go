// Package gauges keeps the per-project, per-status event counters exposed
// to metrics consistent with the store (spec.md §8 invariant 1). The
// Status Changer calls UpdateGauges after every committed transition,
// best-effort: a failure here is logged but never fails the status
// change itself (spec.md §4.3 step 2).
package gauges

import "github.com/renku-io/event-log/internal/domain"

// GaugesUpdater applies the counter deltas produced by an Updater's
// UpdateDB step.
type GaugesUpdater interface {
	UpdateGauges(results domain.DBUpdateResults)
	// RecordSent increments the per-category delivered-events counter.
	RecordSent(category domain.Category)
	// RecordSubscriberPool reports the current subscriber count and total
	// declared capacity for a category (capacity is nil when no
	// subscriber declared one).
	RecordSubscriberPool(category domain.Category, subscriberCount int, totalCapacity *int)
}

// NoOp discards every update; used in tests and wherever metrics are not
// wired.
type NoOp struct{}

func (NoOp) UpdateGauges(domain.DBUpdateResults)                                {}
func (NoOp) RecordSent(domain.Category)                                         {}
func (NoOp) RecordSubscriberPool(domain.Category, int, *int)                    {}

var _ GaugesUpdater = NoOp{}
