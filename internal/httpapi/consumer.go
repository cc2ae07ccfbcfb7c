package httpapi

import (
	"context"
	"fmt"

	"github.com/renku-io/event-log/internal/domain"
	"github.com/renku-io/event-log/internal/statuschange"
)

// ErrUnsupportedEventType means the envelope named a subCategory this
// consumer has no updater for.
type ErrUnsupportedEventType struct{ SubCategory string }

func (e ErrUnsupportedEventType) Error() string {
	return fmt.Sprintf("unsupported event type %q", e.SubCategory)
}

// ErrBadRequest wraps a caller-facing 400 reason.
type ErrBadRequest struct{ Reason string }

func (e ErrBadRequest) Error() string { return e.Reason }

// ErrServiceUnavailable wraps a caller-facing 503 reason.
type ErrServiceUnavailable struct{ Reason string }

func (e ErrServiceUnavailable) Error() string { return e.Reason }

// ErrBusy means the consumer's concurrency limit for this category is
// already saturated (spec.md §5 backpressure).
var ErrBusy = fmt.Errorf("consumer busy")

// Consumer dispatches decoded envelopes to the status changer for one
// category, behind a bounded concurrency limiter (spec.md §4.6, §5).
type Consumer struct {
	changer  *statuschange.Changer
	updaters map[string]statuschange.Updater
	limiter  chan struct{}
}

// NewConsumer builds a Consumer with the given per-subCategory updater map
// and a concurrency limit (spec.md's `per_category_concurrency_limit`).
func NewConsumer(changer *statuschange.Changer, updaters map[string]statuschange.Updater, concurrencyLimit int) *Consumer {
	if concurrencyLimit < 1 {
		concurrencyLimit = 1
	}
	return &Consumer{changer: changer, updaters: updaters, limiter: make(chan struct{}, concurrencyLimit)}
}

// Accept applies a decoded status-change event, enforcing the concurrency
// limit and classifying the result per §4.6's response table.
func (c *Consumer) Accept(ctx context.Context, subCategory string, event domain.StatusChangeEvent) error {
	updater, ok := c.updaters[subCategory]
	if !ok {
		return ErrUnsupportedEventType{SubCategory: subCategory}
	}

	select {
	case c.limiter <- struct{}{}:
	default:
		return ErrBusy
	}
	defer func() { <-c.limiter }()

	if _, err := c.changer.Apply(ctx, updater, event); err != nil {
		return ErrServiceUnavailable{Reason: err.Error()}
	}
	return nil
}
