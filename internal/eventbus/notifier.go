package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/renku-io/event-log/internal/domain"
	"github.com/renku-io/event-log/internal/registry"
	"github.com/renku-io/event-log/internal/sender"
)

// Notifier pushes project-level notifications (currently just
// ProjectEventsToNew, spec.md §6) to one available subscriber of the
// EVENTS_STATUS_CHANGE category. Unlike Dispatcher it has nothing to roll
// back in the store on failure: a failed push is returned to the caller
// as an error.
type Notifier struct {
	registry *registry.Registry
	sender   *sender.Sender
	log      *slog.Logger
}

// NewNotifier builds a Notifier over the EVENTS_STATUS_CHANGE registry.
func NewNotifier(reg *registry.Registry, snd *sender.Sender, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{registry: reg, sender: snd, log: log}
}

// Publish matches AllEventsToNewUpdater's Publish hook: it waits for an
// available subscriber and sends the notification through the sender. The
// sent event part carries the project id and the status
// "project_events_to_new"; the sender does not send EventBody, so the
// project slug is not part of what the subscriber receives.
func (n *Notifier) Publish(ctx context.Context, notification domain.ProjectEventsToNew) error {
	handle, err := n.registry.FindAvailable(ctx)
	if err != nil {
		return fmt.Errorf("no subscriber available for notification: %w", err)
	}

	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	event := domain.Event{ProjectID: notification.ProjectID, Status: "project_events_to_new", EventBody: body}
	result, sendErr := n.sender.Send(ctx, handle.URL, event, nil)
	if sendErr != nil {
		n.log.Error("notification rejected by subscriber", "project_slug", notification.ProjectSlug, "subscriber_url", handle.URL, "error", sendErr)
		return sendErr
	}

	switch result {
	case sender.Delivered:
		n.registry.MarkBusy(handle.URL)
		return nil
	case sender.TemporarilyUnavailable:
		n.registry.MarkBusy(handle.URL)
		return fmt.Errorf("subscriber %s temporarily unavailable", handle.URL)
	case sender.Misdelivered:
		n.registry.Delete(handle.URL)
		return fmt.Errorf("subscriber %s unreachable", handle.URL)
	default:
		return fmt.Errorf("unknown sending result %q", result)
	}
}
