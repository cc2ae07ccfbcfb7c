package domain

import "time"

// StatusChangeEvent is a closed tagged union over every transition the
// Status Changer can apply (spec.md §4.3). The unexported marker method
// keeps the set closed at compile time: only the variants declared in this
// file can satisfy the interface.
type StatusChangeEvent interface {
	isStatusChangeEvent()
}

// ToTriplesGenerated transitions an event from generating_triples to
// triples_generated, storing its payload and processing time.
type ToTriplesGenerated struct {
	EventID        int64
	ProjectSlug    string
	ProcessingTime time.Duration
	Payload        []byte
}

func (ToTriplesGenerated) isStatusChangeEvent() {}

// ToTriplesStore transitions an event from transforming_triples to
// triples_store.
type ToTriplesStore struct {
	EventID        int64
	ProjectSlug    string
	ProcessingTime time.Duration
}

func (ToTriplesStore) isStatusChangeEvent() {}

// ToFailure moves an event to a failure status. Recoverable failures are
// scheduled for retry via ExecutionDate; non-recoverable failures are
// terminal.
type ToFailure struct {
	EventID        int64
	ProjectSlug    string
	Message        string
	NewStatus      EventStatus
	Recoverable    bool
	ProcessingTime *time.Duration
	// Attempt is the number of prior recoverable failures for this event,
	// used to compute the monotonic back-off schedule (0 on first
	// failure).
	Attempt int
}

func (ToFailure) isStatusChangeEvent() {}

// RollbackToNew reverts an event from generating_triples back to new,
// clearing its delivery row. Only valid from generating_triples.
type RollbackToNew struct {
	EventID     int64
	ProjectSlug string
}

func (RollbackToNew) isStatusChangeEvent() {}

// RollbackToTriplesGenerated reverts an event from transforming_triples
// back to triples_generated.
type RollbackToTriplesGenerated struct {
	EventID     int64
	ProjectSlug string
}

func (RollbackToTriplesGenerated) isStatusChangeEvent() {}

// RollbackToAwaitingDeletion reverts a project's deleting event(s) back to
// awaiting_deletion.
type RollbackToAwaitingDeletion struct {
	ProjectSlug string
}

func (RollbackToAwaitingDeletion) isStatusChangeEvent() {}

// ToAwaitingDeletion marks an event as scheduled for hard deletion.
type ToAwaitingDeletion struct {
	EventID     int64
	ProjectSlug string
}

func (ToAwaitingDeletion) isStatusChangeEvent() {}

// RedoProjectTransformation moves a project's triples_store events back to
// triples_generated so they are re-transformed.
type RedoProjectTransformation struct {
	ProjectSlug string
}

func (RedoProjectTransformation) isStatusChangeEvent() {}

// ProjectEventsToNew is the outbound notification emitted once per project
// by AllEventsToNew.
type ProjectEventsToNew struct {
	ProjectID   int64
	ProjectSlug string
}

func (ProjectEventsToNew) isStatusChangeEvent() {}

// AllEventsToNew fans ProjectEventsToNew out across every project in the
// store. It carries no project-specific fields; UpdateDB always returns
// domain.Empty() for this variant, since the real counter changes happen
// when each emitted ProjectEventsToNew is itself processed.
type AllEventsToNew struct{}

func (AllEventsToNew) isStatusChangeEvent() {}
