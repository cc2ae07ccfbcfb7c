package httpapi

import (
	"fmt"
	"time"

	"github.com/renku-io/event-log/internal/domain"
)

// envelope is the wire shape of the "event" multipart part (spec.md §6).
// Not every field is used by every subCategory.
type envelope struct {
	CategoryName string `json:"categoryName"`
	Project      struct {
		ID   int64  `json:"id"`
		Slug string `json:"slug"`
	} `json:"project"`
	SubCategory       string `json:"subCategory"`
	EventID           int64  `json:"eventId"`
	Message           string `json:"message"`
	NewStatus         string `json:"newStatus"`
	Recoverable       bool   `json:"recoverable"`
	Attempt           int    `json:"attempt"`
	ProcessingTimeMs  *int64 `json:"processingTimeMs"`
}

// toStatusChangeEvent builds the concrete domain event a given envelope
// describes. payload is the request's payload part (nil when none
// accompanied it) and is only used by the one variant that stores it.
func (e envelope) toStatusChangeEvent(payload []byte) (domain.StatusChangeEvent, error) {
	var processingTime time.Duration
	if e.ProcessingTimeMs != nil {
		processingTime = time.Duration(*e.ProcessingTimeMs) * time.Millisecond
	}

	switch e.SubCategory {
	case "ToTriplesGenerated":
		return domain.ToTriplesGenerated{
			EventID:        e.EventID,
			ProjectSlug:    e.Project.Slug,
			ProcessingTime: processingTime,
			Payload:        payload,
		}, nil
	case "ToTriplesStore":
		return domain.ToTriplesStore{
			EventID:        e.EventID,
			ProjectSlug:    e.Project.Slug,
			ProcessingTime: processingTime,
		}, nil
	case "ToFailure":
		var pt *time.Duration
		if e.ProcessingTimeMs != nil {
			pt = &processingTime
		}
		return domain.ToFailure{
			EventID:        e.EventID,
			ProjectSlug:    e.Project.Slug,
			Message:        e.Message,
			NewStatus:      domain.EventStatus(e.NewStatus),
			Recoverable:    e.Recoverable,
			ProcessingTime: pt,
			Attempt:        e.Attempt,
		}, nil
	case "RollbackToNew":
		return domain.RollbackToNew{EventID: e.EventID, ProjectSlug: e.Project.Slug}, nil
	case "RollbackToTriplesGenerated":
		return domain.RollbackToTriplesGenerated{EventID: e.EventID, ProjectSlug: e.Project.Slug}, nil
	case "RollbackToAwaitingDeletion":
		return domain.RollbackToAwaitingDeletion{ProjectSlug: e.Project.Slug}, nil
	case "ToAwaitingDeletion":
		return domain.ToAwaitingDeletion{EventID: e.EventID, ProjectSlug: e.Project.Slug}, nil
	case "RedoProjectTransformation":
		return domain.RedoProjectTransformation{ProjectSlug: e.Project.Slug}, nil
	case "ProjectEventsToNew":
		return domain.ProjectEventsToNew{ProjectID: e.Project.ID, ProjectSlug: e.Project.Slug}, nil
	case "AllEventsToNew":
		return domain.AllEventsToNew{}, nil
	default:
		return nil, fmt.Errorf("unknown subCategory %q", e.SubCategory)
	}
}
