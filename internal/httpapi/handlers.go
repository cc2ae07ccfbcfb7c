package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/renku-io/event-log/internal/domain"
	"github.com/renku-io/event-log/internal/eventdb"
)

// postEvent implements POST /events (spec.md §4.6): multipart with an
// "event" JSON part and an optional "payload" part.
func (s *Server) postEvent(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		writeError(c, http.StatusBadRequest, "Not multipart request")
		return
	}

	eventParts := form.Value["event"]
	if len(eventParts) == 0 {
		writeError(c, http.StatusBadRequest, "Missing event part")
		return
	}

	var env envelope
	if err := json.Unmarshal([]byte(eventParts[0]), &env); err != nil {
		writeError(c, http.StatusBadRequest, "Malformed event body")
		return
	}

	var payload []byte
	if files := form.File["payload"]; len(files) > 0 {
		f, err := files[0].Open()
		if err != nil {
			writeError(c, http.StatusBadRequest, "Malformed event body")
			return
		}
		defer f.Close()
		payload, err = io.ReadAll(f)
		if err != nil {
			writeError(c, http.StatusBadRequest, "Malformed event body")
			return
		}
	}

	changeEvent, err := env.toStatusChangeEvent(payload)
	if err != nil {
		writeError(c, http.StatusBadRequest, "Unsupported Event Type")
		return
	}

	consumer, ok := s.consumers[domain.Category(env.CategoryName)]
	if !ok {
		writeError(c, http.StatusBadRequest, "Unsupported Event Type")
		return
	}

	if err := consumer.Accept(c.Request.Context(), env.SubCategory, changeEvent); err != nil {
		writeConsumerError(c, err)
		return
	}

	c.Status(http.StatusAccepted)
}

func writeConsumerError(c *gin.Context, err error) {
	var unsupported ErrUnsupportedEventType
	var badRequest ErrBadRequest
	var unavailable ErrServiceUnavailable

	switch {
	case errors.Is(err, ErrBusy):
		writeError(c, http.StatusTooManyRequests, "Busy")
	case errors.As(err, &unsupported):
		writeError(c, http.StatusBadRequest, "Unsupported Event Type")
	case errors.As(err, &badRequest):
		writeError(c, http.StatusBadRequest, badRequest.Reason)
	case errors.As(err, &unavailable):
		writeError(c, http.StatusServiceUnavailable, unavailable.Reason)
	default:
		writeError(c, http.StatusInternalServerError, "SchedulingError")
	}
}

// writeError writes the error envelope common to every failing response on
// this service's one external interface (spec.md §7): severity is "error"
// for every path reachable here, "info" being reserved for non-failure
// notices this endpoint never emits.
func writeError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"severity": "error", "message": message})
}

// eventResponse is one element of GET /events' JSON array (spec.md §6).
type eventResponse struct {
	ID              int64                   `json:"id"`
	Status          domain.EventStatus      `json:"status"`
	Message         string                  `json:"message,omitempty"`
	ProcessingTimes []processingTimeEntry   `json:"processingTimes"`
}

type processingTimeEntry struct {
	Status         domain.EventStatus `json:"status"`
	ProcessingTime int64              `json:"processingTime"`
}

// getEvents implements GET /events?project-slug=<slug>.
func (s *Server) getEvents(c *gin.Context) {
	slug := c.Query("project-slug")
	if slug == "" {
		writeError(c, http.StatusBadRequest, "Missing project-slug")
		return
	}

	summaries, err := eventdb.EventsForProject(c.Request.Context(), s.store.DB(), slug)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]eventResponse, len(summaries))
	for i, e := range summaries {
		times := make([]processingTimeEntry, len(e.ProcessingTimes))
		for j, pt := range e.ProcessingTimes {
			times[j] = processingTimeEntry{Status: pt.Status, ProcessingTime: pt.Duration.Milliseconds()}
		}
		out[i] = eventResponse{ID: e.ID, Status: e.Status, Message: e.Message, ProcessingTimes: times}
	}

	c.JSON(http.StatusOK, out)
}
