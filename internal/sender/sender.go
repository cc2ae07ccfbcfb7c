// Package sender delivers events to subscribers over HTTP and classifies
// the outcome (spec.md §4.5). The sender never retries internally; it
// reports the outcome and the surrounding loop decides.
package sender

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net"
	"net/http"
	"time"

	"github.com/renku-io/event-log/internal/domain"
)

// Result is the sender's classification of a delivery attempt.
type Result string

const (
	Delivered              Result = "delivered"
	TemporarilyUnavailable Result = "temporarily_unavailable"
	Misdelivered           Result = "misdelivered"
)

// eventEnvelope is the JSON shape of the "event" multipart part.
type eventEnvelope struct {
	EventID   int64  `json:"eventId"`
	ProjectID int64  `json:"projectId"`
	Status    string `json:"status"`
	EventDate string `json:"eventDate"`
}

// Sender ships events to subscribers over multipart/form-data HTTP POST.
type Sender struct {
	client *http.Client
}

// New builds a Sender bounded by requestTimeout.
func New(requestTimeout time.Duration) *Sender {
	return &Sender{client: &http.Client{Timeout: requestTimeout}}
}

// Send posts event (and its payload, if any) to subscriberURL and
// classifies the response per spec.md §4.5's table. A non-nil error means
// a fatal client error (e.g. a malformed subscriberURL or a 400 from the
// subscriber) that the caller must not retry.
func (s *Sender) Send(ctx context.Context, subscriberURL string, event domain.Event, payload *domain.EventPayload) (Result, error) {
	body, contentType, err := buildMultipart(event, payload)
	if err != nil {
		return "", fmt.Errorf("build request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, subscriberURL, body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted:
		return Delivered, nil
	case resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable:
		return TemporarilyUnavailable, nil
	case resp.StatusCode == http.StatusBadRequest:
		return "", fmt.Errorf("subscriber %s rejected the event: %d", subscriberURL, resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", fmt.Errorf("subscriber %s returned fatal status %d", subscriberURL, resp.StatusCode)
	default:
		return TemporarilyUnavailable, nil
	}
}

// classifyTransportError distinguishes connectivity failures, including
// TLS certificate verification failures (Misdelivered), from timeouts and
// other transport errors (TemporarilyUnavailable).
func classifyTransportError(err error) (Result, error) {
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return Misdelivered, nil
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return Misdelivered, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return TemporarilyUnavailable, nil
	}
	var urlErr interface{ Timeout() bool }
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return TemporarilyUnavailable, nil
	}
	return TemporarilyUnavailable, nil
}

func buildMultipart(event domain.Event, payload *domain.EventPayload) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	envelope := eventEnvelope{
		EventID:   event.ID,
		ProjectID: event.ProjectID,
		Status:    string(event.Status),
		EventDate: event.EventDate.Format(time.RFC3339),
	}
	eventJSON, err := json.Marshal(envelope)
	if err != nil {
		return nil, "", fmt.Errorf("marshal event envelope: %w", err)
	}
	if err := w.WriteField("event", string(eventJSON)); err != nil {
		return nil, "", fmt.Errorf("write event part: %w", err)
	}

	if payload != nil {
		part, err := w.CreateFormFile("payload", "payload.bin")
		if err != nil {
			return nil, "", fmt.Errorf("create payload part: %w", err)
		}
		if _, err := part.Write(payload.Blob); err != nil {
			return nil, "", fmt.Errorf("write payload part: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}
