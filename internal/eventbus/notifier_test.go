package eventbus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renku-io/event-log/internal/clock"
	"github.com/renku-io/event-log/internal/domain"
	"github.com/renku-io/event-log/internal/registry"
	"github.com/renku-io/event-log/internal/sender"
)

func TestNotifier_Publish_delivered(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("event")), &received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	reg := registry.New(domain.CategoryStatusChange, time.Minute, clock.Real{}, nil)
	reg.Add(domain.Subscriber{DeliveryID: 1, DeliveryURL: srv.URL, SourceURL: "http://source"})

	n := NewNotifier(reg, sender.New(time.Second), nil)
	err := n.Publish(context.Background(), domain.ProjectEventsToNew{ProjectID: 42, ProjectSlug: "group/project"})
	require.NoError(t, err)
	assert.EqualValues(t, 42, received["projectId"])
}

func TestNotifier_Publish_temporarilyUnavailableReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	reg := registry.New(domain.CategoryStatusChange, time.Minute, clock.Real{}, nil)
	reg.Add(domain.Subscriber{DeliveryID: 1, DeliveryURL: srv.URL, SourceURL: "http://source"})

	n := NewNotifier(reg, sender.New(time.Second), nil)
	err := n.Publish(context.Background(), domain.ProjectEventsToNew{ProjectID: 1, ProjectSlug: "group/project"})
	require.Error(t, err)
	assert.Equal(t, 1, reg.SubscriberCount(), "a temporarily-unavailable subscriber is kept")
}

func TestNotifier_Publish_misdeliveredDropsSubscriber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := srv.URL
	srv.Close()

	reg := registry.New(domain.CategoryStatusChange, time.Minute, clock.Real{}, nil)
	reg.Add(domain.Subscriber{DeliveryID: 1, DeliveryURL: deadURL, SourceURL: "http://source"})

	n := NewNotifier(reg, sender.New(time.Second), nil)
	err := n.Publish(context.Background(), domain.ProjectEventsToNew{ProjectID: 1, ProjectSlug: "group/project"})
	require.Error(t, err)
	assert.Zero(t, reg.SubscriberCount())
}
