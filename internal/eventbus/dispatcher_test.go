package eventbus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renku-io/event-log/internal/clock"
	"github.com/renku-io/event-log/internal/domain"
	"github.com/renku-io/event-log/internal/eventdb"
	"github.com/renku-io/event-log/internal/eventdbtest"
	"github.com/renku-io/event-log/internal/finder"
	"github.com/renku-io/event-log/internal/gauges"
	"github.com/renku-io/event-log/internal/registry"
	"github.com/renku-io/event-log/internal/sender"
)

func newStore(t *testing.T) *eventdb.Store {
	return eventdb.New(eventdbtest.Open(t))
}

func seedNewEvent(t *testing.T, store *eventdb.Store, slug string) int64 {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, eventdb.UpsertProject(ctx, store, 1, slug, now))
	id, err := eventdb.InsertEvent(ctx, store, domain.Event{
		ProjectID: 1, Status: domain.StatusNew, CreatedDate: now, ExecutionDate: now.Add(-time.Minute), EventDate: now,
	})
	require.NoError(t, err)
	return id
}

func newDispatcher(store *eventdb.Store, reg *registry.Registry, c clock.Clock) *Dispatcher {
	f := finder.New(domain.CategoryAwaitingGeneration, store, finder.LeastOccupiedFirst{}, 50, c, nil)
	snd := sender.New(time.Second)
	return New(domain.CategoryAwaitingGeneration, store, f, reg, snd, gauges.NoOp{}, 10*time.Millisecond, c, nil)
}

func TestDispatcher_dispatchOne_delivered(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seedNewEvent(t, store, "group/project")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	reg := registry.New(domain.CategoryAwaitingGeneration, time.Minute, clock.Real{}, nil)
	reg.Add(domain.Subscriber{DeliveryID: 1, DeliveryURL: srv.URL, SourceURL: "http://source"})

	d := newDispatcher(store, reg, clock.Real{})
	require.NoError(t, d.dispatchOne(ctx))

	counts, err := eventdb.CountByStatus(ctx, store, "group/project")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.StatusGeneratingTriples], "a delivered event stays in its in-flight status")

	assert.Equal(t, 1, reg.SubscriberCount())
}

func TestDispatcher_dispatchOne_temporarilyUnavailableRollsBack(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seedNewEvent(t, store, "group/project")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	reg := registry.New(domain.CategoryAwaitingGeneration, time.Minute, clock.Real{}, nil)
	reg.Add(domain.Subscriber{DeliveryID: 1, DeliveryURL: srv.URL, SourceURL: "http://source"})

	fake := clock.NewFake(time.Now())
	d := newDispatcher(store, reg, fake)
	require.NoError(t, d.dispatchOne(ctx))

	counts, err := eventdb.CountByStatus(ctx, store, "group/project")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.StatusNew], "a temporarily-unavailable subscriber rolls the event back to its source status")

	var deliveryCount int
	require.NoError(t, store.QueryRowContext(ctx, `SELECT count(*) FROM event_delivery`).Scan(&deliveryCount))
	assert.Zero(t, deliveryCount)

	assert.Equal(t, 1, reg.SubscriberCount(), "a temporarily-unavailable subscriber is kept, only marked busy")
}

func TestDispatcher_dispatchOne_misdeliveredDropsSubscriberAndRollsBack(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seedNewEvent(t, store, "group/project")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := srv.URL
	srv.Close() // nothing listens here anymore: connection refused

	reg := registry.New(domain.CategoryAwaitingGeneration, time.Minute, clock.Real{}, nil)
	reg.Add(domain.Subscriber{DeliveryID: 1, DeliveryURL: deadURL, SourceURL: "http://source"})

	d := newDispatcher(store, reg, clock.Real{})
	require.NoError(t, d.dispatchOne(ctx))

	counts, err := eventdb.CountByStatus(ctx, store, "group/project")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.StatusNew])

	assert.Zero(t, reg.SubscriberCount(), "a misdelivered subscriber must be removed from the registry")
}

func TestDispatcher_dispatchOne_noSubscriberRollsBackImmediately(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seedNewEvent(t, store, "group/project")

	reg := registry.New(domain.CategoryAwaitingGeneration, time.Minute, clock.Real{}, nil)

	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	d := newDispatcher(store, reg, clock.Real{})
	err := d.dispatchOne(cancelCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	counts, err := eventdb.CountByStatus(ctx, store, "group/project")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.StatusNew], "with no subscriber ever available, the claimed event is put back")
}
