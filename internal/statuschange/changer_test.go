package statuschange_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renku-io/event-log/internal/domain"
	"github.com/renku-io/event-log/internal/eventdb"
	"github.com/renku-io/event-log/internal/eventdbtest"
	"github.com/renku-io/event-log/internal/gauges"
	"github.com/renku-io/event-log/internal/statuschange"
)

func newStore(t *testing.T) *eventdb.Store {
	return eventdb.New(eventdbtest.Open(t))
}

func insertProject(t *testing.T, store *eventdb.Store, id int64, slug string, now time.Time) {
	t.Helper()
	require.NoError(t, eventdb.UpsertProject(context.Background(), store, id, slug, now))
}

// failingUpdater always errors out of UpdateDB and records whether
// OnRollback was invoked, exercising the Changer's compensation path
// (spec.md §8 scenario 4).
type failingUpdater struct {
	rolledBack bool
}

func (u *failingUpdater) UpdateDB(context.Context, *eventdb.Tx, domain.StatusChangeEvent) (domain.DBUpdateResults, error) {
	return domain.DBUpdateResults{}, errors.New("boom")
}

func (u *failingUpdater) OnRollback(context.Context, *eventdb.Store, domain.StatusChangeEvent) error {
	u.rolledBack = true
	return nil
}

func TestChanger_Apply_invokesOnRollbackAndPropagatesError(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	changer := statuschange.New(store, gauges.NoOp{}, nil)

	updater := &failingUpdater{}
	_, err := changer.Apply(ctx, updater, domain.ToAwaitingDeletion{EventID: 1, ProjectSlug: "group/project"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.True(t, updater.rolledBack, "a failed Apply must invoke the updater's rollback hook")
}

func TestChanger_Apply_toTriplesGenerated_commitsAndClearsDelivery(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)
	insertProject(t, store, 1, "group/project", now)

	id, err := eventdb.InsertEvent(ctx, store, domain.Event{
		ProjectID: 1, Status: domain.StatusGeneratingTriples,
		CreatedDate: now, ExecutionDate: now, EventDate: now,
	})
	require.NoError(t, err)
	require.NoError(t, eventdb.UpsertEventDelivery(ctx, store, id, 1, 7, "http://subscriber"))

	changer := statuschange.New(store, gauges.NoOp{}, nil)
	results, err := changer.Apply(ctx, statuschange.ToTriplesGeneratedUpdater{}, domain.ToTriplesGenerated{
		EventID: id, ProjectSlug: "group/project", ProcessingTime: time.Second, Payload: []byte("triples"),
	})
	require.NoError(t, err)
	assert.Equal(t, -1, deltaFor(results, "group/project", domain.StatusGeneratingTriples))
	assert.Equal(t, 1, deltaFor(results, "group/project", domain.StatusTriplesGenerated))

	counts, err := eventdb.CountByStatus(ctx, store, "group/project")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.StatusTriplesGenerated])

	has, err := eventdb.HasEventPayload(ctx, store, id, 1)
	require.NoError(t, err)
	assert.True(t, has)

	var count int
	require.NoError(t, store.QueryRowContext(ctx, `SELECT count(*) FROM event_delivery WHERE event_id = $1`, id).Scan(&count))
	assert.Zero(t, count)
}

func TestChanger_Apply_toTriplesGenerated_lostRaceIsANoOp(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)
	insertProject(t, store, 1, "group/project", now)

	id, err := eventdb.InsertEvent(ctx, store, domain.Event{
		ProjectID: 1, Status: domain.StatusNew, // already left generating_triples
		CreatedDate: now, ExecutionDate: now, EventDate: now,
	})
	require.NoError(t, err)

	changer := statuschange.New(store, gauges.NoOp{}, nil)
	results, err := changer.Apply(ctx, statuschange.ToTriplesGeneratedUpdater{}, domain.ToTriplesGenerated{
		EventID: id, ProjectSlug: "group/project", ProcessingTime: time.Second, Payload: []byte("triples"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.Empty(), results)
}

func TestChanger_Apply_toFailure_recoverableSchedulesRetryAndKeepsDelivery(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)
	insertProject(t, store, 1, "group/project", now)

	id, err := eventdb.InsertEvent(ctx, store, domain.Event{
		ProjectID: 1, Status: domain.StatusGeneratingTriples,
		CreatedDate: now, ExecutionDate: now, EventDate: now,
	})
	require.NoError(t, err)
	require.NoError(t, eventdb.UpsertEventDelivery(ctx, store, id, 1, 7, "http://subscriber"))

	updater := statuschange.NewToFailureUpdater(10 * time.Second)
	changer := statuschange.New(store, gauges.NoOp{}, nil)
	_, err = changer.Apply(ctx, updater, domain.ToFailure{
		EventID: id, ProjectSlug: "group/project",
		NewStatus: domain.StatusGenerationRecoverableFailure, Recoverable: true, Attempt: 0,
	})
	require.NoError(t, err)

	counts, err := eventdb.CountByStatus(ctx, store, "group/project")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.StatusGenerationRecoverableFailure])

	var count int
	require.NoError(t, store.QueryRowContext(ctx, `SELECT count(*) FROM event_delivery WHERE event_id = $1`, id).Scan(&count))
	assert.Equal(t, 1, count, "a recoverable failure must not clear its delivery row")
}

func TestChanger_Apply_toFailure_nonRecoverableIsTerminalAndClearsDelivery(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)
	insertProject(t, store, 1, "group/project", now)

	id, err := eventdb.InsertEvent(ctx, store, domain.Event{
		ProjectID: 1, Status: domain.StatusGeneratingTriples,
		CreatedDate: now, ExecutionDate: now, EventDate: now,
	})
	require.NoError(t, err)
	require.NoError(t, eventdb.UpsertEventDelivery(ctx, store, id, 1, 7, "http://subscriber"))

	updater := statuschange.NewToFailureUpdater(10 * time.Second)
	changer := statuschange.New(store, gauges.NoOp{}, nil)
	_, err = changer.Apply(ctx, updater, domain.ToFailure{
		EventID: id, ProjectSlug: "group/project",
		NewStatus: domain.StatusGenerationNonRecoverableFailure, Recoverable: false,
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, store.QueryRowContext(ctx, `SELECT count(*) FROM event_delivery WHERE event_id = $1`, id).Scan(&count))
	assert.Zero(t, count, "a non-recoverable failure must free the in-flight slot")
}

func TestChanger_Apply_allEventsToNew_fansOutOnePerProject(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)
	insertProject(t, store, 1, "group/a", now)
	insertProject(t, store, 2, "group/b", now)
	insertProject(t, store, 3, "group/c", now)

	var published []domain.ProjectEventsToNew
	updater := statuschange.AllEventsToNewUpdater{
		Publish: func(_ context.Context, event domain.ProjectEventsToNew) error {
			published = append(published, event)
			return nil
		},
	}

	changer := statuschange.New(store, gauges.NoOp{}, nil)
	results, err := changer.Apply(ctx, updater, domain.AllEventsToNew{})
	require.NoError(t, err)
	assert.Equal(t, domain.Empty(), results, "AllEventsToNew itself never changes counters directly")
	assert.Len(t, published, 3, "exactly one ProjectEventsToNew notification per project")
}

func TestChanger_Apply_allEventsToNew_emptyStoreEmitsNothing(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	called := false
	updater := statuschange.AllEventsToNewUpdater{
		Publish: func(context.Context, domain.ProjectEventsToNew) error {
			called = true
			return nil
		},
	}

	changer := statuschange.New(store, gauges.NoOp{}, nil)
	results, err := changer.Apply(ctx, updater, domain.AllEventsToNew{})
	require.NoError(t, err)
	assert.Equal(t, domain.Empty(), results)
	assert.False(t, called, "with zero projects, AllEventsToNew must emit nothing")
}

func TestChanger_Apply_projectEventsToNew_resyncsNonTerminalEvents(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)
	insertProject(t, store, 1, "group/project", now)

	resyncable := []domain.EventStatus{
		domain.StatusGeneratingTriples, domain.StatusTriplesGenerated, domain.StatusTransformingTriples,
	}
	var ids []int64
	for _, status := range resyncable {
		id, err := eventdb.InsertEvent(ctx, store, domain.Event{
			ProjectID: 1, Status: status, CreatedDate: now, ExecutionDate: now, EventDate: now,
		})
		require.NoError(t, err)
		ids = append(ids, id)
		require.NoError(t, eventdb.UpsertEventDelivery(ctx, store, id, 1, 1, "http://subscriber"))
	}
	// A terminal event must be left untouched.
	terminalID, err := eventdb.InsertEvent(ctx, store, domain.Event{
		ProjectID: 1, Status: domain.StatusTriplesStore, CreatedDate: now, ExecutionDate: now, EventDate: now,
	})
	require.NoError(t, err)

	changer := statuschange.New(store, gauges.NoOp{}, nil)
	_, err = changer.Apply(ctx, statuschange.ProjectEventsToNewUpdater{}, domain.ProjectEventsToNew{
		ProjectID: 1, ProjectSlug: "group/project",
	})
	require.NoError(t, err)

	counts, err := eventdb.CountByStatus(ctx, store, "group/project")
	require.NoError(t, err)
	assert.Equal(t, 3, counts[domain.StatusNew])
	assert.Equal(t, 1, counts[domain.StatusTriplesStore])

	for _, id := range ids {
		var count int
		require.NoError(t, store.QueryRowContext(ctx, `SELECT count(*) FROM event_delivery WHERE event_id = $1`, id).Scan(&count))
		assert.Zero(t, count)
	}
	_ = terminalID
}

func deltaFor(results domain.DBUpdateResults, slug string, status domain.EventStatus) int {
	for _, d := range results.Projects[slug] {
		if d.Status == status {
			return d.Delta
		}
	}
	return 0
}
