package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renku-io/event-log/internal/clock"
	"github.com/renku-io/event-log/internal/domain"
)

func capacity(n int) *int { return &n }

func TestAdd_duplicateURLReplacesAndReportsUpdated(t *testing.T) {
	r := New(domain.CategoryAwaitingGeneration, time.Minute, nil, nil)

	added := r.Add(domain.Subscriber{DeliveryID: 1, DeliveryURL: "http://a", Capacity: capacity(3)})
	assert.True(t, added)

	added = r.Add(domain.Subscriber{DeliveryID: 1, DeliveryURL: "http://a", Capacity: capacity(5)})
	assert.False(t, added, "re-adding the same URL should report updated, not added")

	total, any := r.TotalCapacity()
	assert.True(t, any)
	assert.Equal(t, 5, total)
	assert.Equal(t, 1, r.SubscriberCount())
}

func TestAddDeleteAdd_recreatesAsAvailable(t *testing.T) {
	r := New(domain.CategoryAwaitingGeneration, time.Minute, nil, nil)
	sub := domain.Subscriber{DeliveryID: 1, DeliveryURL: "http://a"}

	assert.True(t, r.Add(sub))
	assert.True(t, r.Delete(sub.DeliveryURL))
	assert.True(t, r.Add(sub), "re-adding after delete should be a fresh add")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	h, err := r.FindAvailable(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://a", h.URL)
}

func TestTotalCapacity_noneDeclared(t *testing.T) {
	r := New(domain.CategoryAwaitingGeneration, time.Minute, nil, nil)
	r.Add(domain.Subscriber{DeliveryID: 1, DeliveryURL: "http://a"})

	total, any := r.TotalCapacity()
	assert.False(t, any)
	assert.Equal(t, 0, total)
}

func TestDelete_unknownURLReportsFalse(t *testing.T) {
	r := New(domain.CategoryAwaitingGeneration, time.Minute, nil, nil)
	assert.False(t, r.Delete("http://never-added"))
}

func TestFindAvailable_rotatesFairlyAcrossCalls(t *testing.T) {
	r := New(domain.CategoryAwaitingGeneration, time.Minute, nil, nil)
	r.Add(domain.Subscriber{DeliveryID: 1, DeliveryURL: "http://a"})
	r.Add(domain.Subscriber{DeliveryID: 2, DeliveryURL: "http://b"})

	ctx := context.Background()
	first, err := r.FindAvailable(ctx)
	require.NoError(t, err)
	second, err := r.FindAvailable(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, first.URL, second.URL, "the same subscriber should never be returned twice in a row when more than one is available")
}

func TestMarkBusy_secondCallExtendsRatherThanResets(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	r := New(domain.CategoryAwaitingGeneration, 10*time.Second, fake, nil)
	r.Add(domain.Subscriber{DeliveryID: 1, DeliveryURL: "http://a"})

	r.MarkBusy("http://a") // busyUntil = t0 + 10s
	fake.Advance(4 * time.Second)
	r.MarkBusy("http://a") // extends from t0+10s, not from t0+4s

	e := r.entries["http://a"]
	assert.Equal(t, time.Unix(0, 0).Add(20*time.Second), e.busyUntil,
		"extend semantics: second call should add busySleep to the existing window, not restart it from now")
}

func TestMarkBusy_unknownSubscriberIsANoOp(t *testing.T) {
	r := New(domain.CategoryAwaitingGeneration, time.Minute, nil, nil)
	assert.NotPanics(t, func() { r.MarkBusy("http://ghost") })
}

func TestFindAvailable_blocksThenReleasesViaAdd(t *testing.T) {
	r := New(domain.CategoryAwaitingGeneration, time.Minute, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resultCh := make(chan Handle, 1)
	go func() {
		h, err := r.FindAvailable(ctx)
		require.NoError(t, err)
		resultCh <- h
	}()

	// Give the goroutine time to enqueue before a subscriber shows up.
	time.Sleep(50 * time.Millisecond)
	r.Add(domain.Subscriber{DeliveryID: 7, DeliveryURL: "http://late"})

	select {
	case h := <-resultCh:
		assert.Equal(t, "http://late", h.URL)
	case <-time.After(time.Second):
		t.Fatal("waiter was never released by Add")
	}
}

func TestFindAvailable_releasesWaitersStrictlyFIFO(t *testing.T) {
	r := New(domain.CategoryAwaitingGeneration, time.Minute, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	const n = 5
	order := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		idx := i
		go func() {
			defer wg.Done()
			_, err := r.FindAvailable(ctx)
			require.NoError(t, err)
			order <- idx
		}()
		time.Sleep(10 * time.Millisecond) // enqueue in a known order
	}

	for i := 0; i < n; i++ {
		r.Add(domain.Subscriber{DeliveryID: int64(i), DeliveryURL: "http://s" + string(rune('a'+i))})
	}
	wg.Wait()
	close(order)

	var released []int
	for idx := range order {
		released = append(released, idx)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, released, "waiters must be released strictly FIFO")
}

func TestFindAvailable_cancelledContextRemovesWaiter(t *testing.T) {
	r := New(domain.CategoryAwaitingGeneration, time.Minute, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := r.FindAvailable(ctx)
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("FindAvailable did not return after context cancellation")
	}

	assert.Equal(t, 0, r.waiters.Len(), "a cancelled waiter must be removed from the queue")
}

func TestRun_expiresBusySubscriberAndReleasesWaiter(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	r := New(domain.CategoryAwaitingGeneration, 100*time.Millisecond, fake, nil)
	r.Add(domain.Subscriber{DeliveryID: 1, DeliveryURL: "http://a"})
	r.MarkBusy("http://a")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx, 20*time.Millisecond)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()

	resultCh := make(chan Handle, 1)
	go func() {
		h, err := r.FindAvailable(waitCtx)
		require.NoError(t, err)
		resultCh <- h
	}()

	time.Sleep(50 * time.Millisecond)
	fake.Advance(150 * time.Millisecond) // past busyUntil

	select {
	case h := <-resultCh:
		assert.Equal(t, "http://a", h.URL)
	case <-time.After(time.Second):
		t.Fatal("background checkup never expired the busy subscriber")
	}
}

func TestFindAvailable_logsEmptyPoolMessageOncePerEpisode(t *testing.T) {
	r := New(domain.CategoryAwaitingGeneration, time.Minute, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		go func() { _, _ = r.FindAvailable(ctx) }()
		time.Sleep(10 * time.Millisecond)
	}

	r.mu.Lock()
	logged := r.loggedEmptyPool
	waiting := r.waiters.Len()
	r.mu.Unlock()

	assert.True(t, logged)
	assert.Equal(t, 3, waiting)
}
