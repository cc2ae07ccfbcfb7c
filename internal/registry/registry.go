// Package registry is the in-memory, concurrent, per-category pool of
// subscribers: availability/busy states, capacity accounting, and a
// waiting queue for clients blocked on "no available subscriber"
// (spec.md §4.4). Modeled on the concurrency shape of a WebSocket
// connection manager (register/unregister under a narrow lock, notify
// without holding it) paired with a worker pool's background ticker,
// stopped by cancelling its context.
package registry

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/renku-io/event-log/internal/clock"
	"github.com/renku-io/event-log/internal/domain"
)

type state int

const (
	stateAvailable state = iota
	stateBusy
)

type entry struct {
	url        string
	sourceURL  string
	deliveryID int64
	capacity   *int
	state      state
	busyUntil  time.Time
}

// Registry is one category's subscriber pool.
type Registry struct {
	mu       sync.Mutex
	category domain.Category
	busySleep time.Duration
	clock    clock.Clock
	log      *slog.Logger

	entries map[string]*entry
	order   []string // insertion order, for round-robin rotation
	next    int      // rotation cursor into order

	waiters *list.List // of chan Handle, released strictly FIFO

	loggedEmptyPool bool
}

// New builds a Registry for one category.
func New(category domain.Category, busySleep time.Duration, c clock.Clock, log *slog.Logger) *Registry {
	if c == nil {
		c = clock.Real{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		category:  category,
		busySleep: busySleep,
		clock:     c,
		log:       log,
		entries:   make(map[string]*entry),
		waiters:   list.New(),
	}
}

// Handle identifies the subscriber FindAvailable picked: its callback URL
// and the delivery id it registered with, which callers need to record
// against the event_delivery row.
type Handle struct {
	URL        string
	DeliveryID int64
}

// Add registers a subscriber by URL identity. If the URL already exists
// with a different delivery id or capacity, its entry is replaced and
// false is returned ("updated, not added"); otherwise true is returned.
// A deleted or absent subscriber is (re-)created as available.
func (r *Registry) Add(sub domain.Subscriber) bool {
	r.mu.Lock()
	_, had := r.entries[sub.DeliveryURL]
	added := !had

	e := &entry{
		url:        sub.DeliveryURL,
		sourceURL:  sub.SourceURL,
		deliveryID: sub.DeliveryID,
		capacity:   sub.Capacity,
		state:      stateAvailable,
	}
	r.entries[sub.DeliveryURL] = e
	if !had {
		r.order = append(r.order, sub.DeliveryURL)
	}

	waiter := r.popWaiterLocked()
	r.mu.Unlock()

	if waiter != nil {
		waiter <- Handle{URL: sub.DeliveryURL, DeliveryID: sub.DeliveryID}
	}
	return added
}

// FindAvailable returns the next available subscriber, rotating so the
// same subscriber is never returned twice in a row when more than one is
// available. If none is available, the caller is enqueued and blocks
// until one is released, the context is cancelled, or ctx is done.
func (r *Registry) FindAvailable(ctx context.Context) (Handle, error) {
	r.mu.Lock()
	if h, ok := r.takeAvailableLocked(); ok {
		r.mu.Unlock()
		return h, nil
	}

	if !r.loggedEmptyPool {
		r.log.Info(fmt.Sprintf("all %d subscriber(s) are busy; waiting for one to become available", len(r.entries)))
		r.loggedEmptyPool = true
	}

	ch := make(chan Handle, 1)
	elem := r.waiters.PushBack(ch)
	r.mu.Unlock()

	select {
	case h := <-ch:
		return h, nil
	case <-ctx.Done():
		r.mu.Lock()
		r.removeWaiterLocked(elem)
		r.mu.Unlock()
		return Handle{}, ctx.Err()
	}
}

// takeAvailableLocked picks the next available subscriber in rotation
// order. Must be called with r.mu held.
func (r *Registry) takeAvailableLocked() (Handle, bool) {
	n := len(r.order)
	for i := 0; i < n; i++ {
		idx := (r.next + i) % n
		url := r.order[idx]
		e, ok := r.entries[url]
		if !ok || e.state != stateAvailable {
			continue
		}
		r.next = (idx + 1) % n
		r.loggedEmptyPool = false
		return Handle{URL: url, DeliveryID: e.deliveryID}, true
	}
	return Handle{}, false
}

// popWaiterLocked removes and returns the oldest waiting channel, if any.
// Must be called with r.mu held; the caller sends to the returned channel
// after releasing the lock.
func (r *Registry) popWaiterLocked() chan Handle {
	front := r.waiters.Front()
	if front == nil {
		return nil
	}
	r.waiters.Remove(front)
	return front.Value.(chan Handle)
}

func (r *Registry) removeWaiterLocked(elem *list.Element) {
	for e := r.waiters.Front(); e != nil; e = e.Next() {
		if e == elem {
			r.waiters.Remove(e)
			return
		}
	}
}

// MarkBusy marks a subscriber unavailable for busySleep. If already busy,
// the window is extended by another busySleep starting now rather than
// reset (spec.md §4.4, §8, §9 open question resolved to "extend").
func (r *Registry) MarkBusy(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[url]
	if !ok {
		return
	}
	now := r.clock.Now()
	if e.state == stateBusy && e.busyUntil.After(now) {
		// Extend, never reset (spec.md §9 open question, resolved to
		// "extend").
		e.busyUntil = e.busyUntil.Add(r.busySleep)
	} else {
		e.busyUntil = now.Add(r.busySleep)
	}
	e.state = stateBusy
}

// Delete removes a subscriber regardless of state, reporting whether it
// existed.
func (r *Registry) Delete(url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[url]; !ok {
		return false
	}
	delete(r.entries, url)
	for i, u := range r.order {
		if u == url {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.next >= len(r.order) {
		r.next = 0
	}
	return true
}

// SubscriberCount returns the number of registered subscribers (any
// state).
func (r *Registry) SubscriberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// TotalCapacity returns the sum of declared subscriber capacity, or false
// when no subscriber has declared any.
func (r *Registry) TotalCapacity() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	any := false
	for _, e := range r.entries {
		if e.capacity != nil {
			total += *e.capacity
			any = true
		}
	}
	return total, any
}

// Run ticks every checkupInterval, transitioning expired busy subscribers
// back to available and waking waiters. It returns when ctx is cancelled.
func (r *Registry) Run(ctx context.Context, checkupInterval time.Duration) {
	ticker := time.NewTicker(checkupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.checkup()
		}
	}
}

type release struct {
	waiter chan Handle
	handle Handle
}

func (r *Registry) checkup() {
	now := r.clock.Now()
	var releases []release

	r.mu.Lock()
	for _, e := range r.entries {
		if e.state == stateBusy && !e.busyUntil.After(now) {
			e.state = stateAvailable
		}
	}
	// Pair newly-available subscribers with waiters strictly FIFO; any
	// subscriber left over after waiters are exhausted simply stays
	// available for the next FindAvailable caller.
	for r.waiters.Len() > 0 {
		h, ok := r.takeAvailableLocked()
		if !ok {
			break
		}
		waiter := r.popWaiterLocked()
		releases = append(releases, release{waiter: waiter, handle: h})
	}
	r.mu.Unlock()

	for _, rel := range releases {
		rel.waiter <- rel.handle
	}
}
