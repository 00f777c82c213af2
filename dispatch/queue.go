/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import (
	"container/heap"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/xid"
)

type entryState int

const (
	stateQueued entryState = iota
	stateInFlight
	stateWaitingBackoff
)

// queueEntry is the bookkeeping record of one logical request awaiting dispatch.
// It exists from the first enqueue of its fingerprint until all its waiters are
// resolved; additional enqueues of the same fingerprint only attach waiters.
type queueEntry[V any] struct {
	id          string
	fingerprint Fingerprint
	req         Request
	priority    Priority
	seq         uint64
	enqueuedAt  time.Time

	// attempt is the 0-based index of the current physical call.
	attempt int

	// modeSwitched is set after the single allowed authenticated-to-anonymous
	// requeue, so a request never ping-pongs between transport modes.
	modeSwitched bool

	// backOff is the per-request delay schedule, created lazily on first retry.
	backOff backoff.BackOff

	comp  *completion[V]
	index int // heap index, -1 while not queued
	state entryState
}

// nextDelay returns a delay source bound to the entry's backoff schedule.
func (e *queueEntry[V]) nextDelay(policy BackoffPolicy) func() time.Duration {
	return func() time.Duration {
		if e.backOff == nil {
			e.backOff = policy.NewBackOff()
		}
		return e.backOff.NextBackOff()
	}
}

// entryHeap orders entries by priority band first and enqueue order within a band.
type entryHeap[V any] []*queueEntry[V]

func (h entryHeap[V]) Len() int { return len(h) }

func (h entryHeap[V]) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap[V]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap[V]) Push(x interface{}) {
	e := x.(*queueEntry[V])
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap[V]) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// queue owns the pending and in-flight request bookkeeping: the priority
// structure, the fingerprint dedup table and the attempt counters.
// All state is mutated under one lock; workers block on the condition variable.
type queue[V any] struct {
	mu         sync.Mutex
	cond       *sync.Cond
	heap       entryHeap[V]
	byFP       map[Fingerprint]*queueEntry[V]
	seq        uint64
	maxPending int // 0 means unlimited
	inFlight   int
	closed     bool
}

func newQueue[V any](maxPending int) *queue[V] {
	q := &queue[V]{
		byFP:       make(map[Fingerprint]*queueEntry[V]),
		maxPending: maxPending,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// enqueue returns a future for the given fingerprint, creating a new entry or
// attaching a waiter to a live one. The future is attached under the queue lock
// so a concurrent pop can never observe the entry as abandoned in between.
func (q *queue[V]) enqueue(req Request, fp Fingerprint, prio Priority) (
	fut *Future[V], entry *queueEntry[V], created bool, err error,
) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, nil, false, ErrDispatcherClosed
	}
	if e, ok := q.byFP[fp]; ok {
		return newFuture(e.comp), e, false, nil
	}
	if q.maxPending > 0 && len(q.byFP)-q.inFlight >= q.maxPending {
		return nil, nil, false, ErrQueueSaturated
	}

	q.seq++
	e := &queueEntry[V]{
		id:          xid.New().String(),
		fingerprint: fp,
		req:         req,
		priority:    prio,
		seq:         q.seq,
		enqueuedAt:  time.Now(),
		comp:        newCompletion[V](),
		index:       -1,
	}
	q.byFP[fp] = e
	fut = newFuture(e.comp)
	heap.Push(&q.heap, e)
	e.state = stateQueued
	q.cond.Signal()
	return fut, e, true, nil
}

// pop blocks until the highest-priority entry is available and returns it,
// or returns false after the queue has been closed. Entries whose waiters all
// stopped waiting are dropped here without a call.
func (q *queue[V]) pop() (*queueEntry[V], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		for len(q.heap) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.heap) == 0 {
			return nil, false
		}
		e := heap.Pop(&q.heap).(*queueEntry[V])
		if e.comp.abandoned() {
			delete(q.byFP, e.fingerprint)
			var zero V
			e.comp.resolve(zero, errAbandoned)
			continue
		}
		e.state = stateInFlight
		q.inFlight++
		return e, true
	}
}

// requeueAfter schedules the entry to be queued again after the delay.
// The entry stays in the dedup table the whole time, so a late enqueue for the
// same fingerprint still attaches as a waiter instead of starting a new call.
func (q *queue[V]) requeueAfter(e *queueEntry[V], delay time.Duration) {
	q.mu.Lock()
	e.state = stateWaitingBackoff
	q.inFlight--
	q.mu.Unlock()

	if delay <= 0 {
		q.push(e)
		return
	}
	time.AfterFunc(delay, func() { q.push(e) })
}

func (q *queue[V]) push(e *queueEntry[V]) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		delete(q.byFP, e.fingerprint)
		var zero V
		e.comp.resolve(zero, ErrDispatcherClosed)
		return
	}
	e.state = stateQueued
	heap.Push(&q.heap, e)
	q.cond.Signal()
}

// finish removes a completed (successfully or terminally failed) entry.
func (q *queue[V]) finish(e *queueEntry[V]) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.byFP, e.fingerprint)
	q.inFlight--
}

// close drains the pending entries and wakes up all blocked workers.
// The drained entries are returned so the caller can resolve their waiters.
func (q *queue[V]) close() []*queueEntry[V] {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	drained := make([]*queueEntry[V], len(q.heap))
	copy(drained, q.heap)
	q.heap = nil
	for _, e := range drained {
		delete(q.byFP, e.fingerprint)
	}
	q.cond.Broadcast()
	return drained
}

// counts returns the number of pending entries per priority and the number of
// in-flight ones. Entries waiting out a retry backoff count as pending.
func (q *queue[V]) counts() (pending map[Priority]int, inFlight int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending = make(map[Priority]int, len(Priorities()))
	for _, p := range Priorities() {
		pending[p] = 0
	}
	for _, e := range q.byFP {
		if e.state != stateInFlight {
			pending[e.priority]++
		}
	}
	return pending, q.inFlight
}
