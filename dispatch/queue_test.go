/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mustEnqueue(t *testing.T, q *queue[string], op OperationKind, key string, prio Priority) *Future[string] {
	t.Helper()
	req := Request{Op: op, Params: map[string]string{"q": key}}
	fut, _, _, err := q.enqueue(req, req.Fingerprint(), prio)
	require.NoError(t, err)
	return fut
}

func TestQueuePriorityOrdering(t *testing.T) {
	q := newQueue[string](0)

	mustEnqueue(t, q, OpSearchQuestions, "low", PriorityLow)
	mustEnqueue(t, q, OpSearchQuestions, "urgent", PriorityUrgent)
	mustEnqueue(t, q, OpSearchQuestions, "normal", PriorityNormal)
	mustEnqueue(t, q, OpSearchQuestions, "high", PriorityHigh)

	var got []string
	for i := 0; i < 4; i++ {
		e, ok := q.pop()
		require.True(t, ok)
		got = append(got, e.req.Params["q"])
		q.finish(e)
	}
	require.Equal(t, []string{"urgent", "high", "normal", "low"}, got)
}

func TestQueueFIFOWithinPriority(t *testing.T) {
	q := newQueue[string](0)

	mustEnqueue(t, q, OpSearchQuestions, "first", PriorityNormal)
	mustEnqueue(t, q, OpSearchQuestions, "second", PriorityNormal)
	mustEnqueue(t, q, OpSearchQuestions, "third", PriorityNormal)

	var got []string
	for i := 0; i < 3; i++ {
		e, ok := q.pop()
		require.True(t, ok)
		got = append(got, e.req.Params["q"])
		q.finish(e)
	}
	require.Equal(t, []string{"first", "second", "third"}, got)
}

func TestQueueDedupAttachesWaiter(t *testing.T) {
	q := newQueue[string](0)
	req := Request{Op: OpSearchQuestions, Params: map[string]string{"q": "mutex"}}
	fp := req.Fingerprint()

	_, e1, created, err := q.enqueue(req, fp, PriorityNormal)
	require.NoError(t, err)
	require.True(t, created)

	_, e2, created, err := q.enqueue(req, fp, PriorityNormal)
	require.NoError(t, err)
	require.False(t, created)
	require.Same(t, e1, e2)

	// Only one physical entry is queued.
	e, ok := q.pop()
	require.True(t, ok)
	require.Same(t, e1, e)
	q.finish(e)
	pending, inFlight := q.counts()
	require.Equal(t, 0, inFlight)
	for _, amount := range pending {
		require.Zero(t, amount)
	}
}

func TestQueueDedupWhileWaitingBackoff(t *testing.T) {
	q := newQueue[string](0)
	req := Request{Op: OpSearchQuestions, Params: map[string]string{"q": "mutex"}}
	fp := req.Fingerprint()

	_, e1, created, err := q.enqueue(req, fp, PriorityNormal)
	require.NoError(t, err)
	require.True(t, created)

	e, ok := q.pop()
	require.True(t, ok)
	q.requeueAfter(e, 50*time.Millisecond)

	// The entry stays visible for dedup while waiting out its backoff.
	_, e2, created, err := q.enqueue(req, fp, PriorityNormal)
	require.NoError(t, err)
	require.False(t, created)
	require.Same(t, e1, e2)

	e, ok = q.pop()
	require.True(t, ok)
	require.Same(t, e1, e)
	q.finish(e)
}

func TestQueueSaturation(t *testing.T) {
	q := newQueue[string](2)

	mustEnqueue(t, q, OpSearchQuestions, "a", PriorityNormal)
	mustEnqueue(t, q, OpSearchQuestions, "b", PriorityNormal)

	req := Request{Op: OpSearchQuestions, Params: map[string]string{"q": "c"}}
	_, _, _, err := q.enqueue(req, req.Fingerprint(), PriorityNormal)
	require.ErrorIs(t, err, ErrQueueSaturated)

	// Attaching to an existing fingerprint is not limited by the pending cap.
	reqA := Request{Op: OpSearchQuestions, Params: map[string]string{"q": "a"}}
	_, _, created, err := q.enqueue(reqA, reqA.Fingerprint(), PriorityNormal)
	require.NoError(t, err)
	require.False(t, created)

	// In-flight entries free their pending slot.
	e, ok := q.pop()
	require.True(t, ok)
	_, _, created, err = q.enqueue(req, req.Fingerprint(), PriorityNormal)
	require.NoError(t, err)
	require.True(t, created)
	q.finish(e)
}

func TestQueuePopSkipsAbandonedEntries(t *testing.T) {
	q := newQueue[string](0)

	fut := mustEnqueue(t, q, OpSearchQuestions, "abandoned", PriorityUrgent)
	mustEnqueue(t, q, OpSearchQuestions, "wanted", PriorityNormal)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fut.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)

	e, ok := q.pop()
	require.True(t, ok)
	require.Equal(t, "wanted", e.req.Params["q"])
	q.finish(e)
}

func TestQueueCloseDrainsPending(t *testing.T) {
	q := newQueue[string](0)

	mustEnqueue(t, q, OpSearchQuestions, "a", PriorityNormal)
	mustEnqueue(t, q, OpSearchQuestions, "b", PriorityHigh)

	drained := q.close()
	require.Len(t, drained, 2)

	_, ok := q.pop()
	require.False(t, ok)

	req := Request{Op: OpSearchQuestions, Params: map[string]string{"q": "late"}}
	_, _, _, err := q.enqueue(req, req.Fingerprint(), PriorityNormal)
	require.ErrorIs(t, err, ErrDispatcherClosed)
}
