/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import (
	"context"
	"sync"

	"go.uber.org/atomic"
)

// completion is the shared resolution state of one queued request.
// All waiters attached to the same fingerprint observe the same result, and the
// result is set exactly once in a fan-out broadcast (closing the done channel).
type completion[V any] struct {
	done    chan struct{}
	value   V
	err     error
	once    sync.Once
	waiters atomic.Int64 // callers that are still interested in the result
}

func newCompletion[V any]() *completion[V] {
	return &completion[V]{done: make(chan struct{})}
}

func (c *completion[V]) resolve(value V, err error) {
	c.once.Do(func() {
		c.value = value
		c.err = err
		close(c.done)
	})
}

func (c *completion[V]) abandoned() bool {
	return c.waiters.Load() <= 0
}

// Future is a completion handle for one logical caller awaiting the result of
// a possibly shared in-flight request.
type Future[V any] struct {
	comp        *completion[V]
	abandonOnce sync.Once
}

func newFuture[V any](comp *completion[V]) *Future[V] {
	comp.waiters.Inc()
	return &Future[V]{comp: comp}
}

func newResolvedFuture[V any](value V) *Future[V] {
	comp := newCompletion[V]()
	comp.waiters.Inc()
	comp.resolve(value, nil)
	return &Future[V]{comp: comp}
}

// Wait blocks until the request is resolved or ctx is done.
// When ctx fires first, the caller stops waiting but the underlying request is
// not canceled: other waiters and the cache still benefit from its completion.
func (f *Future[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-f.comp.done:
		return f.comp.value, f.comp.err
	case <-ctx.Done():
		f.abandonOnce.Do(func() { f.comp.waiters.Dec() })
		var zero V
		return zero, ctx.Err()
	}
}

// Done returns a channel that is closed when the request is resolved.
func (f *Future[V]) Done() <-chan struct{} {
	return f.comp.done
}

// Result returns the resolution value and error.
// It must be called only after Done is closed.
func (f *Future[V]) Result() (V, error) {
	return f.comp.value, f.comp.err
}
