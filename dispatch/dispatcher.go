/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package dispatch turns many concurrent, possibly-duplicate logical queries
// into a bounded stream of physical upstream calls. It combines a
// strict-priority deduplicating queue, a fixed worker pool, a result cache,
// a retry policy and quota-aware access-mode selection: for any request
// fingerprint at most one physical call is ever in flight, all concurrent
// callers share its result, and recent results are served from the cache.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/acronis/go-appkit/log"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"github.com/stackmcp/sodispatch/accessmode"
	"github.com/stackmcp/sodispatch/resultcache"
)

// Default parameter values for Dispatcher.
const (
	DefaultWorkers       = 5
	DefaultThrottlePause = time.Minute
)

// Executor performs the physical upstream call for a request in the given
// transport mode. It returns the payload and, when the response carried quota
// metadata, the observed quota info (also on failed calls when available).
type Executor[V any] interface {
	Execute(ctx context.Context, req Request, mode accessmode.Mode) (V, *accessmode.QuotaInfo, error)
}

// The ExecutorFunc type is an adapter to allow the use of ordinary functions as Executor.
type ExecutorFunc[V any] func(ctx context.Context, req Request, mode accessmode.Mode) (V, *accessmode.QuotaInfo, error)

// Execute implements Executor.
func (f ExecutorFunc[V]) Execute(
	ctx context.Context, req Request, mode accessmode.Mode,
) (V, *accessmode.QuotaInfo, error) {
	return f(ctx, req, mode)
}

// Dispatcher drains the request queue with a fixed pool of workers.
type Dispatcher[V any] struct {
	executor      Executor[V]
	cache         *resultcache.Cache[V]
	tracker       *accessmode.Tracker
	selector      *accessmode.Selector
	mode          accessmode.Mode
	retryPolicy   RetryPolicy
	limiter       *rate.Limiter
	throttlePause time.Duration
	workers       int
	logger        log.FieldLogger
	metrics       MetricsCollector

	q         *queue[V]
	dedupHits atomic.Uint64
}

// Opts provides options for New.
type Opts[V any] struct {
	// Workers is the number of concurrent dispatch workers. DefaultWorkers is used when 0.
	Workers int

	// MaxPending bounds the number of pending queue entries; Enqueue fails
	// fast with ErrQueueSaturated above it. 0 means unlimited.
	MaxPending int

	// Mode is the configured access mode (default ModeAuto).
	Mode accessmode.Mode

	// Cache stores completed payloads. A cache with default TTL and capacity is used when nil.
	Cache *resultcache.Cache[V]

	// Tracker holds the observed quota state. A fresh one is used when nil.
	Tracker *accessmode.Tracker

	// Selector resolves the access mode per call.
	// A credential-less selector over Tracker is used when nil.
	Selector *accessmode.Selector

	// RetryPolicy decides on retries; see RetryPolicy for the defaults.
	RetryPolicy RetryPolicy

	// RequestsPerMinute enables a client-side limiter on physical calls. 0 disables it.
	RequestsPerMinute int

	// ThrottlePause is how long the authenticated path is avoided after an
	// upstream throttle error when the response gives no reset time.
	// DefaultThrottlePause is used when 0.
	ThrottlePause time.Duration

	// Logger is used for logging. Can be nil.
	Logger log.FieldLogger

	// Metrics is a metrics collector. Can be nil.
	Metrics MetricsCollector
}

// New creates a new Dispatcher for the passed executor.
func New[V any](executor Executor[V], opts Opts[V]) (*Dispatcher[V], error) {
	if executor == nil {
		return nil, &ValidationError{Message: "executor must not be nil"}
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Cache == nil {
		opts.Cache = resultcache.New[V]()
	}
	if opts.Tracker == nil {
		opts.Tracker = accessmode.NewTracker()
	}
	if opts.Selector == nil {
		opts.Selector = accessmode.NewSelector(opts.Tracker, false)
	}
	if opts.ThrottlePause <= 0 {
		opts.ThrottlePause = DefaultThrottlePause
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = disabledMetrics{}
	}

	var limiter *rate.Limiter
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerMinute)/60, 1)
	}

	return &Dispatcher[V]{
		executor:      executor,
		cache:         opts.Cache,
		tracker:       opts.Tracker,
		selector:      opts.Selector,
		mode:          opts.Mode,
		retryPolicy:   opts.RetryPolicy,
		limiter:       limiter,
		throttlePause: opts.ThrottlePause,
		workers:       opts.Workers,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		q:             newQueue[V](opts.MaxPending),
	}, nil
}

// Enqueue registers a logical request and returns a future for its result.
// A fresh cached result resolves the future immediately. A live entry with the
// same fingerprint (pending, in flight, or waiting out a backoff) resolves the
// future together with that entry, without a new physical call.
func (d *Dispatcher[V]) Enqueue(req Request, prio Priority) (*Future[V], error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !prio.IsValid() {
		return nil, &ValidationError{Message: "unknown priority"}
	}

	fp := req.Fingerprint()
	if value, ok := d.cache.Get(string(fp)); ok {
		return newResolvedFuture(value), nil
	}

	fut, entry, created, err := d.q.enqueue(req, fp, prio)
	if err != nil {
		return nil, err
	}
	if created {
		d.updateQueueMetrics()
		d.logger.Debug("request enqueued",
			log.String("request_id", entry.id),
			log.String("op", string(req.Op)),
			log.String("priority", prio.String()))
	} else {
		d.dedupHits.Inc()
		d.logger.Debug("waiter attached to pending request",
			log.String("request_id", entry.id),
			log.String("op", string(req.Op)))
	}
	return fut, nil
}

// Run starts the worker pool and blocks until ctx is canceled. After
// cancellation, in-flight calls are given a chance to finish and all still
// pending requests are resolved with ErrDispatcherClosed.
func (d *Dispatcher[V]) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.workerLoop(ctx)
		}()
	}

	<-ctx.Done()
	drained := d.q.close()
	var zero V
	for _, e := range drained {
		e.comp.resolve(zero, ErrDispatcherClosed)
	}
	wg.Wait()
	return nil
}

func (d *Dispatcher[V]) workerLoop(ctx context.Context) {
	for {
		e, ok := d.q.pop()
		if !ok {
			return
		}
		d.updateQueueMetrics()
		d.process(ctx, e)
		d.updateQueueMetrics()
	}
}

func (d *Dispatcher[V]) process(ctx context.Context, e *queueEntry[V]) {
	var zero V

	mode := d.selector.Choose(d.mode)
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			d.q.finish(e)
			e.comp.resolve(zero, ErrDispatcherClosed)
			return
		}
	}

	start := time.Now()
	value, quota, err := d.executor.Execute(ctx, e.req, mode)
	if quota != nil {
		d.tracker.Observe(mode, *quota)
	}

	if err == nil {
		d.cache.Add(string(e.fingerprint), value)
		d.q.finish(e)
		e.comp.resolve(value, nil)
		d.metrics.ObserveRequestFinish(mode, requestStatusSuccess, start)
		d.logger.Debug("upstream call succeeded",
			log.String("request_id", e.id),
			log.String("op", string(e.req.Op)),
			log.String("mode", mode.String()),
			log.Int("attempt", e.attempt),
			log.DurationIn(time.Since(start), time.Millisecond))
		return
	}

	if d.retryPolicy.isRateLimit(err) {
		until := d.throttledUntil(quota)
		d.tracker.MarkThrottled(mode, until)
		// One immediate requeue under the other quota, but only when the
		// selector can actually pick another mode: a pinned mode would repeat
		// the same throttled call. This is a mode switch, not a retry attempt.
		if next := d.selector.Choose(d.mode); next != mode && !e.modeSwitched {
			e.modeSwitched = true
			d.metrics.IncModeSwitchesTotal()
			d.logger.Warn("quota exhausted, switching access mode",
				log.String("request_id", e.id),
				log.String("from_mode", mode.String()),
				log.String("to_mode", next.String()),
				log.Time("throttled_until", until),
				log.Error(err))
			d.q.requeueAfter(e, 0)
			return
		}
	}

	decision := d.retryPolicy.Decide(err, e.attempt, e.nextDelay(d.retryPolicy.backoffPolicy()))
	if decision.Retry {
		e.attempt++
		d.metrics.IncRetriesTotal()
		d.logger.Info("retrying upstream call",
			log.String("request_id", e.id),
			log.String("op", string(e.req.Op)),
			log.Int("attempt", e.attempt),
			log.Duration("delay", decision.Delay),
			log.Error(err))
		d.q.requeueAfter(e, decision.Delay)
		return
	}

	if decision.Exhausted {
		err = &ExhaustedRetriesError{Attempts: e.attempt + 1, Err: err}
	}
	d.q.finish(e)
	e.comp.resolve(zero, err)
	d.metrics.ObserveRequestFinish(mode, requestStatusError, start)
	d.logger.Error("upstream call failed",
		log.String("request_id", e.id),
		log.String("op", string(e.req.Op)),
		log.Int("attempt", e.attempt),
		log.Error(err))
}

func (d *Dispatcher[V]) throttledUntil(quota *accessmode.QuotaInfo) time.Time {
	now := time.Now()
	if quota != nil {
		if quota.Backoff > 0 {
			return now.Add(quota.Backoff)
		}
		if !quota.ResetAt.IsZero() {
			return quota.ResetAt
		}
	}
	return now.Add(d.throttlePause)
}

func (d *Dispatcher[V]) updateQueueMetrics() {
	pending, inFlight := d.q.counts()
	for prio, amount := range pending {
		d.metrics.SetQueueSize(prio, amount)
	}
	d.metrics.SetInFlightAmount(inFlight)
}
