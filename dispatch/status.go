/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import (
	"time"

	"github.com/stackmcp/sodispatch/accessmode"
)

// StatusSnapshot is a point-in-time view of the dispatch layer for status
// reporting. It lets an operator distinguish "temporarily degraded" (anonymous
// mode, still succeeding) from "failing" (terminal errors accumulating).
type StatusSnapshot struct {
	// PendingByPriority is the number of queued (not in-flight) requests per priority.
	PendingByPriority map[Priority]int

	// InFlight is the number of requests currently being executed.
	InFlight int

	// DedupHits is the number of enqueues that attached to an already pending request.
	DedupHits uint64

	// Cache usage counters.
	CacheEntries   int
	CacheHits      uint64
	CacheMisses    uint64
	CacheEvictions uint64

	// Mode is the access mode the next call would use.
	Mode accessmode.Mode

	// QuotaKnown is false until the first upstream response in the current mode.
	QuotaKnown     bool
	QuotaRemaining int
	QuotaMax       int
	QuotaResetAt   time.Time
}

// Status returns the current status snapshot. It is safe to call concurrently
// with dispatching.
func (d *Dispatcher[V]) Status() StatusSnapshot {
	pending, inFlight := d.q.counts()
	cacheStats := d.cache.Stats()
	mode := d.selector.Choose(d.mode)
	quota := d.tracker.Snapshot(mode)

	return StatusSnapshot{
		PendingByPriority: pending,
		InFlight:          inFlight,
		DedupHits:         d.dedupHits.Load(),
		CacheEntries:      cacheStats.Entries,
		CacheHits:         cacheStats.Hits,
		CacheMisses:       cacheStats.Misses,
		CacheEvictions:    cacheStats.Evictions,
		Mode:              mode,
		QuotaKnown:        quota.QuotaKnown,
		QuotaRemaining:    quota.QuotaRemaining,
		QuotaMax:          quota.QuotaMax,
		QuotaResetAt:      quota.ResetAt,
	}
}
