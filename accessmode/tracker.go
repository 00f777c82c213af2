/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package accessmode

import (
	"sync"
	"time"
)

// QuotaInfo is quota metadata extracted from a single upstream response.
type QuotaInfo struct {
	// QuotaMax is the total quota for the current window.
	QuotaMax int

	// QuotaRemaining is the number of calls left in the current window.
	QuotaRemaining int

	// HasQuota is false when the response carried no quota fields
	// (e.g. the body could not be parsed).
	HasQuota bool

	// ResetAt is the time the quota window resets. Zero when unknown.
	ResetAt time.Time

	// Backoff is an upstream-mandated pause before the next call to the same
	// method. Zero when the response carried no backoff field.
	Backoff time.Duration
}

// Snapshot is the last observed rate-limit state for one transport mode.
type Snapshot struct {
	QuotaMax       int
	QuotaRemaining int

	// QuotaKnown is false until the first response for this mode is observed.
	QuotaKnown bool

	// ResetAt is the time the quota window resets. Zero when unknown.
	ResetAt time.Time

	// ThrottledUntil is non-zero while the upstream explicitly told us
	// to back off in this mode (throttle error or backoff field).
	ThrottledUntil time.Time

	// ObservedAt is the time of the response that produced this snapshot.
	ObservedAt time.Time
}

// Throttled reports whether calls in this mode should be avoided at the given time.
func (s Snapshot) Throttled(now time.Time) bool {
	return !s.ThrottledUntil.IsZero() && now.Before(s.ThrottledUntil)
}

// Tracker holds the most recent Snapshot per transport mode.
// It is written only by the dispatcher right after each upstream response
// and read by Selector; all mutations are serialized by an internal lock.
type Tracker struct {
	mu        sync.RWMutex
	snapshots map[Mode]Snapshot
}

// NewTracker creates a new Tracker with no observed state.
func NewTracker() *Tracker {
	return &Tracker{snapshots: make(map[Mode]Snapshot)}
}

// Observe updates the snapshot for the given mode from response metadata.
func (t *Tracker) Observe(mode Mode, info QuotaInfo) {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	snap := t.snapshots[mode]
	snap.ObservedAt = now
	if info.HasQuota {
		snap.QuotaMax = info.QuotaMax
		snap.QuotaRemaining = info.QuotaRemaining
		snap.QuotaKnown = true
	}
	if !info.ResetAt.IsZero() {
		snap.ResetAt = info.ResetAt
	}
	if info.Backoff > 0 {
		snap.ThrottledUntil = now.Add(info.Backoff)
	}
	t.snapshots[mode] = snap
}

// MarkThrottled records that the upstream rejected a call in the given mode
// with a rate-limit error and that the mode should be avoided until the given time.
func (t *Tracker) MarkThrottled(mode Mode, until time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := t.snapshots[mode]
	if until.After(snap.ThrottledUntil) {
		snap.ThrottledUntil = until
	}
	t.snapshots[mode] = snap
}

// Snapshot returns the last observed state for the given mode.
// The zero Snapshot is returned before the first response in that mode.
func (t *Tracker) Snapshot(mode Mode) Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshots[mode]
}
