/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package accessmode

import "time"

// DefaultLowWaterMark is the default remaining-quota threshold below which
// Selector proactively falls back to anonymous calls before the quota hits zero.
const DefaultLowWaterMark = 50

// Selector decides which transport mode a single outgoing call should use.
// The decision is a pure function of the configured mode, credential presence
// and the tracker's current snapshot, so it is independently testable.
type Selector struct {
	tracker        *Tracker
	hasCredentials bool
	lowWaterMark   int
}

// SelectorOpts represents options for NewSelectorWithOpts.
type SelectorOpts struct {
	// LowWaterMark overrides DefaultLowWaterMark.
	LowWaterMark int
}

// NewSelector creates a new Selector with default options.
func NewSelector(tracker *Tracker, hasCredentials bool) *Selector {
	return NewSelectorWithOpts(tracker, hasCredentials, SelectorOpts{})
}

// NewSelectorWithOpts creates a new Selector with the specified options.
func NewSelectorWithOpts(tracker *Tracker, hasCredentials bool, opts SelectorOpts) *Selector {
	if opts.LowWaterMark <= 0 {
		opts.LowWaterMark = DefaultLowWaterMark
	}
	return &Selector{
		tracker:        tracker,
		hasCredentials: hasCredentials,
		lowWaterMark:   opts.LowWaterMark,
	}
}

// Choose resolves the configured mode into the concrete mode for the next call.
// Explicit modes are honored, except that ModeAuthenticated degrades to
// ModeUnauthenticated when no credentials are configured. ModeAuto prefers the
// authenticated path while its quota is unknown or above the low-water mark and
// falls back to the anonymous path otherwise, retrying the authenticated path
// once the quota window has reset.
func (s *Selector) Choose(configured Mode) Mode {
	switch configured {
	case ModeUnauthenticated:
		return ModeUnauthenticated
	case ModeAuthenticated:
		if !s.hasCredentials {
			return ModeUnauthenticated
		}
		return ModeAuthenticated
	}

	if !s.hasCredentials {
		return ModeUnauthenticated
	}

	now := time.Now()
	snap := s.tracker.Snapshot(ModeAuthenticated)
	if snap.Throttled(now) {
		return ModeUnauthenticated
	}
	if snap.QuotaKnown && snap.QuotaRemaining <= s.lowWaterMark {
		// The snapshot predates the window reset, so the quota is stale
		// and the authenticated path is worth retrying.
		if !snap.ResetAt.IsZero() && now.After(snap.ResetAt) {
			return ModeAuthenticated
		}
		return ModeUnauthenticated
	}
	return ModeAuthenticated
}
