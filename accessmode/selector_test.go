/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package accessmode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSelectorExplicitModes(t *testing.T) {
	tracker := NewTracker()

	sel := NewSelector(tracker, true)
	require.Equal(t, ModeUnauthenticated, sel.Choose(ModeUnauthenticated))
	require.Equal(t, ModeAuthenticated, sel.Choose(ModeAuthenticated))

	// Pinning the authenticated mode without credentials degrades to anonymous.
	sel = NewSelector(tracker, false)
	require.Equal(t, ModeUnauthenticated, sel.Choose(ModeAuthenticated))
	require.Equal(t, ModeUnauthenticated, sel.Choose(ModeAuto))
}

func TestSelectorAutoPrefersAuthenticated(t *testing.T) {
	tracker := NewTracker()
	sel := NewSelector(tracker, true)

	// Quota unknown yet: go authenticated to learn it.
	require.Equal(t, ModeAuthenticated, sel.Choose(ModeAuto))

	tracker.Observe(ModeAuthenticated, QuotaInfo{QuotaMax: 10000, QuotaRemaining: 9000, HasQuota: true})
	require.Equal(t, ModeAuthenticated, sel.Choose(ModeAuto))
}

func TestSelectorAutoLowQuotaFallsBack(t *testing.T) {
	tracker := NewTracker()
	sel := NewSelectorWithOpts(tracker, true, SelectorOpts{LowWaterMark: 100})

	tracker.Observe(ModeAuthenticated, QuotaInfo{QuotaMax: 10000, QuotaRemaining: 100, HasQuota: true})
	require.Equal(t, ModeUnauthenticated, sel.Choose(ModeAuto))

	tracker.Observe(ModeAuthenticated, QuotaInfo{QuotaMax: 10000, QuotaRemaining: 101, HasQuota: true})
	require.Equal(t, ModeAuthenticated, sel.Choose(ModeAuto))
}

func TestSelectorAutoRetriesAfterQuotaReset(t *testing.T) {
	tracker := NewTracker()
	sel := NewSelectorWithOpts(tracker, true, SelectorOpts{LowWaterMark: 100})

	tracker.Observe(ModeAuthenticated, QuotaInfo{
		QuotaMax:       10000,
		QuotaRemaining: 0,
		HasQuota:       true,
		ResetAt:        time.Now().Add(-time.Minute),
	})
	require.Equal(t, ModeAuthenticated, sel.Choose(ModeAuto))

	tracker.Observe(ModeAuthenticated, QuotaInfo{
		QuotaMax:       10000,
		QuotaRemaining: 0,
		HasQuota:       true,
		ResetAt:        time.Now().Add(time.Hour),
	})
	require.Equal(t, ModeUnauthenticated, sel.Choose(ModeAuto))
}

func TestSelectorAutoThrottledFallsBack(t *testing.T) {
	tracker := NewTracker()
	sel := NewSelector(tracker, true)

	tracker.Observe(ModeAuthenticated, QuotaInfo{QuotaMax: 10000, QuotaRemaining: 9000, HasQuota: true})
	tracker.MarkThrottled(ModeAuthenticated, time.Now().Add(time.Minute))
	require.Equal(t, ModeUnauthenticated, sel.Choose(ModeAuto))
}

func TestSelectorAutoThrottleExpires(t *testing.T) {
	tracker := NewTracker()
	sel := NewSelector(tracker, true)

	tracker.MarkThrottled(ModeAuthenticated, time.Now().Add(time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	require.Equal(t, ModeAuthenticated, sel.Choose(ModeAuto))
}
