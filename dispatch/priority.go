/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import "fmt"

// Priority orders queued requests. Priorities are strict: any queued request
// of a higher band is dispatched before any request of a lower band,
// regardless of arrival order. Within a band, requests are served FIFO.
type Priority int

// Priorities, from lowest to highest. PriorityNormal is the zero value.
const (
	PriorityLow    Priority = iota - 1
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// Priorities returns all priorities from lowest to highest.
func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent}
}

// String implements fmt.Stringer.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	}
	return fmt.Sprintf("unknown(%d)", int(p))
}

// IsValid checks if the priority is one of the supported values.
func (p Priority) IsValid() bool {
	return p >= PriorityLow && p <= PriorityUrgent
}

// ParsePriority parses a priority from its string representation.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "low":
		return PriorityLow, nil
	case "normal", "":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "urgent":
		return PriorityUrgent, nil
	}
	return PriorityNormal, fmt.Errorf("unknown priority %q", s)
}
