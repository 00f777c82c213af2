/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package accessmode decides, per outgoing Stack Exchange API call, whether the
// call should carry credentials (large but finite quota) or go out anonymously
// (small shared quota). The decision is derived from the most recently observed
// quota state, which is updated by the dispatcher after every upstream response.
package accessmode

import "fmt"

// Mode determines which transport an outgoing API call uses.
type Mode int

// Access modes.
const (
	// ModeAuto lets Selector pick the mode per call based on the quota state.
	// It is the zero value and the default for configuration.
	ModeAuto Mode = iota

	// ModeUnauthenticated sends calls without credentials.
	ModeUnauthenticated

	// ModeAuthenticated attaches the configured API key to calls.
	ModeAuthenticated
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeUnauthenticated:
		return "unauthenticated"
	case ModeAuthenticated:
		return "authenticated"
	case ModeAuto:
		return "auto"
	}
	return fmt.Sprintf("unknown(%d)", int(m))
}

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	switch m {
	case ModeUnauthenticated, ModeAuthenticated, ModeAuto:
		return true
	}
	return false
}

// ParseMode parses a mode from its string representation.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "unauthenticated":
		return ModeUnauthenticated, nil
	case "authenticated":
		return ModeAuthenticated, nil
	case "auto", "":
		return ModeAuto, nil
	}
	return ModeAuto, fmt.Errorf("unknown access mode %q", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.IsValid() {
		return nil, fmt.Errorf("unknown access mode %d", int(m))
	}
	return []byte(m.String()), nil
}
