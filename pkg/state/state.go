package state

import (
	"fmt"
	"strings"
)

// Mode is the device operating mode.
type Mode int32

const (
	Init Mode = iota
	Idle
	Collecting
	Processing
	Error
)

// Modes lists every mode in numeric order.
var Modes = []Mode{Init, Idle, Collecting, Processing, Error}

// String returns the upper-case mode name used on the wire.
func (m Mode) String() string {
	switch m {
	case Init:
		return "INIT"
	case Idle:
		return "IDLE"
	case Collecting:
		return "COLLECTING"
	case Processing:
		return "PROCESSING"
	case Error:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(m))
	}
}

// ParseMode parses a mode name, case-insensitive.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if strings.EqualFold(strings.TrimSpace(s), m.String()) {
			return m, nil
		}
	}
	return Init, fmt.Errorf("unknown mode %q", s)
}

// IsCollecting reports whether acquisition runs in mode m.
func (m Mode) IsCollecting() bool {
	return m == Collecting || m == Processing
}

// Intent is the status indication derived from the mode (LED pattern and
// status push flavor).
type Intent int

const (
	IntentFault Intent = iota
	IntentIdle
	IntentCollecting
	IntentProcessing
	// IntentDisconnected is shown while the command link is down.
	// No mode maps to it.
	IntentDisconnected
	// IntentTest runs the LED self test once.
	IntentTest
)

// String returns the intent name.
func (i Intent) String() string {
	switch i {
	case IntentFault:
		return "fault"
	case IntentIdle:
		return "idle"
	case IntentCollecting:
		return "collecting"
	case IntentProcessing:
		return "processing"
	case IntentDisconnected:
		return "disconnected"
	case IntentTest:
		return "test"
	default:
		return "unknown"
	}
}

// IntentFor is the total mode to intent mapping. Init and Error share the
// fault intent.
func IntentFor(m Mode) Intent {
	switch m {
	case Idle:
		return IntentIdle
	case Collecting:
		return IntentCollecting
	case Processing:
		return IntentProcessing
	default:
		return IntentFault
	}
}
