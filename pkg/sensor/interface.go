package sensor

import (
	"errors"

	"github.com/itohio/goppg/pkg/sample"
	"github.com/itohio/goppg/pkg/state"
)

var (
	// ErrNotConnected is returned by operations that need an open device.
	ErrNotConnected = errors.New("not connected")
	// ErrAlreadyConnected is returned by Connect on an open device.
	ErrAlreadyConnected = errors.New("already connected")
)

// Source yields the most recent reading. Read never blocks; ok is false when
// no new reading is available this tick.
type Source interface {
	Read() (s sample.Sample, ok bool)
}

// Device is a sensor source with a connection lifecycle and an indicator.
type Device interface {
	Source
	Connect() error
	Close() error
	IsConnected() bool
	SetIntent(i state.Intent) error
}

var (
	_ Device = (*Serial)(nil)
	_ Device = (*Mock)(nil)
)
