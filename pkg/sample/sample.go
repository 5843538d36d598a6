package sample

import (
	"github.com/chewxy/math32"
)

// Sample is one photodetector reading taken at a single acquisition tick.
type Sample struct {
	Red float32 // Red LED channel, raw sensor units
	IR  float32 // Infrared LED channel, raw sensor units
}

// Valid reports whether the sample may enter a window.
// Both channels must be finite and strictly positive.
func (s Sample) Valid() bool {
	return validChannel(s.Red) && validChannel(s.IR)
}

func validChannel(v float32) bool {
	if math32.IsNaN(v) || math32.IsInf(v, 0) {
		return false
	}
	return v > 0
}

// Channel selects one of the two sample channels.
type Channel int

const (
	ChannelRed Channel = iota
	ChannelIR
)

// String returns the channel name.
func (c Channel) String() string {
	switch c {
	case ChannelRed:
		return "red"
	case ChannelIR:
		return "ir"
	default:
		return "unknown"
	}
}

// Value returns the selected channel of s.
func (s Sample) Value(c Channel) float32 {
	if c == ChannelRed {
		return s.Red
	}
	return s.IR
}

// Extract copies one channel of samples into dst and returns it.
// dst is reused when it has enough capacity.
func Extract(dst []float32, samples []Sample, c Channel) []float32 {
	if cap(dst) >= len(samples) {
		dst = dst[:len(samples)]
	} else {
		dst = make([]float32, len(samples))
	}
	for i, s := range samples {
		dst[i] = s.Value(c)
	}
	return dst
}
