package activity

import (
	"github.com/itohio/goppg/pkg/sample"
)

// Variance thresholds and confidences of the motion heuristic.
const (
	DefaultHighVariance = 100000
	DefaultLowVariance  = 10000

	HighMotionConfidence = 0.7
	LowMotionConfidence  = 0.6
	RestingConfidence    = 0.5
)

// Heuristic classifies a window by the sum of its per-channel variances.
// It always yields a valid class.
func Heuristic(samples []sample.Sample, high, low float32) (class int, confidence, variance float32) {
	variance = float32(channelVariance(samples, sample.ChannelIR) + channelVariance(samples, sample.ChannelRed))

	switch {
	case variance > high:
		return Walking, HighMotionConfidence, variance
	case variance > low:
		return Sitting, LowMotionConfidence, variance
	default:
		return Resting, RestingConfidence, variance
	}
}

// channelVariance is the population variance of one channel. Accumulates in
// float64: channel values sit around 1e5.
func channelVariance(samples []sample.Sample, c sample.Channel) float64 {
	if len(samples) == 0 {
		return 0
	}
	var mean float64
	for _, s := range samples {
		mean += float64(s.Value(c))
	}
	mean /= float64(len(samples))

	var acc float64
	for _, s := range samples {
		d := float64(s.Value(c)) - mean
		acc += d * d
	}
	return acc / float64(len(samples))
}
