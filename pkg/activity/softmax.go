package activity

import (
	"github.com/chewxy/math32"
)

// Softmax writes the probabilities of scores into dst and returns it.
// The maximum score is subtracted before exponentiating. Non-finite scores
// are treated as 0. ok is false when no score was finite.
func Softmax(dst, scores []float32) (probs []float32, ok bool) {
	if cap(dst) >= len(scores) {
		dst = dst[:len(scores)]
	} else {
		dst = make([]float32, len(scores))
	}

	finite := 0
	for i, s := range scores {
		if math32.IsNaN(s) || math32.IsInf(s, 0) {
			dst[i] = 0
			continue
		}
		dst[i] = s
		finite++
	}
	if finite == 0 {
		return dst, false
	}

	peak := dst[0]
	for _, v := range dst[1:] {
		peak = math32.Max(peak, v)
	}

	var sum float32
	for i, v := range dst {
		dst[i] = math32.Exp(v - peak)
		sum += dst[i]
	}
	for i := range dst {
		dst[i] /= sum
	}
	return dst, true
}

// Argmax returns the index of the largest value, the first on ties.
func Argmax(values []float32) int {
	best := -1
	for i, v := range values {
		if best < 0 || v > values[best] {
			best = i
		}
	}
	return best
}
