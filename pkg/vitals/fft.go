package vitals

import (
	"github.com/chewxy/math32"
)

// MaxTransformSize is the largest transform length supported. Transform
// storage is fixed at this size.
const MaxTransformSize = 64

// transformLength returns the largest power of two not above min(n, MaxTransformSize).
func transformLength(n int) int {
	if n > MaxTransformSize {
		n = MaxTransformSize
	}
	l := 1
	for l*2 <= n {
		l *= 2
	}
	return l
}

// magnitudes computes the magnitude spectrum of data with an in-place
// radix-2 Cooley-Tukey transform. len(data) must be a power of two not above
// MaxTransformSize; mag must be at least as long as data.
func magnitudes(data []float32, mag []float32) {
	n := len(data)
	var re, im [MaxTransformSize]float32
	copy(re[:n], data)

	// Bit-reversal permutation
	j := 0
	for i := 0; i < n-1; i++ {
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
		k := n >> 1
		for k <= j {
			j -= k
			k >>= 1
		}
		j += k
	}

	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		step := -2 * math32.Pi / float32(size)
		for start := 0; start < n; start += size {
			for k := 0; k < half; k++ {
				sin, cos := math32.Sincos(float32(k) * step)
				a := start + k
				b := a + half

				tr := re[b]*cos - im[b]*sin
				ti := re[b]*sin + im[b]*cos

				re[b] = re[a] - tr
				im[b] = im[a] - ti
				re[a] += tr
				im[a] += ti
			}
		}
	}

	for i := 0; i < n; i++ {
		mag[i] = math32.Hypot(re[i], im[i])
	}
}
