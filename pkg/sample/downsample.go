package sample

// Downsample decimates src to at most maxPoints values for display.
// Destination-based: dst is reused when it has enough capacity, otherwise a
// new slice is allocated. If len(src) <= maxPoints, all values are copied.
func Downsample[T any](dst []T, src []T, maxPoints int) []T {
	if maxPoints <= 0 || len(src) <= maxPoints {
		if cap(dst) >= len(src) {
			dst = dst[:len(src)]
		} else {
			dst = make([]T, len(src))
		}
		copy(dst, src)
		return dst
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]T, 0, maxPoints)
	}

	step := float64(len(src)) / float64(maxPoints)
	for i := range maxPoints {
		idx := int(float64(i) * step)
		if idx < len(src) {
			dst = append(dst, src[idx])
		}
	}

	return dst
}
