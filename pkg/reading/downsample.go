package reading

// Downsample reduces readings to at most maxPoints by decimation. It reuses
// dst when its capacity suffices and returns the resulting slice. A
// non-positive maxPoints copies every reading.
func Downsample(dst []Reading, readings []Reading, maxPoints int) []Reading {
	if maxPoints <= 0 || len(readings) <= maxPoints {
		if cap(dst) >= len(readings) {
			dst = dst[:len(readings)]
			copy(dst, readings)
			return dst
		}
		result := make([]Reading, len(readings))
		copy(result, readings)
		return result
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]Reading, 0, maxPoints)
	}

	step := float64(len(readings)) / float64(maxPoints)
	for i := 0; i < maxPoints; i++ {
		idx := int(float64(i) * step)
		if idx < len(readings) {
			dst = append(dst, readings[idx])
		}
	}

	return dst
}
