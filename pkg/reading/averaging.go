package reading

import (
	"log"
	"time"

	"github.com/itohio/gobl0910/pkg/bl0910"
)

// NewAveragingConverter creates a converter that replaces each value with the
// mean of the last windowSize values of the same measurement. Energy
// counters are cumulative and pass through unchanged.
func NewAveragingConverter(windowSize int, bufSize int) Converter {
	if windowSize <= 0 {
		windowSize = 1 // No averaging if invalid
	}
	if bufSize <= 0 {
		bufSize = 100
	}

	return func(in <-chan Reading) <-chan Reading {
		out := make(chan Reading, bufSize)

		go func() {
			defer close(out)

			windows := make(map[bl0910.Measurement][]float64)
			for r := range in {
				if !isCounter(r.Measurement.Quantity) {
					w := append(windows[r.Measurement], r.Value)
					if len(w) > windowSize {
						w = w[1:] // Remove oldest
					}
					windows[r.Measurement] = w
					r.Value = mean(w)
				}

				select {
				case out <- r:
				case <-time.After(time.Second):
					log.Printf("Averaging converter output channel full, dropping %s", r.Measurement)
				}
			}
		}()

		return out
	}
}

func isCounter(q bl0910.Quantity) bool {
	return q == bl0910.Energy || q == bl0910.TotalEnergy
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
