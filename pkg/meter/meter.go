package meter

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/itohio/gobl0910/pkg/bl0910"
	"github.com/itohio/gobl0910/pkg/config"
	"github.com/itohio/gobl0910/pkg/reading"
)

var _ EnergyMeter = (*Meter)(nil)

// Stats summarizes the readings of one measurement within the window.
type Stats struct {
	Count int
	Min   float64
	Max   float64
	Mean  float64
	Last  reading.Reading
}

// EnergyMeter keeps a time-windowed history of readings per measurement.
type EnergyMeter interface {
	ProcessReadings(input <-chan reading.Reading)
	Measurements() []bl0910.Measurement                            // Measurements seen so far, sorted by channel then quantity
	Latest(m bl0910.Measurement) (reading.Reading, bool)           // Most recent reading of m
	History(m bl0910.Measurement, maxPoints int) []reading.Reading // Readings of m within the window, oldest first
	Rate(m bl0910.Measurement) (float64, bool)                     // Change of m per hour between its two latest readings
	Stats(m bl0910.Measurement) (Stats, bool)                      // Summary of m within the window
	OnUpdate(func(r reading.Reading))                              // Register callback for new readings
}

// Meter implements EnergyMeter.
//
// History is a FIFO per measurement, oldest first. Removal is based on
// timestamp (time window), not number of readings; the latest reading of a
// measurement is always kept.
type Meter struct {
	mu      sync.RWMutex
	history map[bl0910.Measurement][]reading.Reading

	callbacks []func(r reading.Reading)
	cbMu      sync.RWMutex

	windowDuration time.Duration

	// Set when the input channel closes, prevents further callbacks
	shutdown bool
}

// New creates a meter using the measurement window of cfg.
func New(cfg *config.Config) *Meter {
	return &Meter{
		history:        make(map[bl0910.Measurement][]reading.Reading),
		windowDuration: time.Duration(cfg.Measurement.WindowSeconds * float64(time.Second)),
	}
}

// ProcessReadings consumes input until it is closed, then stops notifying
// callbacks.
func (m *Meter) ProcessReadings(input <-chan reading.Reading) {
	for r := range input {
		m.processReading(r)
	}
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()
}

// ResetShutdown allows callbacks again before starting a new input chain.
func (m *Meter) ResetShutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown = false
}

func (m *Meter) processReading(r reading.Reading) {
	m.mu.Lock()
	h := append(m.history[r.Measurement], r)

	cutoff := r.Timestamp.Add(-m.windowDuration)
	first := len(h) - 1
	for i, old := range h {
		if old.Timestamp.After(cutoff) {
			first = min(i, first)
			break
		}
	}
	if first > 0 {
		h = append(h[:0:0], h[first:]...)
	}
	m.history[r.Measurement] = h

	notify := !m.shutdown
	m.mu.Unlock()

	if notify {
		m.notifyCallbacks(r)
	}
}

// Measurements returns the measurements with at least one reading.
func (m *Meter) Measurements() []bl0910.Measurement {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ms := make([]bl0910.Measurement, 0, len(m.history))
	for k := range m.history {
		ms = append(ms, k)
	}
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].Channel != ms[j].Channel {
			return ms[i].Channel < ms[j].Channel
		}
		return ms[i].Quantity < ms[j].Quantity
	})
	return ms
}

// Latest returns the most recent reading of meas.
func (m *Meter) Latest(meas bl0910.Measurement) (reading.Reading, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h := m.history[meas]
	if len(h) == 0 {
		return reading.Reading{}, false
	}
	return h[len(h)-1], true
}

// History returns a copy of the readings of meas, decimated to maxPoints
// when positive.
func (m *Meter) History(meas bl0910.Measurement, maxPoints int) []reading.Reading {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return reading.Downsample(nil, m.history[meas], maxPoints)
}

// Rate returns the change of meas per hour between its two latest readings.
// For an energy counter in kWh this is the mean power in kW.
func (m *Meter) Rate(meas bl0910.Measurement) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h := m.history[meas]
	if len(h) < 2 {
		return 0, false
	}
	prev, curr := h[len(h)-2], h[len(h)-1]
	dt := curr.Timestamp.Sub(prev.Timestamp).Hours()
	if dt <= 0 {
		return 0, false
	}
	return (curr.Value - prev.Value) / dt, true
}

// Stats summarizes the readings of meas within the window.
func (m *Meter) Stats(meas bl0910.Measurement) (Stats, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h := m.history[meas]
	if len(h) == 0 {
		return Stats{}, false
	}

	s := Stats{
		Count: len(h),
		Min:   math.Inf(1),
		Max:   math.Inf(-1),
		Last:  h[len(h)-1],
	}
	var sum float64
	for _, r := range h {
		s.Min = math.Min(s.Min, r.Value)
		s.Max = math.Max(s.Max, r.Value)
		sum += r.Value
	}
	s.Mean = sum / float64(len(h))
	return s, true
}

// OnUpdate registers a callback invoked with every new reading. The callback
// runs on the processing goroutine and should return quickly.
func (m *Meter) OnUpdate(callback func(r reading.Reading)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// notifyCallbacks invokes the callbacks without holding any locks.
func (m *Meter) notifyCallbacks(r reading.Reading) {
	m.cbMu.RLock()
	callbacks := make([]func(r reading.Reading), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(r)
		}
	}
}
