package bl0910

import (
	"fmt"
	"log"

	"github.com/itohio/gobl0910/pkg/config"
)

// State is the scanner position. Values 0..10 are the per-unit states, the
// top three values of the byte are the frequency/voltage, totals and idle
// sentinels.
type State uint8

const (
	StateFreqVoltage State = 0xFD
	StateTotals      State = 0xFE
	StateIdle        State = 0xFF
)

// Unit returns the state that scans channel n (0 reads the die temperature).
func Unit(n int) State {
	return State(n)
}

func (s State) String() string {
	switch s {
	case StateFreqVoltage:
		return "freq_voltage"
	case StateTotals:
		return "totals"
	case StateIdle:
		return "idle"
	}
	return fmt.Sprintf("unit_%d", uint8(s))
}

// step is one row of the transition table.
type step struct {
	reads       []Measurement
	powerFactor int // channel whose power factor is derived after the reads, 0 for none
	next        State
}

// schedule is the transition table of one scan pass:
// unit 0, units 1..10, frequency/voltage, totals, idle.
var schedule = buildSchedule()

func buildSchedule() map[State]step {
	s := map[State]step{
		Unit(0): {
			reads: []Measurement{Shared(Temperature)},
			next:  Unit(1),
		},
		StateFreqVoltage: {
			reads: []Measurement{Shared(Frequency), Shared(Voltage)},
			next:  StateTotals,
		},
		StateTotals: {
			reads: []Measurement{Shared(TotalPower), Shared(TotalEnergy)},
			next:  StateIdle,
		},
	}
	for n := 1; n <= config.NumChannels; n++ {
		next := Unit(n + 1)
		if n == config.NumChannels {
			next = StateFreqVoltage
		}
		s[Unit(n)] = step{
			reads: []Measurement{
				PerChannel(Current, n),
				PerChannel(Power, n),
				PerChannel(Energy, n),
			},
			powerFactor: n,
			next:        next,
		}
	}
	return s
}

// State returns the current scanner state.
func (d *Device) State() State {
	return State(d.state.Load())
}

// Reset restarts the scan at unit 0. Call it once per polling period.
func (d *Device) Reset() {
	d.state.Store(uint32(Unit(0)))
}

// Halt stops scanning until the next Reset.
func (d *Device) Halt() {
	d.state.Store(uint32(StateIdle))
}

// Tick performs the reads of the current state, advances to the next state
// and runs any deferred actions. An idle scanner does nothing. An unknown
// state is forced to frequency/voltage without reading.
func (d *Device) Tick() {
	cur := d.State()
	if cur == StateIdle {
		return
	}

	st, ok := schedule[cur]
	if !ok {
		log.Printf("Unknown scan state %s, resynchronizing", cur)
		d.state.CompareAndSwap(uint32(cur), uint32(StateFreqVoltage))
		return
	}

	for _, m := range st.reads {
		d.readData(m)
	}
	if st.powerFactor != 0 {
		d.calculatePowerFactor(st.powerFactor)
	}

	// A concurrent Halt or Reset wins over the advance.
	d.state.CompareAndSwap(uint32(cur), uint32(st.next))
	d.handleActions()
}
