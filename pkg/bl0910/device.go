package bl0910

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync/atomic"

	"github.com/itohio/gobl0910/pkg/config"
	"github.com/itohio/gobl0910/pkg/transport"
)

// ErrChecksum is returned when a received frame fails verification.
var ErrChecksum = errors.New("checksum mismatch")

// Sink receives the decoded values of one measurement.
type Sink interface {
	Publish(value float64)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(value float64)

// Publish calls f(value).
func (f SinkFunc) Publish(value float64) { f(value) }

// Device drives a BL0910 over a byte transport.
//
// Tick, Reset, Bind and the register access methods must be called from a
// single goroutine, which owns the transport. Halt, State and the methods
// that enqueue deferred actions are safe to call from any goroutine.
type Device struct {
	t       transport.Transport
	catalog Catalog
	ki      float64

	sinks map[Measurement]Sink
	last  map[Measurement]float64

	state   atomic.Uint32
	actions actionQueue
}

// New creates a Device on t using the given reference scales. The scanner
// starts idle; call Reset to begin the first pass.
func New(t transport.Transport, ref config.Reference) *Device {
	d := &Device{
		t:       t,
		catalog: NewCatalog(ref),
		ki:      ref.CurrentTransform,
		sinks:   make(map[Measurement]Sink),
		last:    make(map[Measurement]float64),
	}
	d.state.Store(uint32(StateIdle))
	return d
}

// Bind attaches s to measurement m. A nil sink unbinds m, so the scanner
// skips it without touching the transport.
func (d *Device) Bind(m Measurement, s Sink) {
	if s == nil {
		delete(d.sinks, m)
		delete(d.last, m)
		return
	}
	d.sinks[m] = s
}

// Bound reports whether m has a sink.
func (d *Device) Bound(m Measurement) bool {
	_, ok := d.sinks[m]
	return ok
}

// Last returns the most recently published value of m.
func (d *Device) Last(m Measurement) (float64, bool) {
	v, ok := d.last[m]
	return v, ok
}

// DumpConfig logs the transport kind and the bound measurements.
func (d *Device) DumpConfig(mode string) {
	log.Printf("BL0910:")
	log.Printf("  Communication Mode: %s", mode)

	bound := make([]Measurement, 0, len(d.sinks))
	for m := range d.sinks {
		bound = append(bound, m)
	}
	sort.Slice(bound, func(i, j int) bool {
		if bound[i].Channel != bound[j].Channel {
			return bound[i].Channel < bound[j].Channel
		}
		return bound[i].Quantity < bound[j].Quantity
	})
	for _, m := range bound {
		if reg, ok := d.catalog[m]; ok {
			log.Printf("  %s: register 0x%02X, %s rule", m, reg.Address, reg.Rule.Kind)
		} else {
			log.Printf("  %s: derived", m)
		}
	}
}

// Read performs one register exchange for m and returns the decoded value
// without publishing it.
func (d *Device) Read(m Measurement) (float64, error) {
	reg, ok := d.catalog[m]
	if !ok {
		return 0, fmt.Errorf("%s has no register", m)
	}
	return d.readRegister(reg)
}

// readRegister flushes stale input, requests reg and decodes the response.
func (d *Device) readRegister(reg Register) (float64, error) {
	if err := d.t.Flush(); err != nil {
		return 0, fmt.Errorf("flush before reading 0x%02X: %w", reg.Address, err)
	}
	if err := d.t.Write([]byte{ReadCommand, reg.Address}); err != nil {
		return 0, fmt.Errorf("request register 0x%02X: %w", reg.Address, err)
	}

	var buf [PacketSize]byte
	if err := d.t.ReadFull(buf[:]); err != nil {
		return 0, fmt.Errorf("read register 0x%02X: %w", reg.Address, err)
	}

	p := ParsePacket(buf)
	if !p.Verify(reg.Address) {
		return 0, fmt.Errorf("register 0x%02X: %w", reg.Address, ErrChecksum)
	}
	return reg.Rule.Decode(p.L, p.M, p.H), nil
}

// readData reads and publishes m if it has a sink. Failures are logged and
// dropped; the next pass retries naturally.
func (d *Device) readData(m Measurement) {
	sink, ok := d.sinks[m]
	if !ok {
		return
	}
	reg, ok := d.catalog[m]
	if !ok {
		return
	}

	value, err := d.readRegister(reg)
	if err != nil {
		if errors.Is(err, ErrChecksum) {
			log.Printf("Checksum failed for %s. Discarding message.", m)
		} else {
			log.Printf("Failed to read %s: %v", m, err)
		}
		return
	}
	d.publish(m, sink, value)
}

// calculatePowerFactor derives the power factor of channel n from the values
// already published for its current and power and the line voltage.
func (d *Device) calculatePowerFactor(n int) {
	pf := PerChannel(PowerFactor, n)
	sink, ok := d.sinks[pf]
	if !ok {
		return
	}

	current, ok := d.last[PerChannel(Current, n)]
	if !ok {
		return
	}
	voltage, ok := d.last[Shared(Voltage)]
	if !ok {
		return
	}
	power, ok := d.last[PerChannel(Power, n)]
	if !ok || power == 0 {
		return
	}

	d.publish(pf, sink, current*voltage/power)
}

func (d *Device) publish(m Measurement, s Sink, value float64) {
	d.last[m] = value
	s.Publish(value)
}

// writeRegister sends a write frame for address. Writes are not acknowledged.
func (d *Device) writeRegister(address byte, value int32) error {
	p := EncodePacket(address, value)
	if err := d.t.Flush(); err != nil {
		return fmt.Errorf("flush before writing 0x%02X: %w", address, err)
	}
	if err := d.t.Write([]byte{WriteCommand, address}); err != nil {
		return fmt.Errorf("write command for 0x%02X: %w", address, err)
	}
	if err := d.t.Write(p.Bytes()); err != nil {
		return fmt.Errorf("write payload for 0x%02X: %w", address, err)
	}
	return nil
}

// WriteRegister writes the low 24 bits of value to the register at address.
func (d *Device) WriteRegister(address byte, value int32) error {
	return d.writeRegister(address, value)
}
