package bl0910

import (
	"bytes"
	"log"
	"testing"

	"github.com/itohio/gobl0910/pkg/config"
	"github.com/itohio/gobl0910/pkg/transport"
)

// fakeTransport answers read requests from a register file and records
// every write.
type fakeTransport struct {
	regs    map[byte]uint32
	corrupt map[byte]bool
	silent  map[byte]bool

	// alwaysAvailable mimics SPI: input is never exhausted.
	alwaysAvailable bool

	rx      []byte
	frames  [][]byte
	flushes int
	drained int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		regs:    make(map[byte]uint32),
		corrupt: make(map[byte]bool),
		silent:  make(map[byte]bool),
	}
}

func (f *fakeTransport) Write(p []byte) error {
	f.frames = append(f.frames, append([]byte(nil), p...))
	if len(p) == 2 && p[0] == ReadCommand {
		addr := p[1]
		if f.silent[addr] {
			return nil
		}
		pk := EncodePacket(addr, int32(f.regs[addr]))
		if f.corrupt[addr] {
			pk.Checksum ^= 0x01
		}
		f.rx = append(f.rx, pk.Bytes()...)
	}
	return nil
}

func (f *fakeTransport) ReadByte() (byte, error) {
	f.drained++
	if f.alwaysAvailable {
		return 0, nil
	}
	if len(f.rx) == 0 {
		return 0, transport.ErrShortRead
	}
	b := f.rx[0]
	f.rx = f.rx[1:]
	return b, nil
}

func (f *fakeTransport) ReadFull(p []byte) error {
	if len(f.rx) < len(p) {
		f.rx = nil
		return transport.ErrShortRead
	}
	copy(p, f.rx)
	f.rx = f.rx[len(p):]
	return nil
}

func (f *fakeTransport) Flush() error {
	f.rx = nil
	f.flushes++
	return nil
}

func (f *fakeTransport) Available() bool {
	return f.alwaysAvailable || len(f.rx) > 0
}

// readAddresses returns the register addresses requested so far, in order.
func (f *fakeTransport) readAddresses() []byte {
	var addrs []byte
	for _, fr := range f.frames {
		if len(fr) == 2 && fr[0] == ReadCommand {
			addrs = append(addrs, fr[1])
		}
	}
	return addrs
}

func (f *fakeTransport) reset() {
	f.frames = nil
	f.flushes = 0
}

var _ transport.Transport = (*fakeTransport)(nil)

// recorder is a Sink collecting published values.
type recorder struct {
	values []float64
}

func (r *recorder) Publish(v float64) {
	r.values = append(r.values, v)
}

func testReference() config.Reference {
	return config.Reference{
		Voltage:          0.01,
		Current:          0.002,
		Power:            0.5,
		Energy:           0.001,
		Frequency:        10000000,
		TotalPower:       0.5,
		TotalEnergy:      0.001,
		CurrentTransform: 1,
	}
}

func newTestDevice() (*Device, *fakeTransport) {
	f := newFakeTransport()
	return New(f, testReference()), f
}

// captureLog redirects the standard logger for the duration of the test.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(prev) })
	return &buf
}
