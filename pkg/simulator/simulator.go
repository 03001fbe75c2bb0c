package simulator

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/itohio/gobl0910/pkg/bl0910"
	"github.com/itohio/gobl0910/pkg/config"
	"github.com/itohio/gobl0910/pkg/transport"
)

// Ensure Simulator implements transport.Transport.
var _ transport.Transport = (*Simulator)(nil)

// RegisterWrite is a write frame accepted by the simulator.
type RegisterWrite struct {
	Address byte
	Value   int32
}

// Simulator emulates a BL0910 behind a byte transport for testing and
// development. Register contents are derived from the configured load and
// energy accumulates with wall-clock time.
type Simulator struct {
	cfg *config.MockConfig
	ref config.Reference

	mu        sync.Mutex
	now       func() time.Time
	startTime time.Time
	lastTick  time.Time
	rx        []byte
	frame     []byte
	overrides map[byte]uint32
	writes    []RegisterWrite
	unlocked  bool

	// Simulation state
	energy [config.NumChannels]float64 // kWh per channel

	// Fault injection
	corruptNext int
	dropNext    int
}

// New creates a simulated device. A nil cfg uses the default mock settings.
func New(cfg *config.MockConfig, ref config.Reference) *Simulator {
	if cfg == nil {
		def := config.Default().Mock
		cfg = &def
	}
	s := &Simulator{
		cfg:       cfg,
		ref:       ref,
		now:       time.Now,
		overrides: make(map[byte]uint32),
	}
	s.startTime = s.now()
	s.lastTick = s.startTime
	return s
}

// SetRegister pins a register to a raw 24-bit value, overriding the simulation.
func (s *Simulator) SetRegister(address byte, raw uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[address] = raw & 0xFFFFFF
}

// CorruptNext breaks the checksum of the next n responses.
func (s *Simulator) CorruptNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corruptNext = n
}

// DropNext leaves the next n read requests unanswered.
func (s *Simulator) DropNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropNext = n
}

// Writes returns the register writes received so far.
func (s *Simulator) Writes() []RegisterWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RegisterWrite(nil), s.writes...)
}

// Energy returns the simulated energy of channel n (1-based) in kWh.
func (s *Simulator) Energy(n int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	return s.energy[n-1]
}

// Write feeds bytes from the host into the command parser.
func (s *Simulator) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frame = append(s.frame, p...)
	for len(s.frame) > 0 {
		switch s.frame[0] {
		case bl0910.ReadCommand:
			if len(s.frame) < 2 {
				return nil
			}
			s.respond(s.frame[1])
			s.frame = s.frame[2:]
		case bl0910.WriteCommand:
			if len(s.frame) < 2+bl0910.PacketSize {
				return nil
			}
			s.accept(s.frame[1], s.frame[2:2+bl0910.PacketSize])
			s.frame = s.frame[2+bl0910.PacketSize:]
		default:
			// Not a command: resynchronize on the next byte.
			s.frame = s.frame[1:]
		}
	}
	return nil
}

// ReadByte returns the next response byte.
func (s *Simulator) ReadByte() (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.rx) == 0 {
		return 0, transport.ErrShortRead
	}
	b := s.rx[0]
	s.rx = s.rx[1:]
	return b, nil
}

// ReadFull fills p from pending response bytes.
func (s *Simulator) ReadFull(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.rx) < len(p) {
		n := len(s.rx)
		s.rx = nil
		return fmt.Errorf("simulator: got %d of %d bytes: %w", n, len(p), transport.ErrShortRead)
	}
	copy(p, s.rx)
	s.rx = s.rx[len(p):]
	return nil
}

// Flush drops pending response bytes and any partial command.
func (s *Simulator) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rx = nil
	s.frame = nil
	return nil
}

// Available reports whether response bytes are pending.
func (s *Simulator) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rx) > 0
}

// respond queues the response frame for a read request.
func (s *Simulator) respond(address byte) {
	if s.dropNext > 0 {
		s.dropNext--
		return
	}

	p := bl0910.EncodePacket(address, int32(s.register(address)))
	if s.corruptNext > 0 {
		s.corruptNext--
		p.Checksum ^= 0xFF
	}
	s.rx = append(s.rx, p.Bytes()...)
}

// accept applies a write frame if its checksum is valid.
func (s *Simulator) accept(address byte, payload []byte) {
	p := bl0910.Packet{L: payload[0], M: payload[1], H: payload[2], Checksum: payload[3]}
	if !p.Verify(address) {
		log.Printf("Simulator: discarding write to 0x%02X with bad checksum", address)
		return
	}
	value := bl0910.Int24(p.L, p.M, p.H)
	s.writes = append(s.writes, RegisterWrite{Address: address, Value: value})

	switch address {
	case bl0910.RegUsrWrProt:
		s.unlocked = value == 0x005555
	case bl0910.RegSoftReset:
		if !s.unlocked || value != 0x5A5A5A {
			return
		}
		s.energy = [config.NumChannels]float64{}
		s.lastTick = s.now()
		s.unlocked = false
	default:
		s.overrides[address] = uint32(value) & 0xFFFFFF
	}
}

// advance accumulates energy for the time elapsed since the last call.
func (s *Simulator) advance() {
	now := s.now()
	hours := now.Sub(s.lastTick).Hours()
	s.lastTick = now
	if hours <= 0 {
		return
	}
	for i := range s.energy {
		s.energy[i] += s.power(i+1) * hours / 1000
	}
}

// noise returns a deterministic relative disturbance.
func (s *Simulator) noise() float64 {
	elapsed := float64(s.now().Sub(s.startTime).Nanoseconds())
	return (math.Sin(elapsed*0.001) + math.Cos(elapsed*0.0013)) * s.cfg.NoiseLevel * 0.5
}

func (s *Simulator) current(n int) float64 {
	if n < 1 || n > len(s.cfg.Currents) {
		return 0
	}
	return s.cfg.Currents[n-1]
}

// power returns the real power of channel n in W.
func (s *Simulator) power(n int) float64 {
	return s.cfg.Voltage * s.current(n) * s.cfg.PowerFactor
}

// register computes the raw content of a register.
func (s *Simulator) register(address byte) uint32 {
	if v, ok := s.overrides[address]; ok {
		return v
	}
	s.advance()

	switch {
	case address >= bl0910.RegIRMS1 && address < bl0910.RegIRMS1+config.NumChannels:
		n := int(address-bl0910.RegIRMS1) + 1
		return unsigned(s.current(n)*(1+s.noise()), s.ref.Current)
	case address >= bl0910.RegWatt1 && address < bl0910.RegWatt1+config.NumChannels:
		n := int(address-bl0910.RegWatt1) + 1
		return signed(s.power(n)*(1+s.noise()), s.ref.Power)
	case address >= bl0910.RegCFCnt1 && address < bl0910.RegCFCnt1+config.NumChannels:
		n := int(address-bl0910.RegCFCnt1) + 1
		return unsigned(s.energy[n-1], s.ref.Energy)
	}

	switch address {
	case bl0910.RegVRMS:
		return unsigned(s.cfg.Voltage*(1+s.noise()), s.ref.Voltage)
	case bl0910.RegWattSum:
		var total float64
		for n := 1; n <= config.NumChannels; n++ {
			total += s.power(n)
		}
		return signed(total, s.ref.TotalPower)
	case bl0910.RegCFSumCnt:
		var total float64
		for _, e := range s.energy {
			total += e
		}
		return unsigned(total, s.ref.TotalEnergy)
	case bl0910.RegPeriod:
		if s.cfg.Frequency == 0 {
			return 0
		}
		return unsigned(s.ref.Frequency/s.cfg.Frequency, 1)
	case bl0910.RegTPS:
		return uint32(int32(math.Round((s.cfg.Temperature+40)*59/12.5+64))) & 0xFFFFFF
	}
	return 0
}

// unsigned converts a physical value into an unsigned 24-bit register.
func unsigned(value, scale float64) uint32 {
	if scale == 0 || value <= 0 {
		return 0
	}
	raw := math.Round(value / scale)
	if raw > 0xFFFFFF {
		return 0xFFFFFF
	}
	return uint32(raw)
}

// signed converts a physical value into a two's-complement 24-bit register.
func signed(value, scale float64) uint32 {
	if scale == 0 {
		return 0
	}
	raw := math.Round(value / scale)
	raw = math.Max(math.Min(raw, 0x7FFFFF), -0x800000)
	return uint32(int32(raw)) & 0xFFFFFF
}
