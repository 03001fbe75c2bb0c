package transport

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

// DefaultSPIFrequency is the SPI clock used when none is configured.
const DefaultSPIFrequency = physic.MegaHertz

// SPI is a framed link to the meter. Every transfer is a full-duplex
// transaction, so there is never buffered input to flush.
type SPI struct {
	conn spi.Conn
	port spi.PortCloser
}

// OpenSPI opens the SPI port registered under path (empty selects the first one).
func OpenSPI(path string, freq physic.Frequency) (*SPI, error) {
	port, err := spireg.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %q: %w", path, err)
	}
	s, err := NewSPI(port, freq)
	if err != nil {
		port.Close()
		return nil, err
	}
	s.port = port
	return s, nil
}

// NewSPI connects to an already opened port. The BL0910 samples on the
// leading edge with idle-low clock, MSB first.
func NewSPI(p spi.Port, freq physic.Frequency) (*SPI, error) {
	if freq == 0 {
		freq = DefaultSPIFrequency
	}
	c, err := p.Connect(freq, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}
	return &SPI{conn: c}, nil
}

// Write clocks out p, ignoring whatever is shifted in.
func (s *SPI) Write(p []byte) error {
	if err := s.conn.Tx(p, nil); err != nil {
		return fmt.Errorf("spi write: %w", err)
	}
	return nil
}

// ReadByte clocks out a dummy zero byte and returns the byte shifted in.
func (s *SPI) ReadByte() (byte, error) {
	var r [1]byte
	if err := s.ReadFull(r[:]); err != nil {
		return 0, err
	}
	return r[0], nil
}

// ReadFull clocks out len(p) dummy zero bytes and stores the response in p.
func (s *SPI) ReadFull(p []byte) error {
	w := make([]byte, len(p))
	if err := s.conn.Tx(w, p); err != nil {
		return fmt.Errorf("spi read: %w", err)
	}
	return nil
}

// Flush is a no-op.
func (s *SPI) Flush() error {
	return nil
}

// Available is always true: a transaction can be clocked at any time.
func (s *SPI) Available() bool {
	return true
}

// Close releases the port when it was opened by OpenSPI.
func (s *SPI) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}
