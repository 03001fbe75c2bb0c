package transport

import (
	"fmt"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the fixed UART rate of the BL0910.
	DefaultBaudRate = 19200
	// DefaultReadTimeout bounds a single response read.
	DefaultReadTimeout = 50 * time.Millisecond

	// availablePoll is how long Available waits for stray bytes.
	availablePoll = time.Millisecond
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{
			Name:        name,
			Description: name,
		})
	}

	return result, nil
}

// Serial is a UART link to the meter.
type Serial struct {
	name    string
	timeout time.Duration

	mu      sync.Mutex
	port    serial.Port
	pending []byte
}

// OpenSerial opens the named port at 8N1 with the given baud rate and read timeout.
func OpenSerial(name string, baudRate int, timeout time.Duration) (*Serial, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if timeout == 0 {
		timeout = DefaultReadTimeout
	}

	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}

	s, err := newSerial(name, port, timeout)
	if err != nil {
		port.Close()
		return nil, err
	}
	return s, nil
}

func newSerial(name string, port serial.Port, timeout time.Duration) (*Serial, error) {
	if err := port.SetReadTimeout(timeout); err != nil {
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", name, err)
	}
	return &Serial{
		name:    name,
		timeout: timeout,
		port:    port,
	}, nil
}

// Name returns the port name.
func (s *Serial) Name() string {
	return s.name
}

// Write sends p to the port.
func (s *Serial) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return fmt.Errorf("serial port %s is closed", s.name)
	}

	n, err := s.port.Write(p)
	if err != nil {
		return fmt.Errorf("failed to write to %s: %w", s.name, err)
	}
	if n != len(p) {
		return fmt.Errorf("short write to %s: %d of %d bytes", s.name, n, len(p))
	}
	return nil
}

// ReadByte reads one byte.
func (s *Serial) ReadByte() (byte, error) {
	var b [1]byte
	if err := s.ReadFull(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadFull fills p, consuming bytes buffered by Available first.
// A read that times out before p is full returns ErrShortRead.
func (s *Serial) ReadFull(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return fmt.Errorf("serial port %s is closed", s.name)
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]

	for n < len(p) {
		m, err := s.port.Read(p[n:])
		if err != nil {
			return fmt.Errorf("failed to read from %s: %w", s.name, err)
		}
		if m == 0 {
			return fmt.Errorf("%s: got %d of %d bytes: %w", s.name, n, len(p), ErrShortRead)
		}
		n += m
	}
	return nil
}

// Flush discards buffered and unread input.
func (s *Serial) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = nil
	if s.port == nil {
		return nil
	}
	if err := s.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", s.name, err)
	}
	return nil
}

// Available polls the port briefly and reports whether input is pending.
func (s *Serial) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) > 0 {
		return true
	}
	if s.port == nil {
		return false
	}

	if err := s.port.SetReadTimeout(availablePoll); err != nil {
		log.Printf("Error setting poll timeout on %s: %v", s.name, err)
		return false
	}
	defer func() {
		if err := s.port.SetReadTimeout(s.timeout); err != nil {
			log.Printf("Error restoring read timeout on %s: %v", s.name, err)
		}
	}()

	var buf [64]byte
	n, err := s.port.Read(buf[:])
	if err != nil || n == 0 {
		return false
	}
	s.pending = append(s.pending, buf[:n]...)
	return true
}

// Close closes the port.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	s.pending = nil
	if err != nil {
		return fmt.Errorf("failed to close serial port %s: %w", s.name, err)
	}
	return nil
}
