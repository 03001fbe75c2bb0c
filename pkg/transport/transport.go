package transport

import "errors"

// ErrShortRead is returned when fewer bytes arrived than were requested.
var ErrShortRead = errors.New("short read")

// Transport is the half-duplex byte link to the metering IC.
type Transport interface {
	// Write sends all bytes of p.
	Write(p []byte) error
	// ReadByte reads a single byte.
	ReadByte() (byte, error)
	// ReadFull fills p completely or returns ErrShortRead.
	ReadFull(p []byte) error
	// Flush discards any unread input.
	Flush() error
	// Available reports whether unread input is pending.
	Available() bool
}

// Ensure the implementations satisfy Transport.
var (
	_ Transport = (*Serial)(nil)
	_ Transport = (*SPI)(nil)
)
