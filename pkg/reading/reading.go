package reading

import (
	"log"
	"sync"
	"time"

	"github.com/itohio/gobl0910/pkg/bl0910"
)

// Reading is a published measurement value with the time it was received.
type Reading struct {
	Timestamp   time.Time
	Measurement bl0910.Measurement
	Value       float64 // In the unit of Measurement.Quantity
}

// Converter transforms a stream of readings into another one. The output
// channel is closed once the input is drained.
type Converter func(in <-chan Reading) <-chan Reading

// Stream turns device publications into a channel of Readings.
type Stream struct {
	out chan Reading
	now func() time.Time

	mu     sync.RWMutex
	closed bool
}

// NewStream creates a stream with the given channel buffer size.
func NewStream(bufSize int) *Stream {
	if bufSize <= 0 {
		bufSize = 100
	}
	return &Stream{
		out: make(chan Reading, bufSize),
		now: time.Now,
	}
}

// Sink returns a sink that timestamps values of m into the stream.
func (s *Stream) Sink(m bl0910.Measurement) bl0910.Sink {
	return bl0910.SinkFunc(func(value float64) {
		s.publish(m, value)
	})
}

// Readings returns the output channel. It is closed by Close.
func (s *Stream) Readings() <-chan Reading {
	return s.out
}

// Close stops the stream. Values published afterwards are dropped.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.out)
}

// publish never blocks: the scanner must not stall on a slow consumer.
func (s *Stream) publish(m bl0910.Measurement, value float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	r := Reading{Timestamp: s.now(), Measurement: m, Value: value}
	select {
	case s.out <- r:
	default:
		log.Printf("Reading channel full, dropping %s", m)
	}
}
