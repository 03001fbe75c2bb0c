package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

// fakePort serves queued input in chunks and records output. Methods not
// overridden panic through the nil embedded interface.
type fakePort struct {
	serial.Port

	in       []byte
	chunk    int
	out      []byte
	resets   int
	timeouts []time.Duration
	closed   bool
	readErr  error
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.readErr != nil {
		return 0, p.readErr
	}
	if len(p.in) == 0 {
		return 0, nil // timeout
	}
	n := len(b)
	if p.chunk > 0 && n > p.chunk {
		n = p.chunk
	}
	n = copy(b[:n], p.in)
	p.in = p.in[n:]
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.out = append(p.out, b...)
	return len(b), nil
}

func (p *fakePort) ResetInputBuffer() error {
	p.in = nil
	p.resets++
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeouts = append(p.timeouts, t)
	return nil
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func newTestSerial(t *testing.T, p *fakePort) *Serial {
	t.Helper()
	s, err := newSerial("fake", p, DefaultReadTimeout)
	require.NoError(t, err)
	return s
}

func TestSerial_Write(t *testing.T) {
	p := &fakePort{}
	s := newTestSerial(t, p)

	require.NoError(t, s.Write([]byte{0x82, 0x16}))
	assert.Equal(t, []byte{0x82, 0x16}, p.out)
	assert.Equal(t, []time.Duration{DefaultReadTimeout}, p.timeouts)
	assert.Equal(t, "fake", s.Name())
}

func TestSerial_ReadFull(t *testing.T) {
	tests := []struct {
		name    string
		in      []byte
		chunk   int
		want    []byte
		wantErr error
	}{
		{name: "whole frame", in: []byte{1, 2, 3, 4}, want: []byte{1, 2, 3, 4}},
		{name: "byte at a time", in: []byte{1, 2, 3, 4}, chunk: 1, want: []byte{1, 2, 3, 4}},
		{name: "trailing bytes stay", in: []byte{1, 2, 3, 4, 5}, want: []byte{1, 2, 3, 4}},
		{name: "short", in: []byte{1, 2}, wantErr: ErrShortRead},
		{name: "nothing", wantErr: ErrShortRead},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePort{in: tt.in, chunk: tt.chunk}
			s := newTestSerial(t, p)

			buf := make([]byte, 4)
			err := s.ReadFull(buf)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, buf)
		})
	}
}

func TestSerial_ReadError(t *testing.T) {
	p := &fakePort{readErr: errors.New("port gone")}
	s := newTestSerial(t, p)

	_, err := s.ReadByte()
	assert.ErrorContains(t, err, "port gone")
	assert.False(t, errors.Is(err, ErrShortRead))
}

func TestSerial_AvailableBuffers(t *testing.T) {
	p := &fakePort{in: []byte{0xAA, 0xBB}}
	s := newTestSerial(t, p)

	assert.True(t, s.Available())
	assert.Equal(t, []time.Duration{DefaultReadTimeout, availablePoll, DefaultReadTimeout}, p.timeouts)

	b, err := s.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0xAA), b)
	assert.True(t, s.Available())
	b, err = s.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0xBB), b)

	assert.False(t, s.Available())
}

func TestSerial_FlushDropsPending(t *testing.T) {
	p := &fakePort{in: []byte{0xAA}}
	s := newTestSerial(t, p)

	require.True(t, s.Available())
	p.in = []byte{0xCC}
	require.NoError(t, s.Flush())

	assert.Equal(t, 1, p.resets)
	assert.False(t, s.Available())
}

func TestSerial_Close(t *testing.T) {
	p := &fakePort{}
	s := newTestSerial(t, p)

	require.NoError(t, s.Close())
	assert.True(t, p.closed)
	require.NoError(t, s.Close())

	assert.Error(t, s.Write([]byte{0}))
	assert.Error(t, s.ReadFull(make([]byte, 1)))
	assert.False(t, s.Available())
	assert.NoError(t, s.Flush())
}
