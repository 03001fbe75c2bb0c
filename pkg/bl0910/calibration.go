package bl0910

import (
	"errors"
	"fmt"
	"math"

	"github.com/chewxy/math32"

	"github.com/itohio/gobl0910/pkg/config"
)

// ErrDivisionByZero is returned by gain correction for a zero measured current.
var ErrDivisionByZero = errors.New("measured current is zero")

// BiasValue returns the RMS offset correction, (I² − I₀²)/256 truncated,
// where I₀ and I are the measured and corrected currents scaled by ki.
func BiasValue(measured, corrected, ki float64) int32 {
	i0 := float32(measured * ki)
	i := float32(corrected * ki)
	return saturate(math32.Trunc((i*i - i0*i0) / 256))
}

// GainValue returns the RMS gain correction, round((I/I₀ − 1) × 65536).
func GainValue(measured, corrected, ki float64) (int32, error) {
	i0 := float32(measured * ki)
	if i0 == 0 {
		return 0, ErrDivisionByZero
	}
	i := float32(corrected * ki)
	return saturate(math32.Round((i/i0 - 1) * 65536)), nil
}

// saturate converts v to int32, clamping values the conversion cannot represent.
func saturate(v float32) int32 {
	switch {
	case math32.IsNaN(v):
		return 0
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	}
	return int32(v)
}

// BiasCorrection writes the offset correction for measured and corrected
// currents (A) to the register at address.
func (d *Device) BiasCorrection(address byte, measured, corrected float64) error {
	return d.writeRegister(address, BiasValue(measured, corrected, d.ki))
}

// GainCorrection writes the gain correction for measured and corrected
// currents (A) to the register at address.
func (d *Device) GainCorrection(address byte, measured, corrected float64) error {
	v, err := GainValue(measured, corrected, d.ki)
	if err != nil {
		return fmt.Errorf("gain correction for 0x%02X: %w", address, err)
	}
	return d.writeRegister(address, v)
}

// CalibrateBias schedules an offset correction of channel n.
func (d *Device) CalibrateBias(n int, measured, corrected float64) (int, error) {
	if err := checkChannel(n); err != nil {
		return 0, err
	}
	address := RegRMSOS1 + byte(n-1)
	return d.Enqueue(func() error {
		return d.BiasCorrection(address, measured, corrected)
	}), nil
}

// CalibrateGain schedules a gain correction of channel n.
func (d *Device) CalibrateGain(n int, measured, corrected float64) (int, error) {
	if err := checkChannel(n); err != nil {
		return 0, err
	}
	if measured*d.ki == 0 {
		return 0, fmt.Errorf("channel %d: %w", n, ErrDivisionByZero)
	}
	address := RegRMSGN1 + byte(n-1)
	return d.Enqueue(func() error {
		return d.GainCorrection(address, measured, corrected)
	}), nil
}

func checkChannel(n int) error {
	if n < 1 || n > config.NumChannels {
		return fmt.Errorf("channel %d out of range 1..%d", n, config.NumChannels)
	}
	return nil
}
