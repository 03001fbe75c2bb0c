package bl0910

import (
	"fmt"

	"github.com/itohio/gobl0910/pkg/config"
)

// Command opcodes preceding the register address on the wire.
const (
	ReadCommand  byte = 0x82
	WriteCommand byte = 0x81
)

// Register addresses. Per-channel registers are laid out consecutively,
// channel n living at base+n-1.
const (
	RegIRMS1     byte = 0x0C // I_RMS channels 1..10
	RegVRMS      byte = 0x16
	RegWatt1     byte = 0x22 // WATT channels 1..10
	RegWattSum   byte = 0x2C
	RegCFCnt1    byte = 0x2F // CF_CNT channels 1..10
	RegCFSumCnt  byte = 0x39
	RegPeriod    byte = 0x4E
	RegTPS       byte = 0x5E
	RegRMSGN1    byte = 0x6D // RMS gain channels 1..10
	RegRMSOS1    byte = 0x78 // RMS offset channels 1..10
	RegUsrWrProt byte = 0x9E
	RegSoftReset byte = 0x9F
)

// Values written to the protection and reset registers.
const (
	unlockKey    int32 = 0x005555
	softResetKey int32 = 0x5A5A5A
)

// Quantity is a kind of physical measurement.
type Quantity uint8

const (
	Voltage Quantity = iota
	Current
	Power
	Energy
	PowerFactor
	TotalPower
	TotalEnergy
	Frequency
	Temperature
)

var quantityNames = [...]string{
	Voltage:     "voltage",
	Current:     "current",
	Power:       "power",
	Energy:      "energy",
	PowerFactor: "power_factor",
	TotalPower:  "total_power",
	TotalEnergy: "total_energy",
	Frequency:   "frequency",
	Temperature: "temperature",
}

func (q Quantity) String() string {
	if int(q) < len(quantityNames) {
		return quantityNames[q]
	}
	return fmt.Sprintf("quantity(%d)", uint8(q))
}

// Unit returns the physical unit of q.
func (q Quantity) Unit() string {
	switch q {
	case Voltage:
		return "V"
	case Current:
		return "A"
	case Power, TotalPower:
		return "W"
	case Energy, TotalEnergy:
		return "kWh"
	case Frequency:
		return "Hz"
	case Temperature:
		return "°C"
	}
	return ""
}

// Measurement identifies one logical value the device produces. Channel is
// 1..10 for per-channel quantities and 0 for shared ones.
type Measurement struct {
	Quantity Quantity
	Channel  int
}

// Shared returns the device-wide measurement of q.
func Shared(q Quantity) Measurement {
	return Measurement{Quantity: q}
}

// PerChannel returns the measurement of q on channel n.
func PerChannel(q Quantity, n int) Measurement {
	return Measurement{Quantity: q, Channel: n}
}

func (m Measurement) String() string {
	if m.Channel == 0 {
		return m.Quantity.String()
	}
	return fmt.Sprintf("%s_%d", m.Quantity, m.Channel)
}

// Register binds a device register to the rule decoding its contents.
type Register struct {
	Address byte
	Rule    DecodeRule
}

// Catalog maps every readable measurement to its register. It is built once
// from the reference scales and never changes afterwards.
type Catalog map[Measurement]Register

// NewCatalog builds the register catalog for the given reference scales.
// Power factor is derived, not read, and therefore absent.
func NewCatalog(ref config.Reference) Catalog {
	c := Catalog{
		Shared(Voltage):     {RegVRMS, DecodeRule{Kind: RuleUnsigned, Scale: ref.Voltage}},
		Shared(TotalPower):  {RegWattSum, DecodeRule{Kind: RuleSigned, Scale: ref.TotalPower}},
		Shared(TotalEnergy): {RegCFSumCnt, DecodeRule{Kind: RuleUnsigned, Scale: ref.TotalEnergy}},
		Shared(Frequency):   {RegPeriod, DecodeRule{Kind: RuleReciprocal, Scale: ref.Frequency}},
		Shared(Temperature): {RegTPS, DecodeRule{Kind: RuleTemperature}},
	}
	for n := 1; n <= config.NumChannels; n++ {
		off := byte(n - 1)
		c[PerChannel(Current, n)] = Register{RegIRMS1 + off, DecodeRule{Kind: RuleUnsigned, Scale: ref.Current}}
		c[PerChannel(Power, n)] = Register{RegWatt1 + off, DecodeRule{Kind: RuleSigned, Scale: ref.Power}}
		c[PerChannel(Energy, n)] = Register{RegCFCnt1 + off, DecodeRule{Kind: RuleUnsigned, Scale: ref.Energy}}
	}
	return c
}

// Measurements returns every measurement enabled in cfg, shared ones first.
func Measurements(cfg *config.Config) []Measurement {
	var ms []Measurement
	s := cfg.Sensors
	for _, e := range []struct {
		on bool
		q  Quantity
	}{
		{s.Voltage, Voltage},
		{s.Frequency, Frequency},
		{s.Temperature, Temperature},
		{s.TotalPower, TotalPower},
		{s.TotalEnergy, TotalEnergy},
	} {
		if e.on {
			ms = append(ms, Shared(e.q))
		}
	}

	for n := 1; n <= config.NumChannels; n++ {
		ch := cfg.Channel(n)
		if ch.Current {
			ms = append(ms, PerChannel(Current, n))
		}
		if ch.Power {
			ms = append(ms, PerChannel(Power, n))
		}
		if ch.Energy {
			ms = append(ms, PerChannel(Energy, n))
		}
		if ch.PowerFactor {
			ms = append(ms, PerChannel(PowerFactor, n))
		}
	}
	return ms
}
