package bl0910

import "fmt"

// RuleKind selects how raw register contents map to a physical value.
type RuleKind uint8

const (
	// RuleUnsigned multiplies the unsigned 24-bit value by the scale.
	RuleUnsigned RuleKind = iota
	// RuleSigned multiplies the two's-complement 24-bit value by the scale.
	RuleSigned
	// RuleReciprocal divides the scale by the unsigned 24-bit value.
	RuleReciprocal
	// RuleTemperature applies the die temperature formula to the signed value.
	RuleTemperature
)

func (k RuleKind) String() string {
	switch k {
	case RuleUnsigned:
		return "unsigned"
	case RuleSigned:
		return "signed"
	case RuleReciprocal:
		return "reciprocal"
	case RuleTemperature:
		return "temperature"
	}
	return fmt.Sprintf("rule(%d)", uint8(k))
}

// DecodeRule converts a raw register value into physical units.
type DecodeRule struct {
	Kind  RuleKind
	Scale float64
}

// Uint24 assembles three little-endian bytes into an unsigned value.
func Uint24(l, m, h byte) uint32 {
	return uint32(h)<<16 | uint32(m)<<8 | uint32(l)
}

// Int24 assembles three little-endian bytes into a two's-complement value,
// the sign held in the top bit of h.
func Int24(l, m, h byte) int32 {
	return int32(int8(h))<<16 | int32(m)<<8 | int32(l)
}

// Decode applies the rule to a register value.
// A reciprocal rule over a zero register yields +Inf.
func (r DecodeRule) Decode(l, m, h byte) float64 {
	switch r.Kind {
	case RuleSigned:
		return float64(Int24(l, m, h)) * r.Scale
	case RuleReciprocal:
		return r.Scale / float64(Uint24(l, m, h))
	case RuleTemperature:
		return (float64(Int24(l, m, h))-64)*12.5/59 - 40
	default:
		return float64(Uint24(l, m, h)) * r.Scale
	}
}
