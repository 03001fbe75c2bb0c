package bl0910

// PacketSize is the length of a register frame on the wire: three data
// bytes, low first, followed by the checksum.
const PacketSize = 4

// Packet is one register frame.
type Packet struct {
	L, M, H  byte
	Checksum byte
}

// Checksum returns the frame checksum: the 8-bit sum of the address and the
// three data bytes, inverted.
func Checksum(address, l, m, h byte) byte {
	return (address + l + m + h) ^ 0xFF
}

// ParsePacket splits a received frame.
func ParsePacket(b [PacketSize]byte) Packet {
	return Packet{L: b[0], M: b[1], H: b[2], Checksum: b[3]}
}

// EncodePacket packs the low 24 bits of value for the register at address.
func EncodePacket(address byte, value int32) Packet {
	p := Packet{
		L: byte(value),
		M: byte(value >> 8),
		H: byte(value >> 16),
	}
	p.Checksum = Checksum(address, p.L, p.M, p.H)
	return p
}

// Verify reports whether the frame checksum matches for the given address.
func (p Packet) Verify(address byte) bool {
	return Checksum(address, p.L, p.M, p.H) == p.Checksum
}

// Bytes returns the frame as transmitted.
func (p Packet) Bytes() []byte {
	return []byte{p.L, p.M, p.H, p.Checksum}
}
