// Package gdt encodes x86 segment descriptors and installs the global
// descriptor table.
package gdt

// DPL is the 2-bit descriptor privilege level.
type DPL uint8

// Privilege levels; Ring0 is the most privileged.
const (
	Ring0 DPL = iota
	Ring1
	Ring2
	Ring3
)

// Type is the 4-bit type field of a code or data segment descriptor.
type Type uint8

// Data segment types.
const (
	DataRO    Type = 0x0 // read-only
	DataROA   Type = 0x1 // read-only, accessed
	DataRW    Type = 0x2 // read/write
	DataRWA   Type = 0x3 // read/write, accessed
	DataROEX  Type = 0x4 // read-only, expand-down
	DataROEXA Type = 0x5 // read-only, expand-down, accessed
	DataRWEX  Type = 0x6 // read/write, expand-down
	DataRWEXA Type = 0x7 // read/write, expand-down, accessed
)

// Code segment types.
const (
	CodeEX    Type = 0x8 // execute-only
	CodeEXA   Type = 0x9 // execute-only, accessed
	CodeEXR   Type = 0xa // execute/read
	CodeEXRA  Type = 0xb // execute/read, accessed
	CodeEXC   Type = 0xc // execute-only, conforming
	CodeEXCA  Type = 0xd // execute-only, conforming, accessed
	CodeEXRC  Type = 0xe // execute/read, conforming
	CodeEXRCA Type = 0xf // execute/read, conforming, accessed
)

// Descriptor is an encoded 8-byte segment descriptor.
type Descriptor uint64

// Bit positions within the upper 32 bits of a descriptor.
const (
	shiftGranularity = 23
	shiftOperand32   = 22
	shiftLong        = 21
	shiftAvailable   = 20
	shiftPresent     = 15
	shiftDPL         = 13
	shiftCodeData    = 12
	shiftType        = 8
)

// Segment describes a memory segment. See the Intel System Programming Guide,
// volume 3, section 3.4.5 for the meaning of each field.
type Segment struct {
	// Base is the linear address of the first byte of the segment.
	Base uint32

	// Limit is the segment limit; only its low 20 bits are encoded.
	Limit uint32

	// Granularity (G) scales the limit in 4K units when set.
	Granularity bool

	// Operand32 (D/B) selects 32-bit operations.
	Operand32 bool

	// Long (L) marks 64-bit code; only meaningful in IA-32e mode.
	Long bool

	// Available (AVL) is free for use by system software.
	Available bool

	// Present (P) marks the segment as present in memory.
	Present bool

	// Privilege is the descriptor privilege level (DPL).
	Privilege DPL

	// CodeData (S) is set for code and data segments and cleared for
	// system segments.
	CodeData bool

	// Type is the segment type.
	Type Type
}

// KernelSegment returns a present, ring 0, 32-bit code or data
// segment with 4K granularity.
func KernelSegment(base, limit uint32, segType Type) Segment {
	return Segment{
		Base:        base,
		Limit:       limit,
		Granularity: true,
		Operand32:   true,
		Present:     true,
		Privilege:   Ring0,
		CodeData:    true,
		Type:        segType,
	}
}

// Encode packs the segment into the descriptor layout mandated by the CPU.
// From the most significant bit of the upper 32 bits: base[31:24], G, D/B,
// L, AVL, limit[19:16], P, DPL, S, type, base[23:16]. The lower 32 bits hold
// base[15:0] and limit[15:0].
func (s Segment) Encode() Descriptor {
	hi := s.Base & 0xFF000000
	hi |= boolBit(s.Granularity) << shiftGranularity
	hi |= boolBit(s.Operand32) << shiftOperand32
	hi |= boolBit(s.Long) << shiftLong
	hi |= boolBit(s.Available) << shiftAvailable
	hi |= s.Limit & 0x000F0000
	hi |= boolBit(s.Present) << shiftPresent
	hi |= uint32(s.Privilege&0x3) << shiftDPL
	hi |= boolBit(s.CodeData) << shiftCodeData
	hi |= uint32(s.Type&0xF) << shiftType
	hi |= (s.Base >> 16) & 0xFF

	lo := (s.Base&0xFFFF)<<16 | s.Limit&0xFFFF

	return Descriptor(uint64(hi)<<32 | uint64(lo))
}

// Decode unpacks a descriptor. Decode(s.Encode()) returns s with Limit
// truncated to 20 bits.
func Decode(d Descriptor) Segment {
	hi, lo := uint32(d>>32), uint32(d)

	return Segment{
		Base:        hi&0xFF000000 | (hi&0xFF)<<16 | lo>>16,
		Limit:       hi&0x000F0000 | lo&0xFFFF,
		Granularity: hi&(1<<shiftGranularity) != 0,
		Operand32:   hi&(1<<shiftOperand32) != 0,
		Long:        hi&(1<<shiftLong) != 0,
		Available:   hi&(1<<shiftAvailable) != 0,
		Present:     hi&(1<<shiftPresent) != 0,
		Privilege:   DPL(hi>>shiftDPL) & 0x3,
		CodeData:    hi&(1<<shiftCodeData) != 0,
		Type:        Type(hi>>shiftType) & 0xF,
	}
}

func boolBit(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
