// Package cpu isolates the privileged x86 instructions used during boot
// behind the Port capability interface.
package cpu

import "encoding/binary"

// Port exposes the CPU operations needed by the boot-time memory subsystem.
// The native implementation executes the real instructions; host builds use
// an inert implementation and tests substitute a Recorder.
type Port interface {
	// LoadGDT loads the descriptor table described by pd (lgdt), then
	// reloads CS with codeSelector and DS, ES, FS, GS and SS with
	// dataSelector. There is no way to undo a bad table.
	LoadGDT(pd *PseudoDescriptor, codeSelector, dataSelector uint16)

	// EnableInterrupts enables interrupt handling.
	EnableInterrupts()

	// DisableInterrupts disables interrupt handling.
	DisableInterrupts()

	// SaveAndDisableInterrupts disables interrupt handling and reports
	// whether it was enabled before the call. Callers re-enable interrupts
	// only if it was.
	SaveAndDisableInterrupts() bool

	// Halt stops instruction execution. The native implementation never
	// returns.
	Halt()
}

// PseudoDescriptor is the packed 6-byte {limit u16, base u32} operand of the
// lgdt/lidt instructions.
type PseudoDescriptor [6]byte

// NewPseudoDescriptor encodes limit and base into a PseudoDescriptor.
func NewPseudoDescriptor(limit uint16, base uint32) PseudoDescriptor {
	var pd PseudoDescriptor
	binary.LittleEndian.PutUint16(pd[0:2], limit)
	binary.LittleEndian.PutUint32(pd[2:6], base)
	return pd
}

// Limit returns the table size in bytes minus one.
func (pd PseudoDescriptor) Limit() uint16 {
	return binary.LittleEndian.Uint16(pd[0:2])
}

// Base returns the linear address of the table.
func (pd PseudoDescriptor) Base() uint32 {
	return binary.LittleEndian.Uint32(pd[2:6])
}
