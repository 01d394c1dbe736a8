package gdt

import (
	"unsafe"

	"github.com/erynofwales/polka/kernel/cpu"
)

// Size is the number of descriptors in the table.
const Size = 5

// Descriptor indices used by the kernel.
const (
	NullIndex       = 0
	KernelCodeIndex = 1
	KernelDataIndex = 2
)

var (
	// KernelCodeSelector selects the kernel code segment.
	KernelCodeSelector = Selector(KernelCodeIndex, Ring0)

	// KernelDataSelector selects the kernel data segment.
	KernelDataSelector = Selector(KernelDataIndex, Ring0)
)

// Selector returns the segment selector for the GDT descriptor at index
// with the requested privilege level.
func Selector(index uint16, rpl DPL) uint16 {
	return index<<3 | uint16(rpl&0x3)
}

// Table is a fixed-size global descriptor table. The zero value holds null
// descriptors only.
type Table struct {
	entries [Size]Descriptor

	// pd is the lgdt operand built by Load. It lives inside the table so
	// that handing its address to the CPU port does not move it to the heap.
	pd cpu.PseudoDescriptor
}

// SetDescriptor encodes seg into the descriptor at index. Out of range
// indices are ignored.
func (t *Table) SetDescriptor(index int, seg Segment) {
	if index < 0 || index >= Size {
		return
	}
	t.entries[index] = seg.Encode()
}

// SetNullDescriptor clears the descriptor at index. Out of range indices are
// ignored.
func (t *Table) SetNullDescriptor(index int) {
	if index < 0 || index >= Size {
		return
	}
	t.entries[index] = 0
}

// Entry returns the descriptor at index or a null descriptor if index is
// out of range.
func (t *Table) Entry(index int) Descriptor {
	if index < 0 || index >= Size {
		return 0
	}
	return t.entries[index]
}

// PseudoDescriptor returns the lgdt operand for the table: its size in bytes
// minus one and its linear address. The table memory must be identity
// mapped for the address to be meaningful to the CPU.
func (t *Table) PseudoDescriptor() cpu.PseudoDescriptor {
	return cpu.NewPseudoDescriptor(
		uint16(Size*unsafe.Sizeof(t.entries[0])-1),
		uint32(uintptr(unsafe.Pointer(&t.entries[0]))),
	)
}

// Load installs the table and reloads the segment registers with the kernel
// code and data selectors.
func (t *Table) Load(port cpu.Port) {
	t.pd = t.PseudoDescriptor()
	port.LoadGDT(&t.pd, KernelCodeSelector, KernelDataSelector)
}
