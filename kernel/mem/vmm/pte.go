package vmm

import (
	"encoding/binary"

	"github.com/erynofwales/polka/kernel/mem"
	"github.com/erynofwales/polka/kernel/mem/pmm"
)

// PageTableEntryFlag describes a flag that can be applied to a page table entry.
type PageTableEntryFlag uint32

// PageTableEntry describes a 32-bit page directory or page table entry. The
// entry encodes the page-aligned physical address of a frame in its upper 20
// bits and a set of flags in its lower 12 bits.
type PageTableEntry uint32

// HasFlags returns true if this entry has all the input flags set.
func (pte PageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uint32(pte) & uint32(flags)) == uint32(flags)
}

// HasAnyFlag returns true if this entry has at least one of the input flags set.
func (pte PageTableEntry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return (uint32(pte) & uint32(flags)) != 0
}

// SetFlags sets the input list of flags to the page table entry.
func (pte *PageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = (PageTableEntry)(uint32(*pte) | uint32(flags))
}

// ClearFlags unsets the input list of flags from the page table entry.
func (pte *PageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = (PageTableEntry)(uint32(*pte) &^ uint32(flags))
}

// Frame returns the physical page frame that this page table entry points to.
func (pte PageTableEntry) Frame() pmm.Frame {
	return pmm.Frame((uint32(pte) & ptePhysPageMask) >> mem.PageShift)
}

// SetFrame updates the page table entry to point the the given physical frame.
func (pte *PageTableEntry) SetFrame(frame pmm.Frame) {
	*pte = (PageTableEntry)((uint32(*pte) &^ ptePhysPageMask) | (uint32(frame.Address()) & ptePhysPageMask))
}

// SetAddress updates the page table entry to point to the page containing
// physAddr.
func (pte *PageTableEntry) SetAddress(physAddr uintptr) {
	pte.SetFrame(pmm.FrameFromAddress(physAddr))
}

// readEntry decodes the little-endian entry at index from the table bytes.
func readEntry(table []byte, index int) PageTableEntry {
	return PageTableEntry(binary.LittleEndian.Uint32(table[index*entrySize:]))
}

// writeEntry encodes pte as the little-endian entry at index in table.
func writeEntry(table []byte, index int, pte PageTableEntry) {
	binary.LittleEndian.PutUint32(table[index*entrySize:], uint32(pte))
}
