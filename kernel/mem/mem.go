// Package mem contains the page-size constants, alignment helpers and
// physical memory access primitives shared by the memory subsystem.
package mem

const (
	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a frame number (shift right by PageShift)
	// and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = Size(1 << PageShift)

	// LowMemoryEnd is the first address past the legacy (real-mode, BIOS
	// and video) memory area. The multiboot record reports upper memory
	// starting at this address.
	LowMemoryEnd = 1 * Mb
)

// Size represents a memory block size in bytes.
type Size uint64

// Common memory block sizes
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
	Gb        = 1024 * Mb
)

// Pages returns the number of pages that are required for storing this size.
func (s Size) Pages() uint32 {
	return uint32(PageAlignUp(uintptr(s)) >> PageShift)
}

// PageAlignDown rounds addr down to the closest page boundary.
func PageAlignDown(addr uintptr) uintptr {
	return addr &^ uintptr(PageSize-1)
}

// PageAlignUp rounds addr up to the closest page boundary. Page-aligned
// addresses are returned unchanged.
func PageAlignUp(addr uintptr) uintptr {
	return (addr + uintptr(PageSize-1)) &^ uintptr(PageSize-1)
}
