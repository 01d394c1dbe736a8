package mem

// PhysicalMemory provides byte-level access to regions of physical memory.
// Components that place data structures at fixed physical addresses (the
// frame bitmap, page directories, the multiboot record) reach memory only
// through this interface so they can run against simulated memory.
type PhysicalMemory interface {
	// Bytes returns a slice that aliases the physical region
	// [addr, addr+size). It returns nil if the region is not backed by
	// memory.
	Bytes(addr uintptr, size Size) []byte
}

// IdentityMapped accesses physical memory directly. It is only usable while
// paging is disabled (or physical memory is identity-mapped) so that each
// physical address is also a valid linear address.
type IdentityMapped struct{}

// Bytes implements PhysicalMemory.
func (IdentityMapped) Bytes(addr uintptr, size Size) []byte {
	return Overlay(addr, size)
}

// SliceMemory simulates a physical address space starting at address 0 with
// a byte slice. Address x maps to SliceMemory[x].
type SliceMemory []byte

// Bytes implements PhysicalMemory.
func (m SliceMemory) Bytes(addr uintptr, size Size) []byte {
	end := uint64(addr) + uint64(size)
	if size == 0 || end < uint64(addr) || end > uint64(len(m)) {
		return nil
	}

	return m[addr:end:end]
}
