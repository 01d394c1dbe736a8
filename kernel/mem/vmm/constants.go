package vmm

import "github.com/erynofwales/polka/kernel/mem"

const (
	// pageLevels indicates the number of page levels supported by 32-bit
	// (non-PAE) paging: a page directory and page tables.
	pageLevels = 2

	// entriesPerTable is the number of 4-byte entries held by a page
	// directory or page table.
	entriesPerTable = int(mem.PageSize) / entrySize

	// entrySize is the size in bytes of an encoded entry.
	entrySize = 4

	// ptePhysPageMask is a mask that allows us to extract the physical memory
	// address pointed to by a page table entry.
	ptePhysPageMask = uint32(0xFFFFF000)
)

var (
	// pageLevelShifts defines the shift required to access each page table
	// component of a virtual address.
	pageLevelShifts = [pageLevels]uint8{22, 12}
)

const (
	// FlagPresent is set when the page is available in memory and not swapped out.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode processes can access this page. If
	// not set only kernel code can access this page.
	FlagUserAccessible

	// FlagWriteThroughCaching implies write-through caching when set and write-back
	// caching if cleared.
	FlagWriteThroughCaching

	// FlagDoNotCache prevents this page from being cached if set.
	FlagDoNotCache

	// FlagAccessed is set by the CPU when this page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when this page is modified.
	FlagDirty

	// FlagPAT selects the page attribute table entry (page tables) or
	// marks a 4M page (page directory).
	FlagPAT

	// FlagGlobal if set, prevents the TLB from flushing the cached memory address
	// for this page when the swapping page tables by updating the CR3 register.
	FlagGlobal
)

// FlagHugePage is set in a page directory entry that maps a 4M page instead
// of pointing to a page table. It shares its bit with FlagPAT.
const FlagHugePage = FlagPAT
