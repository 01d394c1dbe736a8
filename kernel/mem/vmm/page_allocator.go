// Package vmm builds the page tables that the kernel will use once paging is
// enabled.
package vmm

import (
	"github.com/erynofwales/polka/kernel"
	"github.com/erynofwales/polka/kernel/boot"
	"github.com/erynofwales/polka/kernel/kfmt"
	"github.com/erynofwales/polka/kernel/mem"
	"github.com/erynofwales/polka/kernel/mem/pmm"
)

var (
	// ErrInvalidMapping is returned when trying to lookup a virtual memory address that is not yet mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	errNoHugePageSupport = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}
	errTableUnavailable  = &kernel.Error{Module: "vmm", Message: "page table frame is not backed by physical memory"}
	errNoPageDirectory   = &kernel.Error{Module: "vmm", Message: "page directory has not been set up"}

	logPrefix = []byte("[vmm] ")
)

// pageTableWalker is invoked by walk for each table visited while resolving
// a virtual address. It receives the paging level, the bytes of the table at
// that level and the index of the entry covering the address. Returning
// false aborts the walk.
type pageTableWalker func(level int, table []byte, index int) bool

// PageAllocator owns the kernel page directory. Tables are accessed through
// physical memory so they can be built while paging is still disabled.
type PageAllocator struct {
	physMem   mem.PhysicalMemory
	frames    pmm.Allocator
	directory pmm.Frame
	log       kfmt.PrefixWriter
}

// Init allocates and clears a frame for the page directory and a frame for
// the first page table. Directory entry 0 is pointed at the page table and
// flagged as present, writable and accessible only by the kernel; all other
// entries are left non-present. Paging is not enabled.
func (pa *PageAllocator) Init(ctx *boot.Context, frames pmm.Allocator) *kernel.Error {
	pa.physMem = ctx.Memory
	pa.frames = frames
	pa.directory = pmm.InvalidFrame

	pa.log = kfmt.PrefixWriter{Sink: ctx.Console, Prefix: logPrefix}

	dirFrame, dir, err := pa.allocTable()
	if err != nil {
		return err
	}
	kfmt.Fprintf(&pa.log, "page directory at %p\n", dirFrame.Address())

	tableFrame, _, err := pa.allocTable()
	if err != nil {
		return err
	}

	var pde PageTableEntry
	pde.SetFrame(tableFrame)
	pde.SetFlags(FlagPresent | FlagRW)
	writeEntry(dir, 0, pde)
	kfmt.Fprintf(&pa.log, "first page table at %p\n", tableFrame.Address())

	pa.directory = dirFrame
	return nil
}

// allocTable allocates a frame from the frame allocator and zeroes it.
func (pa *PageAllocator) allocTable() (pmm.Frame, []byte, *kernel.Error) {
	frame, err := pa.frames.AllocFrame()
	if err != nil {
		return pmm.InvalidFrame, nil, err
	}

	table := pa.table(frame)
	if table == nil {
		return pmm.InvalidFrame, nil, errTableUnavailable
	}

	mem.Memset(table, 0)
	return frame, table, nil
}

// table returns the bytes of the page-sized table stored in frame.
func (pa *PageAllocator) table(frame pmm.Frame) []byte {
	if !frame.Valid() {
		return nil
	}
	return pa.physMem.Bytes(frame.Address(), mem.PageSize)
}

// Directory returns the frame that holds the page directory or
// pmm.InvalidFrame if Init has not completed successfully.
func (pa *PageAllocator) Directory() pmm.Frame {
	if pa.physMem == nil {
		return pmm.InvalidFrame
	}
	return pa.directory
}

// DirectoryEntry returns the page directory entry at index. It returns a
// zero (non-present) entry if index is out of range or the directory has not
// been set up.
func (pa *PageAllocator) DirectoryEntry(index int) PageTableEntry {
	dir := pa.table(pa.Directory())
	if dir == nil || index < 0 || index >= entriesPerTable {
		return 0
	}
	return readEntry(dir, index)
}

// walk performs a page table walk for virtAddr starting at the page
// directory and invoking walkFn for each visited table. walkFn for a level
// runs before the entry pointing to the next level is read so it may
// install a missing table.
func (pa *PageAllocator) walk(virtAddr uintptr, walkFn pageTableWalker) *kernel.Error {
	table := pa.table(pa.Directory())
	if table == nil {
		return errNoPageDirectory
	}

	for level := 0; level < pageLevels; level++ {
		index := tableIndex(virtAddr, level)
		if !walkFn(level, table, index) {
			return nil
		}

		if level == pageLevels-1 {
			break
		}

		if table = pa.table(readEntry(table, index).Frame()); table == nil {
			return errTableUnavailable
		}
	}

	return nil
}

// Map establishes a mapping between a virtual page and a physical memory
// frame in the kernel page directory. Missing page tables are allocated from
// the frame allocator and cleared.
func (pa *PageAllocator) Map(page Page, frame pmm.Frame, flags PageTableEntryFlag) *kernel.Error {
	var err *kernel.Error

	walkErr := pa.walk(page.Address(), func(level int, table []byte, index int) bool {
		pte := readEntry(table, index)

		// If we reached the last level all we need to do is to map the
		// frame in place and flag it as present
		if level == pageLevels-1 {
			pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(FlagPresent | flags)
			writeEntry(table, index, pte)
			return true
		}

		if pte.HasFlags(FlagPresent | FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		// Next table does not yet exist; allocate and clear a frame for it
		if !pte.HasFlags(FlagPresent) {
			var tableFrame pmm.Frame
			if tableFrame, _, err = pa.allocTable(); err != nil {
				return false
			}

			pte = 0
			pte.SetFrame(tableFrame)
			pte.SetFlags(FlagPresent | FlagRW)
			writeEntry(table, index, pte)
		}

		return true
	})

	if walkErr != nil {
		return walkErr
	}
	return err
}

// IdentityMapRange maps every page overlapping [start, start+size) to the
// frame with the same address.
func (pa *PageAllocator) IdentityMapRange(start uintptr, size mem.Size, flags PageTableEntryFlag) *kernel.Error {
	if size == 0 {
		return nil
	}

	endPage := PageFromAddress(mem.PageAlignUp(start + uintptr(size)))
	for page := PageFromAddress(start); page < endPage; page++ {
		if err := pa.Map(page, pmm.Frame(page), flags); err != nil {
			return err
		}
	}

	return nil
}

// Translate returns the physical address that corresponds to the supplied
// virtual address or ErrInvalidMapping if the virtual address does not
// correspond to a mapped physical address.
func (pa *PageAllocator) Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	var (
		physAddr uintptr
		err      = ErrInvalidMapping
	)

	walkErr := pa.walk(virtAddr, func(level int, table []byte, index int) bool {
		pte := readEntry(table, index)
		if !pte.HasFlags(FlagPresent) {
			return false
		}

		if level == pageLevels-1 {
			physAddr = pte.Frame().Address() + (virtAddr & uintptr(mem.PageSize-1))
			err = nil
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		return true
	})

	if walkErr != nil {
		return 0, walkErr
	}
	if err != nil {
		return 0, err
	}
	return physAddr, nil
}
