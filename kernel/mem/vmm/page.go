package vmm

import "github.com/erynofwales/polka/kernel/mem"

// Page describes a virtual memory page index.
type Page uintptr

// Address returns a pointer to the virtual memory address pointed to by this Page.
func (p Page) Address() uintptr {
	return uintptr(p << mem.PageShift)
}

// PageFromAddress returns a Page that corresponds to the given virtual
// address. This function can handle both page-aligned and not aligned virtual
// addresses. in the latter case, the input address will be rounded down to the
// page that contains it.
func PageFromAddress(virtAddr uintptr) Page {
	return Page(mem.PageAlignDown(virtAddr) >> mem.PageShift)
}

// tableIndex returns the index of the entry that covers virtAddr at the
// given paging level.
func tableIndex(virtAddr uintptr, level int) int {
	return int((virtAddr >> pageLevelShifts[level]) & uintptr(entriesPerTable-1))
}
