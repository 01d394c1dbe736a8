// Package pmm contains code that manages physical memory frame allocations.
package pmm

import (
	"github.com/erynofwales/polka/kernel"
	"github.com/erynofwales/polka/kernel/mem"
)

// Frame describes a physical memory page index.
type Frame uintptr

const (
	// InvalidFrame is returned by frame allocators when they fail to
	// reserve the requested frame. It never matches a trackable frame.
	InvalidFrame = ^Frame(0)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical memory address pointed to by this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f) << mem.PageShift
}

// FrameFromAddress returns the Frame that contains the given physical
// address. Addresses that are not page-aligned are rounded down.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame(mem.PageAlignDown(physAddr) >> mem.PageShift)
}

// Allocator is implemented by objects that hand out physical frames.
type Allocator interface {
	// AllocFrame reserves and returns a free frame. If no frame is
	// available it returns InvalidFrame and a non-nil error.
	AllocFrame() (Frame, *kernel.Error)
}
