// Package allocator implements the physical frame allocator used while the
// kernel boots.
package allocator

import (
	"io"
	"math/bits"
	"unsafe"

	"github.com/erynofwales/polka/kernel"
	"github.com/erynofwales/polka/kernel/bitmap"
	"github.com/erynofwales/polka/kernel/boot"
	"github.com/erynofwales/polka/kernel/cpu"
	"github.com/erynofwales/polka/kernel/hal/multiboot"
	"github.com/erynofwales/polka/kernel/kfmt"
	"github.com/erynofwales/polka/kernel/mem"
	"github.com/erynofwales/polka/kernel/mem/pmm"
	"github.com/erynofwales/polka/kernel/sync"
)

var (
	errOutOfMemory        = &kernel.Error{Module: "frame_alloc", Message: "out of memory"}
	errBitmapUnavailable  = &kernel.Error{Module: "frame_alloc", Message: "no physical memory backs the frame bitmap"}
	errBitmapOverlapsBoot = &kernel.Error{Module: "frame_alloc", Message: "frame bitmap overlaps the boot information record"}

	logPrefix = []byte("[frame_alloc] ")
)

// BitmapAllocator implements a physical frame allocator that tracks frame
// reservations with a bitmap. Bit i of bitmap cell c tracks frame c*8+i; a
// set bit marks a reserved frame.
//
// The bitmap is stored in physical memory immediately after the kernel image
// and covers every frame up to the memory size reported by the boot loader.
// Frames are never released. Bitmap updates run with interrupts disabled
// and the spinlock held.
type BitmapAllocator struct {
	mutex sync.Spinlock

	// cpu masks interrupts while the bitmap is updated. It may be nil.
	cpu cpu.Port

	// frameCount is the number of frames tracked by the bitmap.
	frameCount uint32

	// reservedCount tracks the number of set bits in the bitmap.
	reservedCount uint32

	bitmapAddr uintptr
	bitmap     []bitmap.Cell

	log      kfmt.PrefixWriter
	statsLog kfmt.PrefixWriter
}

// lock disables interrupts and acquires the spinlock. It returns whether
// interrupts were enabled so that unlock can restore them.
func (alloc *BitmapAllocator) lock() bool {
	var irqEnabled bool
	if alloc.cpu != nil {
		irqEnabled = alloc.cpu.SaveAndDisableInterrupts()
	}

	alloc.mutex.Acquire()
	return irqEnabled
}

func (alloc *BitmapAllocator) unlock(irqEnabled bool) {
	alloc.mutex.Release()

	if irqEnabled {
		alloc.cpu.EnableInterrupts()
	}
}

// Init places the bitmap right after the kernel image, clears it and marks
// the frames that must never be handed out as reserved: the first MiB, the
// kernel image together with the bitmap itself and any region that the boot
// loader's memory map does not report as available.
//
// The boot information record must not lie where the bitmap goes since it
// is still read after the bitmap is cleared; Init fails if they overlap.
func (alloc *BitmapAllocator) Init(ctx *boot.Context, info *boot.StartupInfo) *kernel.Error {
	alloc.cpu = ctx.CPU
	alloc.log = kfmt.PrefixWriter{Sink: ctx.Console, Prefix: logPrefix}

	irqEnabled := alloc.lock()
	defer alloc.unlock(irqEnabled)

	alloc.frameCount = uint32(info.MemorySize() >> mem.PageShift)
	alloc.reservedCount = 0
	alloc.bitmapAddr = info.KernelEnd

	bitmapSize := mem.Size((alloc.frameCount + bitmap.CellBits - 1) / bitmap.CellBits)
	storage := ctx.Memory.Bytes(alloc.bitmapAddr, bitmapSize)
	if storage == nil {
		alloc.frameCount = 0
		alloc.bitmap = nil
		return errBitmapUnavailable
	}

	if info.MultibootInfo.Overlaps(alloc.bitmapAddr, bitmapSize) {
		alloc.frameCount = 0
		alloc.bitmap = nil
		return errBitmapOverlapsBoot
	}

	mem.Memset(storage, 0)
	alloc.bitmap = unsafe.Slice((*bitmap.Cell)(unsafe.Pointer(&storage[0])), len(storage))

	alloc.reserveRegion(0, uint64(mem.LowMemoryEnd))
	alloc.reserveRegion(uint64(info.KernelStart), uint64(info.KernelSize()+bitmapSize))

	info.MultibootInfo.VisitMemRegions(func(region multiboot.MemoryMapEntry) bool {
		if region.Type != multiboot.MemAvailable {
			alloc.reserveRegion(region.PhysAddress, region.Length)
		}
		return true
	})

	alloc.printMemoryMap(&alloc.log, info)
	kfmt.Fprintf(&alloc.log, "bitmap at %p, size: %d bytes, tracking %d frames\n", alloc.bitmapAddr, uint64(bitmapSize), alloc.frameCount)
	alloc.printStats(&alloc.log)
	return nil
}

// ReserveRange marks every frame overlapping the physical address range
// [start, start+length) as reserved. The range is widened to page
// boundaries; frames beyond the tracked memory size are ignored and a zero
// length reserves nothing.
func (alloc *BitmapAllocator) ReserveRange(start uintptr, length mem.Size) {
	irqEnabled := alloc.lock()
	alloc.reserveRegion(uint64(start), uint64(length))
	alloc.unlock(irqEnabled)
}

// reserveRegion implements ReserveRange using 64-bit arithmetic so that
// regions reaching the top of the 32-bit address space do not wrap around.
// Memory map regions that run past 2^64 are clamped to its end.
func (alloc *BitmapAllocator) reserveRegion(start, length uint64) {
	if length == 0 {
		return
	}

	end := start + length
	if end < start {
		end = ^uint64(0)
	}

	firstFrame := start >> mem.PageShift
	endFrame := end >> mem.PageShift
	if end&uint64(mem.PageSize-1) != 0 {
		endFrame++
	}
	if endFrame > uint64(alloc.frameCount) {
		endFrame = uint64(alloc.frameCount)
	}

	for frame := firstFrame; frame < endFrame; {
		cell, bit := frame/bitmap.CellBits, uint(frame%bitmap.CellBits)

		// Whole cells inside the range are filled in one step
		if bit == 0 && endFrame-frame >= bitmap.CellBits {
			alloc.reservedCount += uint32(bitmap.CellBits - bits.OnesCount8(uint8(alloc.bitmap[cell])))
			alloc.bitmap[cell].Fill()
			frame += bitmap.CellBits
			continue
		}

		if !alloc.bitmap[cell].IsSet(bit) {
			alloc.bitmap[cell].Set(bit)
			alloc.reservedCount++
		}
		frame++
	}
}

// AllocFrame reserves and returns the lowest-numbered free frame. Once all
// frames have been handed out, AllocFrame returns pmm.InvalidFrame and an
// error on every call.
func (alloc *BitmapAllocator) AllocFrame() (pmm.Frame, *kernel.Error) {
	irqEnabled := alloc.lock()
	defer alloc.unlock(irqEnabled)

	for cellIndex := range alloc.bitmap {
		if alloc.bitmap[cellIndex].IsFull() {
			continue
		}

		bit, _ := alloc.bitmap[cellIndex].FirstClear()
		frame := uint32(cellIndex)*bitmap.CellBits + uint32(bit)

		// The last cell may contain bits past the end of memory
		if frame >= alloc.frameCount {
			break
		}

		alloc.bitmap[cellIndex].Set(bit)
		alloc.reservedCount++
		return pmm.Frame(frame), nil
	}

	return pmm.InvalidFrame, errOutOfMemory
}

// FrameCount returns the number of frames tracked by the allocator.
func (alloc *BitmapAllocator) FrameCount() uint32 {
	return alloc.frameCount
}

// ReservedCount returns the number of reserved (including allocated) frames.
func (alloc *BitmapAllocator) ReservedCount() uint32 {
	return alloc.reservedCount
}

// FreeCount returns the number of frames that can still be allocated.
func (alloc *BitmapAllocator) FreeCount() uint32 {
	return alloc.frameCount - alloc.reservedCount
}

// IsReserved returns true if frame is reserved or lies outside the tracked
// range.
func (alloc *BitmapAllocator) IsReserved(frame pmm.Frame) bool {
	if !frame.Valid() || uint64(frame) >= uint64(alloc.frameCount) {
		return true
	}

	return alloc.bitmap[frame/bitmap.CellBits].IsSet(uint(frame % bitmap.CellBits))
}

// BitmapAddress returns the physical address of the bitmap.
func (alloc *BitmapAllocator) BitmapAddress() uintptr {
	return alloc.bitmapAddr
}

// BitmapSize returns the size of the bitmap.
func (alloc *BitmapAllocator) BitmapSize() mem.Size {
	return mem.Size(len(alloc.bitmap))
}

// PrintStats outputs the frame counters to w.
func (alloc *BitmapAllocator) PrintStats(w io.Writer) {
	alloc.statsLog = kfmt.PrefixWriter{Sink: w, Prefix: logPrefix}
	alloc.printStats(&alloc.statsLog)
}

func (alloc *BitmapAllocator) printStats(w io.Writer) {
	kfmt.Fprintf(w, "frames: %d total, %d reserved, %d free (%dKb)\n",
		alloc.frameCount,
		alloc.reservedCount,
		alloc.FreeCount(),
		uint64(alloc.FreeCount())*uint64(mem.PageSize/mem.Kb),
	)
}

// printMemoryMap outputs the memory map reported by the boot loader.
func (alloc *BitmapAllocator) printMemoryMap(w io.Writer, info *boot.StartupInfo) {
	if !info.MultibootInfo.HasMemoryMap() {
		kfmt.Fprintf(w, "no memory map; upper memory: %dKb\n", info.MultibootInfo.UpperMemoryKB())
		return
	}

	kfmt.Fprintf(w, "system memory map:\n")
	info.MultibootInfo.VisitMemRegions(func(region multiboot.MemoryMapEntry) bool {
		kfmt.Fprintf(w, "\t[0x%10x - 0x%10x], size: %10d, type: %s\n", region.PhysAddress, region.PhysAddress+region.Length, region.Length, region.Type.String())
		return true
	})
}
