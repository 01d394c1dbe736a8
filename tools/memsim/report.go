package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/erynofwales/polka/kernel/gdt"
	"github.com/erynofwales/polka/kernel/mem"
	"github.com/erynofwales/polka/kernel/mem/vmm"
)

// writeReport prints a summary of the simulation to w.
func writeReport(w io.Writer, sim *simulation) {
	var (
		s      = sim.scenario
		frames = sim.kernel.Memory.Frames()
		pages  = &sim.kernel.Pages
	)

	fmt.Fprintf(w, "memory size:     %s (%d frames)\n", humanize.IBytes(uint64(s.memorySize())), frames.FrameCount())
	fmt.Fprintf(w, "kernel image:    [0x%08x - 0x%08x) %s\n", s.kernelStart, s.kernelEnd, humanize.IBytes(uint64(s.kernelEnd-s.kernelStart)))
	fmt.Fprintf(w, "frame bitmap:    0x%08x, %s\n", frames.BitmapAddress(), humanize.IBytes(uint64(frames.BitmapSize())))
	fmt.Fprintf(w, "reserved frames: %d (%s)\n", frames.ReservedCount(), humanize.IBytes(uint64(frames.ReservedCount())*uint64(mem.PageSize)))
	fmt.Fprintf(w, "free frames:     %d (%s)\n", frames.FreeCount(), humanize.IBytes(uint64(frames.FreeCount())*uint64(mem.PageSize)))

	fmt.Fprintf(w, "GDT:\n")
	for index := 0; index < gdt.Size; index++ {
		fmt.Fprintf(w, "  [%d] 0x%016x\n", index, uint64(sim.kernel.Memory.GDT().Entry(index)))
	}

	if len(sim.port.GDTLoads) != 0 {
		load := sim.port.GDTLoads[len(sim.port.GDTLoads)-1]
		fmt.Fprintf(w, "  loaded with limit %d, cs=0x%02x, ds=0x%02x\n", load.Descriptor.Limit(), load.CodeSelector, load.DataSelector)
	}

	fmt.Fprintf(w, "page directory:  0x%08x\n", pages.Directory().Address())
	pde := pages.DirectoryEntry(0)
	fmt.Fprintf(w, "  entry 0:       0x%08x (table 0x%08x%s)\n", uint32(pde), pde.Frame().Address(), describeEntry(pde))

	fmt.Fprintf(w, "allocations:\n")
	for index, addr := range sim.allocations {
		fmt.Fprintf(w, "  #%d 0x%08x\n", index+1, addr)
	}
	if sim.exhausted {
		fmt.Fprintf(w, "  out of memory\n")
	}
}

func describeEntry(pte vmm.PageTableEntry) string {
	var desc string
	if pte.HasFlags(vmm.FlagPresent) {
		desc += ", present"
	}
	if pte.HasFlags(vmm.FlagRW) {
		desc += ", rw"
	}
	if pte.HasFlags(vmm.FlagUserAccessible) {
		desc += ", user"
	}
	return desc
}
