// Package kmain contains the kernel entry point.
package kmain

import (
	"github.com/erynofwales/polka/kernel"
	"github.com/erynofwales/polka/kernel/boot"
	"github.com/erynofwales/polka/kernel/cpu"
	"github.com/erynofwales/polka/kernel/driver/console"
	"github.com/erynofwales/polka/kernel/hal/multiboot"
	"github.com/erynofwales/polka/kernel/kfmt"
	"github.com/erynofwales/polka/kernel/mem"
	"github.com/erynofwales/polka/kernel/mem/vmm"
	"github.com/erynofwales/polka/kernel/mm"
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
	errBadMagic      = &kernel.Error{Module: "kmain", Message: "not loaded by a multiboot compliant boot loader"}

	logPrefix = []byte("[kmain] ")

	// Statically allocated kernel state; the Go allocator is not
	// available at this point.
	earlyConsole kfmt.Console
	ega          console.Ega
	terminal     console.Terminal
	polka        Kernel
	bootCtx      boot.Context
	startupInfo  boot.StartupInfo
)

// Kernel holds the state of the boot-time memory subsystem.
type Kernel struct {
	// Memory sets up segmentation and owns the frame allocator.
	Memory mm.Manager

	// Pages owns the kernel page directory.
	Pages vmm.PageAllocator

	log kfmt.PrefixWriter
}

// Boot verifies that the kernel was loaded by a multiboot boot loader, runs
// the memory manager and then builds the kernel page directory with the
// kernel image and frame bitmap identity mapped. Paging is not enabled.
func (k *Kernel) Boot(ctx *boot.Context, info *boot.StartupInfo) *kernel.Error {
	k.log = kfmt.PrefixWriter{Sink: ctx.Console, Prefix: logPrefix}

	if !multiboot.ValidMagic(info.MultibootMagic) {
		return errBadMagic
	}

	kfmt.Fprintf(&k.log, "kernel image: [%p - %p], %d bytes\n", info.KernelStart, info.KernelEnd, uint64(info.KernelSize()))
	if name := info.MultibootInfo.BootLoaderName(); name != nil {
		kfmt.Fprintf(&k.log, "boot loader: %s\n", name)
	}
	if cmdLine := info.MultibootInfo.CommandLine(); cmdLine != nil {
		kfmt.Fprintf(&k.log, "command line: %s\n", cmdLine)
	}
	kfmt.Fprintf(&k.log, "memory: %dKb\n", uint64(info.MemorySize()/mem.Kb))

	if err := k.Memory.Init(ctx, info); err != nil {
		return err
	}

	frames := k.Memory.Frames()
	if err := k.Pages.Init(ctx, frames); err != nil {
		return err
	}

	mappedSize := mem.Size(frames.BitmapAddress()-info.KernelStart) + frames.BitmapSize()
	if err := k.Pages.IdentityMapRange(info.KernelStart, mappedSize, vmm.FlagRW); err != nil {
		return err
	}

	frames.PrintStats(ctx.Console)
	return nil
}

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. This function is invoked by the rt0 assembly code
// after setting up a minimal g0 struct that allows Go code using the 4K
// stack allocated by the assembly code.
//
// The rt0 code passes the magic value and info record pointer left by the
// boot loader as well as the physical addresses for the kernel start/end.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(multibootMagic uint32, multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	bootCtx = boot.Context{
		Console: &earlyConsole,
		CPU:     cpu.Native(),
		Memory:  mem.IdentityMapped{},
	}
	ctx := &bootCtx

	if err := ega.Init(ctx.Memory, console.EgaWidth, console.EgaHeight, console.EgaFramebuffer); err == nil {
		terminal.AttachTo(&ega)
		earlyConsole.SetSink(&terminal)
	}

	info, err := multiboot.Load(ctx.Memory, multibootInfoPtr)
	if err != nil {
		ctx.Panic(err)
		return
	}

	startupInfo = boot.StartupInfo{
		KernelStart:    kernelStart,
		KernelEnd:      kernelEnd,
		MultibootMagic: multibootMagic,
		MultibootInfo:  info,
	}

	if err = polka.Boot(ctx, &startupInfo); err != nil {
		ctx.Panic(err)
		return
	}

	// Use ctx.Panic instead of panic to prevent the compiler from
	// treating it as dead-code and eliminating it.
	ctx.Panic(errKmainReturned)
}
