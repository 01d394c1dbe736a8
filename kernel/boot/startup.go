// Package boot holds the facts and capabilities that the kernel entry point
// hands to every boot-time component.
package boot

import (
	"github.com/erynofwales/polka/kernel/hal/multiboot"
	"github.com/erynofwales/polka/kernel/mem"
)

// StartupInfo describes the boot-time facts passed by the boot trampoline.
// It is populated once at kernel entry and treated as read-only afterwards.
type StartupInfo struct {
	// The physical address of the first byte of the kernel image (4K-aligned).
	KernelStart uintptr

	// The physical address just past the end of the kernel image (4K-aligned).
	KernelEnd uintptr

	// The value the boot loader left in EAX.
	MultibootMagic uint32

	// The decoded boot information record.
	MultibootInfo multiboot.Info
}

// KernelSize returns the size of the kernel image.
func (s *StartupInfo) KernelSize() mem.Size {
	return mem.Size(s.KernelEnd - s.KernelStart)
}

// MemorySize returns the amount of physical memory that the memory subsystem
// manages: the first MiB plus the upper memory reported by the boot loader.
func (s *StartupInfo) MemorySize() mem.Size {
	return mem.LowMemoryEnd + mem.Size(s.MultibootInfo.UpperMemoryKB())*mem.Kb
}
