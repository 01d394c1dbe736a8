// Package mm brings up the boot-time memory subsystem: flat segmentation
// followed by the physical frame allocator.
package mm

import (
	"github.com/erynofwales/polka/kernel"
	"github.com/erynofwales/polka/kernel/boot"
	"github.com/erynofwales/polka/kernel/gdt"
	"github.com/erynofwales/polka/kernel/kfmt"
	"github.com/erynofwales/polka/kernel/mem/pmm/allocator"
)

var logPrefix = []byte("[mm] ")

// Manager owns the global descriptor table and the frame allocator.
type Manager struct {
	gdt    gdt.Table
	frames allocator.BitmapAllocator
	log    kfmt.PrefixWriter
}

// Init installs a flat memory model (a null descriptor plus ring 0 kernel
// code and data segments spanning 4G) and then initializes the frame
// allocator. The steps run in order and cannot be rolled back; an error
// from the frame allocator leaves the new descriptor table loaded.
func (m *Manager) Init(ctx *boot.Context, info *boot.StartupInfo) *kernel.Error {
	m.log = kfmt.PrefixWriter{Sink: ctx.Console, Prefix: logPrefix}

	m.gdt.SetNullDescriptor(gdt.NullIndex)
	m.gdt.SetDescriptor(gdt.KernelCodeIndex, gdt.KernelSegment(0, 0xFFFFFFFF, gdt.CodeEXR))
	m.gdt.SetDescriptor(gdt.KernelDataIndex, gdt.KernelSegment(0, 0xFFFFFFFF, gdt.DataRW))
	m.gdt.Load(ctx.CPU)
	kfmt.Fprintf(&m.log, "GDT loaded\n")

	if err := m.frames.Init(ctx, info); err != nil {
		return err
	}
	kfmt.Fprintf(&m.log, "frame allocator ready\n")

	return nil
}

// GDT returns the descriptor table installed by Init.
func (m *Manager) GDT() *gdt.Table {
	return &m.gdt
}

// Frames returns the frame allocator set up by Init.
func (m *Manager) Frames() *allocator.BitmapAllocator {
	return &m.frames
}
