// Package multiboot decodes the boot information record that a multiboot
// (version 1) compliant boot loader leaves for the kernel.
package multiboot

import (
	"encoding/binary"

	"github.com/erynofwales/polka/kernel"
	"github.com/erynofwales/polka/kernel/mem"
)

// Magic is the value a multiboot compliant boot loader stores in EAX before
// jumping to the kernel entry point.
const Magic = uint32(0x2BADB002)

// ValidMagic returns true if magic matches the multiboot boot loader magic.
func ValidMagic(magic uint32) bool {
	return magic == Magic
}

// infoFlag marks the presence of a group of fields in the info record.
type infoFlag uint32

// nolint
const (
	flagMemory infoFlag = 1 << iota
	flagBootDevice
	flagCmdLine
	flagModules
	flagAoutSymbols
	flagElfSymbols
	flagMemoryMap
	flagDrives
	flagConfigTable
	flagBootLoaderName
	flagApmTable
	flagVbe
)

// Byte offsets of the fields within the packed, little-endian info record.
const (
	offFlags          = 0
	offMemLower       = 4
	offMemUpper       = 8
	offBootDevice     = 12
	offCmdLine        = 16
	offModsCount      = 20
	offModsAddr       = 24
	offSymbols        = 28
	offMmapLength     = 44
	offMmapAddr       = 48
	offDrivesLength   = 52
	offDrivesAddr     = 56
	offConfigTable    = 60
	offBootLoaderName = 64
	offApmTable       = 68

	// infoSize covers every field up to and including the VBE block.
	infoSize = 88

	// mmapEntrySize is the size of the visible part of a memory map
	// entry: base (u64), length (u64) and type (u32).
	mmapEntrySize = 20

	// maxStringLen bounds the scan for the NUL terminator of strings
	// referenced by the record.
	maxStringLen = 4096
)

var (
	errInfoUnreadable = &kernel.Error{Module: "multiboot", Message: "boot information record is not accessible"}
)

// MemoryEntryType defines the type of a MemoryMapEntry.
type MemoryEntryType uint32

const (
	// MemAvailable indicates that the memory region is available for use.
	MemAvailable MemoryEntryType = iota + 1

	// MemReserved indicates that the memory region is not available for use.
	MemReserved

	// MemAcpiReclaimable indicates a memory region that holds ACPI info that
	// can be reused by the OS.
	MemAcpiReclaimable

	// MemNvs indicates memory that must be preserved when hibernating.
	MemNvs

	// MemBadRAM indicates memory that is occupied by defective RAM modules.
	MemBadRAM

	// Any value >= memUnknown will be mapped to MemReserved.
	memUnknown
)

// String implements fmt.Stringer for MemoryEntryType.
func (t MemoryEntryType) String() string {
	switch t {
	case MemAvailable:
		return "available"
	case MemReserved:
		return "reserved"
	case MemAcpiReclaimable:
		return "ACPI (reclaimable)"
	case MemNvs:
		return "NVS"
	case MemBadRAM:
		return "bad RAM"
	default:
		return "unknown"
	}
}

// MemoryMapEntry describes a memory region entry, namely its physical address,
// its length and its type.
type MemoryMapEntry struct {
	// The physical address for this memory region.
	PhysAddress uint64

	// The length of the memory region.
	Length uint64

	// The type of this entry.
	Type MemoryEntryType
}

// MemRegionVisitor defines a visitor function that gets invoked by
// VisitMemRegions for each memory region provided by the boot loader. The
// visitor must return true to continue or false to abort the scan.
type MemRegionVisitor func(MemoryMapEntry) bool

// Info provides access to a boot information record that lives in physical
// memory. Fields whose presence flag is not set read as zero values.
type Info struct {
	physMem mem.PhysicalMemory
	addr    uintptr
	raw     []byte
}

// Load returns an Info for the record stored at infoPtr.
func Load(physMem mem.PhysicalMemory, infoPtr uintptr) (Info, *kernel.Error) {
	raw := physMem.Bytes(infoPtr, infoSize)
	if raw == nil {
		return Info{}, errInfoUnreadable
	}

	return Info{physMem: physMem, addr: infoPtr, raw: raw}, nil
}

// Address returns the physical address of the record.
func (i Info) Address() uintptr {
	return i.addr
}

// Flags returns the raw presence bitfield.
func (i Info) Flags() uint32 {
	return i.field(offFlags)
}

func (i Info) has(f infoFlag) bool {
	return i.raw != nil && infoFlag(i.Flags())&f != 0
}

func (i Info) field(offset int) uint32 {
	if i.raw == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(i.raw[offset : offset+4])
}

// LowerMemoryKB returns the amount of memory below 1 MiB in KiB.
func (i Info) LowerMemoryKB() uint32 {
	if !i.has(flagMemory) {
		return 0
	}
	return i.field(offMemLower)
}

// UpperMemoryKB returns the amount of memory starting at 1 MiB in KiB, up to
// the first memory hole.
func (i Info) UpperMemoryKB() uint32 {
	if !i.has(flagMemory) {
		return 0
	}
	return i.field(offMemUpper)
}

// CommandLine returns the kernel command line passed by the boot loader or
// nil if none was supplied. The returned slice aliases physical memory.
func (i Info) CommandLine() []byte {
	if !i.has(flagCmdLine) {
		return nil
	}
	return i.cString(uintptr(i.field(offCmdLine)))
}

// BootLoaderName returns the name of the boot loader or nil if it was not
// supplied. The returned slice aliases physical memory.
func (i Info) BootLoaderName() []byte {
	if !i.has(flagBootLoaderName) {
		return nil
	}
	return i.cString(uintptr(i.field(offBootLoaderName)))
}

// cString returns the bytes of the NUL-terminated string at addr.
func (i Info) cString(addr uintptr) []byte {
	var n uintptr
	for ; n < maxStringLen; n++ {
		b := i.physMem.Bytes(addr+n, 1)
		if b == nil || b[0] == 0 {
			break
		}
	}

	if n == 0 {
		return nil
	}
	return i.physMem.Bytes(addr, mem.Size(n))
}

// Overlaps returns true if the physical range [addr, addr+size) intersects
// the info record itself or the memory map buffer it references.
func (i Info) Overlaps(addr uintptr, size mem.Size) bool {
	if i.raw == nil {
		return false
	}

	if rangesOverlap(addr, size, i.addr, infoSize) {
		return true
	}

	return i.has(flagMemoryMap) &&
		rangesOverlap(addr, size, uintptr(i.field(offMmapAddr)), mem.Size(i.field(offMmapLength)))
}

func rangesOverlap(aStart uintptr, aSize mem.Size, bStart uintptr, bSize mem.Size) bool {
	if aSize == 0 || bSize == 0 {
		return false
	}

	aEnd := uint64(aStart) + uint64(aSize)
	bEnd := uint64(bStart) + uint64(bSize)
	return uint64(aStart) < bEnd && uint64(bStart) < aEnd
}

// HasMemoryMap returns true if the boot loader supplied a memory map.
func (i Info) HasMemoryMap() bool {
	return i.has(flagMemoryMap)
}

// VisitMemRegions invokes visitor for each memory map entry supplied by the
// boot loader. Each entry is preceded by a 32-bit size field that sits 4
// bytes before the entry's base address field; the next entry starts size
// bytes after that base field. Entries with an unknown type are reported as
// MemReserved.
func (i Info) VisitMemRegions(visitor MemRegionVisitor) {
	if !i.has(flagMemoryMap) {
		return
	}

	var (
		mapStart = uintptr(i.field(offMmapAddr))
		mapEnd   = mapStart + uintptr(i.field(offMmapLength))
		entry    MemoryMapEntry
	)

	for entryAddr := mapStart + 4; entryAddr-4 < mapEnd; {
		sizeField := i.physMem.Bytes(entryAddr-4, 4)
		if sizeField == nil {
			return
		}

		size := uintptr(binary.LittleEndian.Uint32(sizeField))
		payload := i.physMem.Bytes(entryAddr, mmapEntrySize)
		if size < mmapEntrySize || payload == nil {
			return
		}

		entry.PhysAddress = binary.LittleEndian.Uint64(payload[0:8])
		entry.Length = binary.LittleEndian.Uint64(payload[8:16])
		entry.Type = MemoryEntryType(binary.LittleEndian.Uint32(payload[16:20]))
		if entry.Type == 0 || entry.Type >= memUnknown {
			entry.Type = MemReserved
		}

		if !visitor(entry) {
			return
		}

		entryAddr += size + 4
	}
}
