package multiboot

import (
	"encoding/binary"

	"github.com/erynofwales/polka/kernel"
	"github.com/erynofwales/polka/kernel/mem"
)

var (
	errRecordTooLarge = &kernel.Error{Module: "multiboot", Message: "boot information record does not fit in physical memory"}
)

// Record describes the contents of a boot information record. It is used by
// host-side tooling to synthesize the record a boot loader would produce.
type Record struct {
	LowerMemoryKB  uint32
	UpperMemoryKB  uint32
	CommandLine    string
	BootLoaderName string
	MemoryMap      []MemoryMapEntry
}

// Size returns the number of bytes needed to encode the record along with
// the strings and memory map it references.
func (r *Record) Size() mem.Size {
	size := uintptr(infoSize)
	if r.CommandLine != "" {
		size += uintptr(len(r.CommandLine)) + 1
	}
	if r.BootLoaderName != "" {
		size += uintptr(len(r.BootLoaderName)) + 1
	}
	size = (size + 3) &^ 3
	size += uintptr(len(r.MemoryMap)) * (mmapEntrySize + 4)
	return mem.Size(size)
}

// Encode writes the record to physical memory starting at addr. The info
// block comes first, followed by the strings and the 4-byte aligned memory
// map.
func (r *Record) Encode(physMem mem.PhysicalMemory, addr uintptr) *kernel.Error {
	buf := physMem.Bytes(addr, r.Size())
	if buf == nil {
		return errRecordTooLarge
	}
	mem.Memset(buf, 0)

	var (
		flags  infoFlag
		cursor = uintptr(infoSize)
		le     = binary.LittleEndian
	)

	if r.LowerMemoryKB != 0 || r.UpperMemoryKB != 0 {
		flags |= flagMemory
		le.PutUint32(buf[offMemLower:], r.LowerMemoryKB)
		le.PutUint32(buf[offMemUpper:], r.UpperMemoryKB)
	}

	if r.CommandLine != "" {
		flags |= flagCmdLine
		le.PutUint32(buf[offCmdLine:], uint32(addr+cursor))
		cursor += uintptr(copy(buf[cursor:], r.CommandLine)) + 1
	}

	if r.BootLoaderName != "" {
		flags |= flagBootLoaderName
		le.PutUint32(buf[offBootLoaderName:], uint32(addr+cursor))
		cursor += uintptr(copy(buf[cursor:], r.BootLoaderName)) + 1
	}

	cursor = (cursor + 3) &^ 3
	if len(r.MemoryMap) != 0 {
		flags |= flagMemoryMap
		le.PutUint32(buf[offMmapAddr:], uint32(addr+cursor))
		le.PutUint32(buf[offMmapLength:], uint32(len(r.MemoryMap)*(mmapEntrySize+4)))

		for _, entry := range r.MemoryMap {
			le.PutUint32(buf[cursor:], mmapEntrySize)
			le.PutUint64(buf[cursor+4:], entry.PhysAddress)
			le.PutUint64(buf[cursor+12:], entry.Length)
			le.PutUint32(buf[cursor+20:], uint32(entry.Type))
			cursor += mmapEntrySize + 4
		}
	}

	le.PutUint32(buf[offFlags:], uint32(flags))
	return nil
}
