package gdt

import (
	"testing"
	"unsafe"

	"github.com/erynofwales/polka/kernel/cpu"
)

func TestEncodeKernelSegments(t *testing.T) {
	specs := []struct {
		seg Segment
		exp Descriptor
	}{
		{KernelSegment(0, 0xFFFFFFFF, CodeEXR), 0x00CF9A000000FFFF},
		{KernelSegment(0, 0xFFFFFFFF, DataRW), 0x00CF92000000FFFF},
		{Segment{}, 0},
		{
			Segment{Base: 0x12345678, Limit: 0xABCDE, Present: true, Privilege: Ring3, CodeData: true, Type: DataRWA},
			0x120AF3345678BCDE,
		},
		{
			// L and AVL are encoded independently
			Segment{Long: true, Present: true, CodeData: true, Type: CodeEXR},
			0x00209A0000000000,
		},
		{
			Segment{Available: true, Present: true, CodeData: true, Type: CodeEXR},
			0x00109A0000000000,
		},
	}

	for specIndex, spec := range specs {
		if got := spec.seg.Encode(); got != spec.exp {
			t.Errorf("[spec %d] expected descriptor 0x%016x; got 0x%016x", specIndex, uint64(spec.exp), uint64(got))
		}
	}
}

func TestDecode(t *testing.T) {
	specs := []Segment{
		KernelSegment(0, 0xFFFFF, CodeEXR),
		KernelSegment(0x00400000, 0x3FF, DataRW),
		{Base: 0xDEADBEEF, Limit: 0x12345, Long: true, Available: true, Present: true, Privilege: Ring2, Type: CodeEXRCA},
		{},
	}

	for specIndex, spec := range specs {
		if got := Decode(spec.Encode()); got != spec {
			t.Errorf("[spec %d] expected Decode to return %+v; got %+v", specIndex, spec, got)
		}
	}

	// Only 20 bits of the limit survive encoding
	if exp, got := uint32(0xFFFFF), Decode(KernelSegment(0, 0xFFFFFFFF, CodeEXR).Encode()).Limit; got != exp {
		t.Errorf("expected decoded limit 0x%x; got 0x%x", exp, got)
	}
}

func TestSelector(t *testing.T) {
	specs := []struct {
		index uint16
		rpl   DPL
		exp   uint16
	}{
		{0, Ring0, 0x00},
		{1, Ring0, 0x08},
		{2, Ring0, 0x10},
		{3, Ring3, 0x1b},
	}

	for specIndex, spec := range specs {
		if got := Selector(spec.index, spec.rpl); got != spec.exp {
			t.Errorf("[spec %d] expected selector 0x%x; got 0x%x", specIndex, spec.exp, got)
		}
	}

	if KernelCodeSelector != 0x08 || KernelDataSelector != 0x10 {
		t.Errorf("expected kernel selectors 0x08/0x10; got 0x%x/0x%x", KernelCodeSelector, KernelDataSelector)
	}
}

func TestTableBounds(t *testing.T) {
	var table Table

	code := KernelSegment(0, 0xFFFFFFFF, CodeEXR)
	table.SetDescriptor(KernelCodeIndex, code)

	// Out of range writes are ignored
	table.SetDescriptor(-1, code)
	table.SetDescriptor(Size, code)
	table.SetNullDescriptor(Size + 10)

	for index := 0; index < Size; index++ {
		exp := Descriptor(0)
		if index == KernelCodeIndex {
			exp = 0x00CF9A000000FFFF
		}

		if got := table.Entry(index); got != exp {
			t.Errorf("expected entry %d to be 0x%x; got 0x%x", index, uint64(exp), uint64(got))
		}
	}

	if got := table.Entry(Size); got != 0 {
		t.Errorf("expected out of range Entry to return 0; got 0x%x", uint64(got))
	}

	table.SetNullDescriptor(KernelCodeIndex)
	if got := table.Entry(KernelCodeIndex); got != 0 {
		t.Errorf("expected entry to be cleared; got 0x%x", uint64(got))
	}
}

func TestTableLoad(t *testing.T) {
	var (
		table Table
		port  cpu.Recorder
	)

	table.SetNullDescriptor(NullIndex)
	table.SetDescriptor(KernelCodeIndex, KernelSegment(0, 0xFFFFFFFF, CodeEXR))
	table.SetDescriptor(KernelDataIndex, KernelSegment(0, 0xFFFFFFFF, DataRW))
	table.Load(&port)

	if len(port.GDTLoads) != 1 {
		t.Fatalf("expected LoadGDT to be called once; got %d", len(port.GDTLoads))
	}

	load := port.GDTLoads[0]
	if exp, got := uint16(39), load.Descriptor.Limit(); got != exp {
		t.Errorf("expected pseudo-descriptor limit %d; got %d", exp, got)
	}

	if exp, got := uint32(uintptr(unsafe.Pointer(&table.entries[0]))), load.Descriptor.Base(); got != exp {
		t.Errorf("expected pseudo-descriptor base 0x%x; got 0x%x", exp, got)
	}

	if load.CodeSelector != 0x08 || load.DataSelector != 0x10 {
		t.Errorf("expected selectors 0x08/0x10; got 0x%x/0x%x", load.CodeSelector, load.DataSelector)
	}
}

// inertPort discards every request without recording it.
type inertPort struct{}

func (inertPort) LoadGDT(*cpu.PseudoDescriptor, uint16, uint16) {}
func (inertPort) EnableInterrupts()                             {}
func (inertPort) DisableInterrupts()                            {}
func (inertPort) SaveAndDisableInterrupts() bool                { return false }
func (inertPort) Halt()                                         {}

func TestTableLoadDoesNotAllocate(t *testing.T) {
	var table Table
	table.SetDescriptor(KernelCodeIndex, KernelSegment(0, 0xFFFFFFFF, CodeEXR))
	table.SetDescriptor(KernelDataIndex, KernelSegment(0, 0xFFFFFFFF, DataRW))

	allocs := testing.AllocsPerRun(100, func() {
		table.Load(inertPort{})
	})

	if allocs != 0 {
		t.Fatalf("expected Load not to allocate; got %v allocations per run", allocs)
	}
}
