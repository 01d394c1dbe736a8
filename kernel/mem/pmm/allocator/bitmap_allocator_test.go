package allocator

import (
	"bytes"
	"math/rand"
	"testing"
	"unsafe"

	"github.com/erynofwales/polka/kernel"
	"github.com/erynofwales/polka/kernel/bitmap"
	"github.com/erynofwales/polka/kernel/boot"
	"github.com/erynofwales/polka/kernel/cpu"
	"github.com/erynofwales/polka/kernel/hal/multiboot"
	"github.com/erynofwales/polka/kernel/mem"
	"github.com/erynofwales/polka/kernel/mem/pmm"
)

const (
	testKernelStart = 0x100000
	testKernelEnd   = 0x120000
	testInfoAddr    = 0x1000
)

// setupBoot builds a simulated machine whose boot loader reports upperKB of
// upper memory and the supplied memory map.
func setupBoot(t *testing.T, upperKB uint32, memMap []multiboot.MemoryMapEntry) (mem.SliceMemory, *boot.Context, *boot.StartupInfo, *bytes.Buffer) {
	return setupBootAt(t, testInfoAddr, upperKB, memMap)
}

// setupBootAt is like setupBoot but stores the boot information record at
// infoAddr.
func setupBootAt(t *testing.T, infoAddr uintptr, upperKB uint32, memMap []multiboot.MemoryMapEntry) (mem.SliceMemory, *boot.Context, *boot.StartupInfo, *bytes.Buffer) {
	physMem := make(mem.SliceMemory, mem.LowMemoryEnd+mem.Size(upperKB)*mem.Kb)

	rec := &multiboot.Record{LowerMemoryKB: 639, UpperMemoryKB: upperKB, MemoryMap: memMap}
	if err := rec.Encode(physMem, infoAddr); err != nil {
		t.Fatal(err)
	}

	info, err := multiboot.Load(physMem, infoAddr)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	ctx := &boot.Context{Console: &buf, CPU: &cpu.Recorder{}, Memory: physMem}
	si := &boot.StartupInfo{
		KernelStart:    testKernelStart,
		KernelEnd:      testKernelEnd,
		MultibootMagic: multiboot.Magic,
		MultibootInfo:  info,
	}

	return physMem, ctx, si, &buf
}

// newBareAllocator returns an allocator tracking frameCount frames with an
// all-clear bitmap.
func newBareAllocator(frameCount uint32) *BitmapAllocator {
	storage := make([]byte, (frameCount+bitmap.CellBits-1)/bitmap.CellBits)
	return &BitmapAllocator{
		frameCount: frameCount,
		bitmap:     unsafe.Slice((*bitmap.Cell)(unsafe.Pointer(&storage[0])), len(storage)),
	}
}

func TestInit(t *testing.T) {
	physMem, ctx, si, _ := setupBoot(t, 8192, nil)

	// Fill the bitmap location with junk; Init must clear it.
	for i := uintptr(testKernelEnd); i < testKernelEnd+uintptr(mem.PageSize); i++ {
		physMem[i] = 0xaa
	}

	var alloc BitmapAllocator
	if err := alloc.Init(ctx, si); err != nil {
		t.Fatal(err)
	}

	if exp, got := uint32(2304), alloc.FrameCount(); got != exp {
		t.Errorf("expected FrameCount() to return %d; got %d", exp, got)
	}

	if exp, got := mem.Size(288), alloc.BitmapSize(); got != exp {
		t.Errorf("expected BitmapSize() to return %d; got %d", exp, got)
	}

	if exp, got := uintptr(testKernelEnd), alloc.BitmapAddress(); got != exp {
		t.Errorf("expected BitmapAddress() to return 0x%x; got 0x%x", exp, got)
	}

	// The first MiB, the kernel image and the page holding the bitmap
	// (frames 0 to 288) are reserved.
	if exp, got := uint32(289), alloc.ReservedCount(); got != exp {
		t.Errorf("expected ReservedCount() to return %d; got %d", exp, got)
	}

	if exp, got := uint32(2304-289), alloc.FreeCount(); got != exp {
		t.Errorf("expected FreeCount() to return %d; got %d", exp, got)
	}

	for frame := pmm.Frame(0); frame < 2304; frame++ {
		if exp, got := frame <= 288, alloc.IsReserved(frame); got != exp {
			t.Fatalf("expected IsReserved(%d) to return %t; got %t", frame, exp, got)
		}
	}

	// The bitmap lives in simulated physical memory
	if got := physMem[testKernelEnd+35]; got != 0xff {
		t.Errorf("expected bitmap cell 35 to be 0xff; got 0x%x", got)
	}
	if got := physMem[testKernelEnd+36]; got != 0x01 {
		t.Errorf("expected bitmap cell 36 to be 0x01; got 0x%x", got)
	}
	if got := physMem[testKernelEnd+287]; got != 0 {
		t.Errorf("expected bitmap cell 287 to be cleared; got 0x%x", got)
	}
	if got := physMem[testKernelEnd+288]; got != 0xaa {
		t.Errorf("expected Init not to touch memory past the bitmap; got 0x%x", got)
	}
}

func TestInitAllocationOrder(t *testing.T) {
	_, ctx, si, _ := setupBoot(t, 8192, nil)

	var alloc BitmapAllocator
	if err := alloc.Init(ctx, si); err != nil {
		t.Fatal(err)
	}

	frame, err := alloc.AllocFrame()
	if err != nil {
		t.Fatal(err)
	}

	if exp, got := uintptr(0x121000), frame.Address(); got != exp {
		t.Fatalf("expected first allocation to return 0x%x; got 0x%x", exp, got)
	}

	// Frames are handed out in ascending order; 0x200000 is the 224th.
	for allocCount := 2; allocCount <= 224; allocCount++ {
		if frame, err = alloc.AllocFrame(); err != nil {
			t.Fatal(err)
		}
	}

	if exp, got := uintptr(0x200000), frame.Address(); got != exp {
		t.Fatalf("expected 224th allocation to return 0x%x; got 0x%x", exp, got)
	}

	if exp, got := uint32(289+224), alloc.ReservedCount(); got != exp {
		t.Fatalf("expected ReservedCount() to return %d; got %d", exp, got)
	}
}

func TestInitMemoryMap(t *testing.T) {
	_, ctx, si, buf := setupBoot(t, 8192, []multiboot.MemoryMapEntry{
		{PhysAddress: 0, Length: 0x9fc00, Type: multiboot.MemAvailable},
		{PhysAddress: 0x9fc00, Length: 0x400, Type: multiboot.MemReserved},
		{PhysAddress: 0x100000, Length: 0x200000, Type: multiboot.MemAvailable},
		{PhysAddress: 0x300000, Length: 0x1800, Type: multiboot.MemNvs},
		{PhysAddress: 0x301800, Length: 0x5fe800, Type: multiboot.MemAvailable},
		{PhysAddress: 0xfffc0000, Length: 0x40000, Type: multiboot.MemReserved},
	})

	var alloc BitmapAllocator
	if err := alloc.Init(ctx, si); err != nil {
		t.Fatal(err)
	}

	for _, frame := range []pmm.Frame{0x300, 0x301} {
		if !alloc.IsReserved(frame) {
			t.Errorf("expected frame 0x%x to be reserved", frame)
		}
	}

	if alloc.IsReserved(0x302) {
		t.Error("expected frame 0x302 to be free")
	}

	if exp, got := uint32(289+2), alloc.ReservedCount(); got != exp {
		t.Errorf("expected ReservedCount() to return %d; got %d", exp, got)
	}

	if !bytes.Contains(buf.Bytes(), []byte("[frame_alloc] system memory map:\n")) {
		t.Errorf("expected memory map to be logged; got:\n%s", buf.String())
	}
}

func TestInitErrors(t *testing.T) {
	_, ctx, si, _ := setupBoot(t, 64, nil)

	// The kernel ends past the simulated memory.
	si.KernelStart = 0x200000
	si.KernelEnd = 0x400000

	var alloc BitmapAllocator
	if err := alloc.Init(ctx, si); err != errBitmapUnavailable {
		t.Fatalf("expected errBitmapUnavailable; got %v", err)
	}

	if _, err := alloc.AllocFrame(); err != errOutOfMemory {
		t.Fatalf("expected errOutOfMemory; got %v", err)
	}
}

func TestInitBootInfoOverlap(t *testing.T) {
	memMap := []multiboot.MemoryMapEntry{
		{PhysAddress: 0, Length: 0x9fc00, Type: multiboot.MemAvailable},
		{PhysAddress: 0x100000, Length: 0x200000, Type: multiboot.MemAvailable},
		{PhysAddress: 0x300000, Length: 0x1000, Type: multiboot.MemReserved},
		{PhysAddress: 0x301000, Length: 0x5ff000, Type: multiboot.MemAvailable},
	}

	specs := []struct {
		infoAddr uintptr
		expErr   *kernel.Error
	}{
		// record stored where the bitmap goes
		{testKernelEnd, errBitmapOverlapsBoot},
		// only the memory map buffer reaches into the bitmap
		{testKernelEnd - 0x60, errBitmapOverlapsBoot},
		// record right after the 288-byte bitmap
		{testKernelEnd + 0x120, nil},
		{testInfoAddr, nil},
	}

	for specIndex, spec := range specs {
		_, ctx, si, _ := setupBootAt(t, spec.infoAddr, 8192, memMap)

		var alloc BitmapAllocator
		if err := alloc.Init(ctx, si); err != spec.expErr {
			t.Errorf("[spec %d] expected Init to return %v; got %v", specIndex, spec.expErr, err)
			continue
		}

		if spec.expErr != nil {
			if _, err := alloc.AllocFrame(); err != errOutOfMemory {
				t.Errorf("[spec %d] expected AllocFrame to fail after a failed Init; got %v", specIndex, err)
			}
			continue
		}

		if !alloc.IsReserved(0x300) {
			t.Errorf("[spec %d] expected frame 0x300 from the memory map to be reserved", specIndex)
		}
	}
}

func TestLockMasksInterrupts(t *testing.T) {
	specs := []struct {
		enabled  bool
		expCalls []string
	}{
		{true, []string{"SaveAndDisableInterrupts", "EnableInterrupts"}},
		{false, []string{"SaveAndDisableInterrupts"}},
	}

	for specIndex, spec := range specs {
		port := &cpu.Recorder{InterruptsEnabled: spec.enabled}
		alloc := newBareAllocator(16)
		alloc.cpu = port

		for _, op := range []func(){
			func() { alloc.AllocFrame() },
			func() { alloc.ReserveRange(0x4000, 0x1000) },
		} {
			port.Calls = nil
			op()

			if len(port.Calls) != len(spec.expCalls) {
				t.Errorf("[spec %d] expected calls %v; got %v", specIndex, spec.expCalls, port.Calls)
				continue
			}
			for i, exp := range spec.expCalls {
				if port.Calls[i] != exp {
					t.Errorf("[spec %d] expected call %d to be %s; got %s", specIndex, i, exp, port.Calls[i])
				}
			}

			if port.InterruptsEnabled != spec.enabled {
				t.Errorf("[spec %d] expected the interrupt flag to be restored to %t", specIndex, spec.enabled)
			}
		}
	}

	// The bitmap is updated while interrupts are masked.
	port := &cpu.Recorder{InterruptsEnabled: true}
	alloc := newBareAllocator(16)
	alloc.cpu = &maskCheckPort{Recorder: port, t: t, alloc: alloc}
	alloc.AllocFrame()
}

// maskCheckPort fails the test if interrupts are re-enabled before the
// allocator has recorded its update.
type maskCheckPort struct {
	*cpu.Recorder
	t     *testing.T
	alloc *BitmapAllocator
}

func (p *maskCheckPort) EnableInterrupts() {
	if p.alloc.ReservedCount() != 1 {
		p.t.Error("expected the frame to be reserved before interrupts are re-enabled")
	}
	p.Recorder.EnableInterrupts()
}

func TestReserveRegionPastAddressSpace(t *testing.T) {
	specs := []struct {
		start, length uint64
		expReserved   uint32
	}{
		{0x4000, ^uint64(0), 28},
		{^uint64(0) - 0x1000, 0x2000, 0},
		{0, ^uint64(0), 32},
	}

	for specIndex, spec := range specs {
		alloc := newBareAllocator(32)
		alloc.reserveRegion(spec.start, spec.length)

		if got := alloc.ReservedCount(); got != spec.expReserved {
			t.Errorf("[spec %d] expected ReservedCount() to return %d; got %d", specIndex, spec.expReserved, got)
		}
	}
}

func TestReserveRange(t *testing.T) {
	specs := []struct {
		start  uintptr
		length mem.Size
		exp    []pmm.Frame
	}{
		// zero length
		{0x1000, 0, nil},
		// a single page
		{0x1000, 0x1000, []pmm.Frame{1}},
		// unaligned start and end widen to page boundaries
		{0x1800, 0x1000, []pmm.Frame{1, 2}},
		{0x1fff, 2, []pmm.Frame{1, 2}},
		// partial head cell, full cell and partial tail cell
		{0x6000, 0xc000, []pmm.Frame{6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17}},
		// frames past the end of memory are ignored
		{0x1e000, 0x10000, []pmm.Frame{30, 31}},
		// range entirely past the end of memory
		{0x100000, 0x1000, nil},
	}

	for specIndex, spec := range specs {
		alloc := newBareAllocator(32)
		alloc.ReserveRange(spec.start, spec.length)

		expReserved := make(map[pmm.Frame]bool)
		for _, frame := range spec.exp {
			expReserved[frame] = true
		}

		for frame := pmm.Frame(0); frame < 32; frame++ {
			if exp, got := expReserved[frame], alloc.IsReserved(frame); got != exp {
				t.Errorf("[spec %d] expected IsReserved(%d) to return %t; got %t", specIndex, frame, exp, got)
			}
		}

		if exp, got := uint32(len(spec.exp)), alloc.ReservedCount(); got != exp {
			t.Errorf("[spec %d] expected ReservedCount() to return %d; got %d", specIndex, exp, got)
		}
	}
}

func TestReserveRangeIdempotent(t *testing.T) {
	alloc := newBareAllocator(64)
	alloc.ReserveRange(0x3000, 0x8000)
	alloc.ReserveRange(0, 0x10000)

	if exp, got := uint32(16), alloc.ReservedCount(); got != exp {
		t.Fatalf("expected ReservedCount() to return %d; got %d", exp, got)
	}
}

func TestAllocFrameExhaustion(t *testing.T) {
	// 20 frames do not fill the last cell
	alloc := newBareAllocator(20)
	alloc.ReserveRange(0x2000, 0x1000)

	seen := make(map[pmm.Frame]bool)
	for i := 0; i < 19; i++ {
		frame, err := alloc.AllocFrame()
		if err != nil {
			t.Fatalf("[alloc %d] unexpected error: %v", i, err)
		}

		if frame == 2 {
			t.Fatalf("[alloc %d] allocator returned reserved frame", i)
		}

		if seen[frame] {
			t.Fatalf("[alloc %d] frame %d returned twice", i, frame)
		}
		seen[frame] = true
	}

	for i := 0; i < 3; i++ {
		frame, err := alloc.AllocFrame()
		if err != errOutOfMemory {
			t.Fatalf("expected errOutOfMemory; got %v", err)
		}

		if frame != pmm.InvalidFrame {
			t.Fatalf("expected pmm.InvalidFrame; got %d", frame)
		}
	}

	if alloc.FreeCount() != 0 {
		t.Fatalf("expected FreeCount() to return 0; got %d", alloc.FreeCount())
	}
}

func TestAllocFrameNeverReturnsReservedFrames(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		frameCount := uint32(1 + rng.Intn(256))
		alloc := newBareAllocator(frameCount)

		reserved := make(map[pmm.Frame]bool)
		for i := 0; i < 4; i++ {
			start := uintptr(rng.Intn(int(frameCount))) << mem.PageShift
			length := mem.Size(rng.Intn(8 * int(mem.PageSize)))
			alloc.ReserveRange(start, length)

			for frame := pmm.Frame(0); frame < pmm.Frame(frameCount); frame++ {
				if alloc.IsReserved(frame) {
					reserved[frame] = true
				}
			}
		}

		for {
			frame, err := alloc.AllocFrame()
			if err != nil {
				break
			}

			if reserved[frame] {
				t.Fatalf("[round %d] allocator returned reserved frame %d", round, frame)
			}
			reserved[frame] = true
		}

		if uint32(len(reserved)) != frameCount {
			t.Fatalf("[round %d] expected every frame to be reserved after exhaustion; got %d/%d", round, len(reserved), frameCount)
		}
	}
}

func TestIsReservedOutOfRange(t *testing.T) {
	alloc := newBareAllocator(16)

	for _, frame := range []pmm.Frame{16, 1000, pmm.InvalidFrame} {
		if !alloc.IsReserved(frame) {
			t.Errorf("expected IsReserved(%d) to return true", frame)
		}
	}
}

func TestPrintStats(t *testing.T) {
	alloc := newBareAllocator(16)
	alloc.ReserveRange(0, 0x4000)

	var buf bytes.Buffer
	alloc.PrintStats(&buf)

	exp := "[frame_alloc] frames: 16 total, 4 reserved, 12 free (48Kb)\n"
	if got := buf.String(); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}
}
