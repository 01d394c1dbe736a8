package main

import (
	"bytes"

	"github.com/erynofwales/polka/kernel/boot"
	"github.com/erynofwales/polka/kernel/cpu"
	"github.com/erynofwales/polka/kernel/hal/multiboot"
	"github.com/erynofwales/polka/kernel/kmain"
	"github.com/erynofwales/polka/kernel/mem"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// recordAddr is where the simulated boot loader stores the info record. It
// lies in conventional memory below the EBDA like real boot loaders do.
const recordAddr = uintptr(0x10000)

// simulation is the outcome of booting the memory subsystem against
// simulated physical memory.
type simulation struct {
	scenario *scenario
	physMem  mem.SliceMemory
	port     *cpu.Recorder
	kernel   *kmain.Kernel

	// allocations holds the addresses returned by the post-boot
	// allocations.
	allocations []uintptr

	// exhausted is set when an allocation failed.
	exhausted bool
}

// logWriter forwards each complete line written to it to a logrus entry.
type logWriter struct {
	entry *logrus.Entry
	buf   bytes.Buffer
}

// Write implements io.Writer.
func (w *logWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)

	for {
		line, err := w.buf.ReadBytes('\n')
		if err != nil {
			// keep the partial line for the next write
			w.buf.Write(line)
			break
		}

		w.entry.Info(string(bytes.TrimRight(line, "\n")))
	}

	return len(p), nil
}

// run boots the memory subsystem described by s and then performs the
// requested frame allocations.
func run(s *scenario, logger *logrus.Logger) (*simulation, error) {
	sim := &simulation{
		scenario: s,
		physMem:  make(mem.SliceMemory, s.memorySize()),
		port:     &cpu.Recorder{},
		kernel:   &kmain.Kernel{},
	}

	logger.WithFields(logrus.Fields{
		"memory": uint64(s.memorySize()),
		"record": recordAddr,
	}).Debug("simulated machine created")

	if err := s.record.Encode(sim.physMem, recordAddr); err != nil {
		return nil, errors.Wrap(err, "writing boot information record")
	}

	info, kerr := multiboot.Load(sim.physMem, recordAddr)
	if kerr != nil {
		return nil, errors.Wrap(kerr, "loading boot information record")
	}

	ctx := &boot.Context{
		Console: &logWriter{entry: logger.WithField("source", "kernel")},
		CPU:     sim.port,
		Memory:  sim.physMem,
	}

	startupInfo := &boot.StartupInfo{
		KernelStart:    s.kernelStart,
		KernelEnd:      s.kernelEnd,
		MultibootMagic: multiboot.Magic,
		MultibootInfo:  info,
	}

	if kerr = sim.kernel.Boot(ctx, startupInfo); kerr != nil {
		return nil, errors.Wrap(kerr, "booting memory subsystem")
	}

	frames := sim.kernel.Memory.Frames()
	for i := 0; i < s.allocate; i++ {
		frame, kerr := frames.AllocFrame()
		if kerr != nil {
			logger.WithField("allocation", i+1).Warn(kerr.Error())
			sim.exhausted = true
			break
		}

		logger.WithField("frame", uint64(frame)).Debug("frame allocated")
		sim.allocations = append(sim.allocations, frame.Address())
	}

	return sim, nil
}
