package boot

import (
	"io"

	"github.com/erynofwales/polka/kernel"
	"github.com/erynofwales/polka/kernel/cpu"
	"github.com/erynofwales/polka/kernel/kfmt"
	"github.com/erynofwales/polka/kernel/mem"
)

var (
	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// Context bundles the capabilities that boot-time components need. A single
// Context is built by the kernel entry point and passed by reference to the
// components that use it.
type Context struct {
	// Console receives diagnostic output.
	Console io.Writer

	// CPU provides access to privileged processor operations.
	CPU cpu.Port

	// Memory provides access to physical memory.
	Memory mem.PhysicalMemory
}

// Panic outputs the supplied error (if not nil) to the console, disables
// interrupts and halts the CPU. On real hardware calls to Panic never return.
func (ctx *Context) Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	kfmt.Fprintf(ctx.Console, "\n-----------------------------------\n")
	if err != nil {
		kfmt.Fprintf(ctx.Console, "[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	kfmt.Fprintf(ctx.Console, "*** kernel panic: system halted ***")
	kfmt.Fprintf(ctx.Console, "\n-----------------------------------\n")

	if ctx.CPU != nil {
		ctx.CPU.DisableInterrupts()
		ctx.CPU.Halt()
	}
}
