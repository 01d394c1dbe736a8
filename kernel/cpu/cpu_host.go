//go:build !386

package cpu

// hostPort stands in for the CPU when the kernel packages are built for a
// host architecture. Descriptor table loads and interrupt changes are
// ignored.
type hostPort struct{}

// Native returns the Port for the running processor.
func Native() Port { return hostPort{} }

func (hostPort) LoadGDT(*PseudoDescriptor, uint16, uint16) {}
func (hostPort) EnableInterrupts()                         {}
func (hostPort) DisableInterrupts()                        {}
func (hostPort) SaveAndDisableInterrupts() bool            { return false }

// Halt blocks the calling goroutine forever.
func (hostPort) Halt() { select {} }
