//go:build 386

package cpu

// nativePort executes the privileged instructions directly.
type nativePort struct{}

// Native returns the Port for the running processor.
func Native() Port { return nativePort{} }

func (nativePort) LoadGDT(pd *PseudoDescriptor, codeSelector, dataSelector uint16) {
	loadGDT(pd, codeSelector, dataSelector)
}

func (nativePort) EnableInterrupts()  { enableInterrupts() }
func (nativePort) DisableInterrupts() { disableInterrupts() }
func (nativePort) Halt()              { halt() }

func (nativePort) SaveAndDisableInterrupts() bool {
	return saveAndDisableInterrupts()
}

// loadGDT executes lgdt with pd, reloads the data segment registers and
// performs a far return to reload CS.
func loadGDT(pd *PseudoDescriptor, codeSelector, dataSelector uint16)

func enableInterrupts()

func disableInterrupts()

// saveAndDisableInterrupts clears IF and returns its previous value.
func saveAndDisableInterrupts() bool

// halt loops on hlt forever.
func halt()
