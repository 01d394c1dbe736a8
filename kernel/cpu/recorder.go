package cpu

// GDTLoad captures the arguments of a LoadGDT request.
type GDTLoad struct {
	Descriptor   PseudoDescriptor
	CodeSelector uint16
	DataSelector uint16
}

// Recorder is a Port that records requests instead of executing them. It is
// used when the memory subsystem runs on a host (simulation and tests).
type Recorder struct {
	// GDTLoads lists every LoadGDT request in call order.
	GDTLoads []GDTLoad

	// InterruptsEnabled tracks the simulated interrupt flag.
	InterruptsEnabled bool

	// HaltCount is incremented by each Halt call.
	HaltCount int

	// Calls lists the names of the Port methods invoked, in call order.
	Calls []string
}

// LoadGDT implements Port.
func (r *Recorder) LoadGDT(pd *PseudoDescriptor, codeSelector, dataSelector uint16) {
	r.Calls = append(r.Calls, "LoadGDT")
	r.GDTLoads = append(r.GDTLoads, GDTLoad{
		Descriptor:   *pd,
		CodeSelector: codeSelector,
		DataSelector: dataSelector,
	})
}

// EnableInterrupts implements Port.
func (r *Recorder) EnableInterrupts() {
	r.Calls = append(r.Calls, "EnableInterrupts")
	r.InterruptsEnabled = true
}

// DisableInterrupts implements Port.
func (r *Recorder) DisableInterrupts() {
	r.Calls = append(r.Calls, "DisableInterrupts")
	r.InterruptsEnabled = false
}

// SaveAndDisableInterrupts implements Port.
func (r *Recorder) SaveAndDisableInterrupts() bool {
	r.Calls = append(r.Calls, "SaveAndDisableInterrupts")
	enabled := r.InterruptsEnabled
	r.InterruptsEnabled = false
	return enabled
}

// Halt implements Port. Unlike the native implementation it returns.
func (r *Recorder) Halt() {
	r.Calls = append(r.Calls, "Halt")
	r.HaltCount++
}
