package main

import (
	"os"
	"strconv"
	"strings"

	"github.com/erynofwales/polka/kernel/hal/multiboot"
	"github.com/erynofwales/polka/kernel/mem"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// maxUpperMemoryKB caps the simulated memory so that the whole address
// space can be backed by a host byte slice.
const maxUpperMemoryKB = 1024*1024 - 1024

// memoryRegion is a [[memory_map]] entry. Addresses are strings so they can
// be written in hex.
type memoryRegion struct {
	Base   string `toml:"base"`
	Length string `toml:"length"`
	Type   int64  `toml:"type"`
}

// config is the TOML description of a simulated machine.
type config struct {
	KernelStart    string         `toml:"kernel_start"`
	KernelEnd      string         `toml:"kernel_end"`
	LowerMemoryKB  int64          `toml:"lower_memory_kb"`
	UpperMemoryKB  int64          `toml:"upper_memory_kb"`
	CommandLine    string         `toml:"command_line"`
	BootLoaderName string         `toml:"boot_loader_name"`
	Allocate       int64          `toml:"allocate"`
	MemoryMap      []memoryRegion `toml:"memory_map"`
}

// scenario is a validated config.
type scenario struct {
	kernelStart uintptr
	kernelEnd   uintptr
	allocate    int
	record      multiboot.Record
}

// loadConfig reads and validates the scenario stored in path.
func loadConfig(path string) (*scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}

	return parseConfig(data)
}

// parseConfig decodes and validates a TOML scenario.
func parseConfig(data []byte) (*scenario, error) {
	var cfg config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}

	return cfg.scenario()
}

func (cfg *config) scenario() (*scenario, error) {
	kernelStart, err := parseAddress("kernel_start", cfg.KernelStart)
	if err != nil {
		return nil, err
	}

	kernelEnd, err := parseAddress("kernel_end", cfg.KernelEnd)
	if err != nil {
		return nil, err
	}

	switch {
	case kernelStart%uint64(mem.PageSize) != 0 || kernelEnd%uint64(mem.PageSize) != 0:
		return nil, errors.Errorf("kernel bounds [0x%x, 0x%x) must be page aligned", kernelStart, kernelEnd)
	case kernelEnd <= kernelStart:
		return nil, errors.Errorf("kernel_end 0x%x must be above kernel_start 0x%x", kernelEnd, kernelStart)
	case cfg.LowerMemoryKB < 0 || cfg.LowerMemoryKB > 640:
		return nil, errors.Errorf("lower_memory_kb must be in [0, 640]; got %d", cfg.LowerMemoryKB)
	case cfg.UpperMemoryKB < 0 || cfg.UpperMemoryKB > maxUpperMemoryKB:
		return nil, errors.Errorf("upper_memory_kb must be in [0, %d]; got %d", maxUpperMemoryKB, cfg.UpperMemoryKB)
	case cfg.Allocate < 0:
		return nil, errors.Errorf("allocate must not be negative; got %d", cfg.Allocate)
	}

	s := &scenario{
		kernelStart: uintptr(kernelStart),
		kernelEnd:   uintptr(kernelEnd),
		allocate:    int(cfg.Allocate),
		record: multiboot.Record{
			LowerMemoryKB:  uint32(cfg.LowerMemoryKB),
			UpperMemoryKB:  uint32(cfg.UpperMemoryKB),
			CommandLine:    cfg.CommandLine,
			BootLoaderName: cfg.BootLoaderName,
		},
	}

	for index, region := range cfg.MemoryMap {
		base, err := parseAddress("base", region.Base)
		if err != nil {
			return nil, errors.Wrapf(err, "memory_map entry %d", index)
		}

		length, err := parseAddress("length", region.Length)
		if err != nil {
			return nil, errors.Wrapf(err, "memory_map entry %d", index)
		}

		if region.Type < 0 || region.Type > 0xFFFFFFFF {
			return nil, errors.Errorf("memory_map entry %d: invalid type %d", index, region.Type)
		}

		s.record.MemoryMap = append(s.record.MemoryMap, multiboot.MemoryMapEntry{
			PhysAddress: base,
			Length:      length,
			Type:        multiboot.MemoryEntryType(region.Type),
		})
	}

	return s, nil
}

// parseAddress parses a decimal, hex (0x) or octal (0) number. Underscores
// may be used as digit separators.
func parseAddress(field, value string) (uint64, error) {
	if value == "" {
		return 0, errors.Errorf("%s: missing value", field)
	}

	v, err := strconv.ParseUint(strings.Replace(value, "_", "", -1), 0, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "%s: invalid address %q", field, value)
	}

	return v, nil
}

// memorySize returns the size of the simulated physical address space.
func (s *scenario) memorySize() mem.Size {
	return mem.LowMemoryEnd + mem.Size(s.record.UpperMemoryKB)*mem.Kb
}
