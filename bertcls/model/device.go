package model

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/ZanzyTHEbar/bertcls/bertcls/embedding"

	"github.com/klauspost/cpuid/v2"
)

// Device describes where the encoder runs. It is resolved once at startup.
type Device struct {
	// Kind is "cpu" or an accelerator execution provider such as "cuda".
	Kind    string
	ID      int
	CPU     string
	Cores   int
	Threads int
	AVX2    bool
}

func (d Device) String() string {
	if d.Kind == "" || d.Kind == "cpu" {
		return "cpu"
	}
	return fmt.Sprintf("%s:%d", d.Kind, d.ID)
}

// Accelerated reports whether the device is not the CPU.
func (d Device) Accelerated() bool { return d.String() != "cpu" }

// ResolveDevice picks the accelerator named by preference when the runtime
// can provide one, and the CPU otherwise. available may be nil, in which case
// the ONNX runtime is probed.
func ResolveDevice(preference string, deviceID int, available func() bool) Device {
	d := Device{
		Kind:    "cpu",
		CPU:     strings.TrimSpace(cpuid.CPU.BrandName),
		Cores:   cpuid.CPU.PhysicalCores,
		Threads: cpuid.CPU.LogicalCores,
		AVX2:    cpuid.CPU.Supports(cpuid.AVX2),
	}
	if d.Threads <= 0 {
		d.Threads = runtime.NumCPU()
	}
	if !embedding.IsAccelerator(preference) {
		return d
	}
	if available == nil {
		available = embedding.RuntimeAvailable
	}
	if available() {
		d.Kind = strings.ToLower(strings.TrimSpace(preference))
		d.ID = deviceID
	}
	return d
}
