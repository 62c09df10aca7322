package embedding

import "strings"

// RuntimeOptions configures the ONNX Runtime session.
type RuntimeOptions struct {
	// ExecutionProvider is "cuda", "tensorrt", "coreml", "dml" or "cpu".
	ExecutionProvider string
	DeviceID          int
	// BatchSize bounds the rows sent to the runtime per Run call.
	BatchSize int
}

func (o RuntimeOptions) normalized() RuntimeOptions {
	o.ExecutionProvider = strings.ToLower(strings.TrimSpace(o.ExecutionProvider))
	if o.BatchSize <= 0 {
		o.BatchSize = 32
	}
	return o
}

// IsAccelerator reports whether ep names a non-CPU execution provider.
func IsAccelerator(ep string) bool {
	switch strings.ToLower(strings.TrimSpace(ep)) {
	case "cuda", "tensorrt", "coreml", "dml":
		return true
	}
	return false
}
