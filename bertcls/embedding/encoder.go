package embedding

import (
	"context"
	"strings"
)

// Encoder is the pre-trained base model. It maps padded token id and type id
// batches to one pooled vector per row. Token id 0 is padding.
type Encoder interface {
	Dimensions() int
	Encode(ctx context.Context, tokenIDs, typeIDs [][]int64) ([][]float32, error)
}

// Options selects and configures an encoder.
type Options struct {
	// Provider is "hash" (default) or "onnx".
	Provider  string
	Dims      int
	ModelPath string
	Runtime   RuntimeOptions
}

// NewEncoder selects an encoder by provider name. Unknown providers fall back
// to the deterministic hash encoder.
func NewEncoder(opts Options) Encoder {
	dims := opts.Dims
	if dims <= 0 {
		dims = 768
	}
	name := strings.ToLower(strings.TrimSpace(opts.Provider))
	switch {
	case name == "hash" || name == "" || name == "dev":
		return NewHashEncoder(dims)
	case strings.HasPrefix(name, "onnx"):
		return newONNXEncoder(dims, opts.ModelPath, opts.Runtime)
	default:
		return NewHashEncoder(dims)
	}
}
