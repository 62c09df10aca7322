//go:build !onnx
// +build !onnx

package embedding

import (
	"context"
	"fmt"
)

// onnxEncoder is a stub used when built without the "onnx" build tag.
type onnxEncoder struct{ dims int }

func newONNXEncoder(dims int, modelPath string, opts RuntimeOptions) Encoder {
	return &onnxEncoder{dims: dims}
}

func (p *onnxEncoder) Dimensions() int { return p.dims }

func (p *onnxEncoder) Encode(ctx context.Context, tokenIDs, typeIDs [][]int64) ([][]float32, error) {
	return nil, fmt.Errorf("onnx encoder not available: build with -tags onnx and provide a supported model")
}

// RuntimeAvailable is always false without ONNX support.
func RuntimeAvailable() bool { return false }
