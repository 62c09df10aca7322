//go:build onnx
// +build onnx

package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// onnxEncoder runs an exported transformer encoder through ONNX Runtime.
// Rank-3 outputs [batch, seq, hidden] are mean-pooled over the attention
// mask; rank-2 outputs are taken as already pooled.
type onnxEncoder struct {
	dims        int
	modelPath   string
	opts        RuntimeOptions
	mu          sync.Mutex
	session     *ort.DynamicAdvancedSession
	inputNames  []string
	outputNames []string
}

func newONNXEncoder(dims int, modelPath string, opts RuntimeOptions) Encoder {
	return &onnxEncoder{dims: dims, modelPath: modelPath, opts: opts.normalized()}
}

func (p *onnxEncoder) Dimensions() int { return p.dims }

func (p *onnxEncoder) ensureSession() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != nil {
		return nil
	}
	if p.modelPath == "" {
		return fmt.Errorf("onnx model path is required")
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("initialize onnx runtime: %w", err)
		}
	}
	ins, outs, err := ort.GetInputOutputInfo(p.modelPath)
	if err != nil {
		return fmt.Errorf("get IO info: %w", err)
	}
	var inputNames []string
	for _, ii := range ins {
		switch inputRole(ii.Name) {
		case "ids", "mask", "type":
			inputNames = append(inputNames, ii.Name)
		}
	}
	if len(inputNames) == 0 {
		return fmt.Errorf("could not determine ONNX input names")
	}
	var outputNames []string
	for _, oi := range outs {
		if oi.DataType == ort.TensorElementDataTypeFloat {
			outputNames = append(outputNames, oi.Name)
			break
		}
	}
	if len(outputNames) == 0 {
		return fmt.Errorf("could not determine ONNX output name")
	}

	var opts *ort.SessionOptions
	if IsAccelerator(p.opts.ExecutionProvider) {
		if o, e := ort.NewSessionOptions(); e == nil {
			_ = o.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll)
			switch p.opts.ExecutionProvider {
			case "cuda":
				if cu, e2 := ort.NewCUDAProviderOptions(); e2 == nil {
					_ = cu.Update(map[string]string{"device_id": fmt.Sprint(p.opts.DeviceID)})
					_ = o.AppendExecutionProviderCUDA(cu)
					_ = cu.Destroy()
				}
			case "tensorrt":
				if trt, e2 := ort.NewTensorRTProviderOptions(); e2 == nil {
					_ = o.AppendExecutionProviderTensorRT(trt)
					_ = trt.Destroy()
				}
			case "coreml":
				_ = o.AppendExecutionProviderCoreMLV2(map[string]string{})
			case "dml":
				_ = o.AppendExecutionProviderDirectML(p.opts.DeviceID)
			}
			opts = o
		}
	}
	s, err := ort.NewDynamicAdvancedSession(p.modelPath, inputNames, outputNames, opts)
	if opts != nil {
		_ = opts.Destroy()
	}
	if err != nil {
		return fmt.Errorf("create onnx session: %w", err)
	}
	p.session = s
	p.inputNames = inputNames
	p.outputNames = outputNames
	return nil
}

func inputRole(name string) string {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "input_ids") || n == "ids":
		return "ids"
	case strings.Contains(n, "attention_mask") || n == "mask":
		return "mask"
	case strings.Contains(n, "token_type"):
		return "type"
	}
	return ""
}

func (p *onnxEncoder) Encode(ctx context.Context, tokenIDs, typeIDs [][]int64) ([][]float32, error) {
	if err := p.ensureSession(); err != nil {
		return nil, err
	}
	all := make([][]float32, 0, len(tokenIDs))
	for i := 0; i < len(tokenIDs); i += p.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(i+p.opts.BatchSize, len(tokenIDs))
		var types [][]int64
		if len(typeIDs) == len(tokenIDs) {
			types = typeIDs[i:end]
		}
		vecs, err := p.encodeChunk(tokenIDs[i:end], types)
		if err != nil {
			return nil, err
		}
		all = append(all, vecs...)
	}
	return all, nil
}

func (p *onnxEncoder) encodeChunk(ids, types [][]int64) ([][]float32, error) {
	batch := len(ids)
	if batch == 0 {
		return [][]float32{}, nil
	}
	seq := len(ids[0])
	flatIDs := make([]int64, batch*seq)
	flatMask := make([]int64, batch*seq)
	flatTypes := make([]int64, batch*seq)
	masks := make([][]int64, batch)
	for i := 0; i < batch; i++ {
		if len(ids[i]) != seq {
			return nil, fmt.Errorf("row %d has length %d, want %d", i, len(ids[i]), seq)
		}
		masks[i] = AttentionMask(ids[i])
		copy(flatIDs[i*seq:(i+1)*seq], ids[i])
		copy(flatMask[i*seq:(i+1)*seq], masks[i])
		if types != nil {
			copy(flatTypes[i*seq:(i+1)*seq], types[i])
		}
	}
	shape := ort.NewShape(int64(batch), int64(seq))
	idsTensor, err := ort.NewTensor(shape, flatIDs)
	if err != nil {
		return nil, fmt.Errorf("ids tensor: %w", err)
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor(shape, flatMask)
	if err != nil {
		return nil, fmt.Errorf("mask tensor: %w", err)
	}
	defer maskTensor.Destroy()
	typeTensor, err := ort.NewTensor(shape, flatTypes)
	if err != nil {
		return nil, fmt.Errorf("type tensor: %w", err)
	}
	defer typeTensor.Destroy()

	inVals := make([]ort.Value, len(p.inputNames))
	for i, name := range p.inputNames {
		switch inputRole(name) {
		case "ids":
			inVals[i] = idsTensor
		case "mask":
			inVals[i] = maskTensor
		default:
			inVals[i] = typeTensor
		}
	}
	outs := make([]ort.Value, len(p.outputNames))
	if err := p.session.Run(inVals, outs); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	defer func() {
		for _, v := range outs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	t, ok := outs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type")
	}
	data := t.GetData()
	outShape := t.GetShape()
	vecs := make([][]float32, batch)
	switch len(outShape) {
	case 2:
		cols := int(outShape[1])
		for r := 0; r < batch; r++ {
			raw := make([]float32, cols)
			copy(raw, data[r*cols:(r+1)*cols])
			vecs[r] = AdjustToDims(raw, p.dims)
		}
	case 3:
		steps, hidden := int(outShape[1]), int(outShape[2])
		for r := 0; r < batch; r++ {
			block := data[r*steps*hidden : (r+1)*steps*hidden]
			vecs[r] = AdjustToDims(MeanPool(block, masks[r], steps, hidden), p.dims)
		}
	default:
		return nil, fmt.Errorf("unexpected output rank %d", len(outShape))
	}
	return vecs, nil
}

// RuntimeAvailable reports whether ONNX Runtime can be initialized.
func RuntimeAvailable() bool {
	if ort.IsInitialized() {
		return true
	}
	return ort.InitializeEnvironment() == nil
}
