// Package model holds the sequence classifier: a frozen pre-trained encoder
// followed by a trainable linear head.
package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/ZanzyTHEbar/bertcls/bertcls/embedding"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrNoForward          = errors.New("backward called without a training forward pass")
	ErrCheckpointMismatch = errors.New("checkpoint does not match model shape")
)

// Param is a trainable tensor and its accumulated gradient.
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

// ZeroGrad clears the gradient.
func (p *Param) ZeroGrad() { p.Grad.Zero() }

// Options configures a Classifier.
type Options struct {
	Name string
	Seed uint64
	// InitStd is the standard deviation of the initial head weights.
	InitStd float64
}

// Classifier maps token id batches to label logits.
type Classifier struct {
	name     string
	encoder  embedding.Encoder
	device   Device
	labels   int
	hidden   int
	weight   *Param // labels x hidden
	bias     *Param // 1 x labels
	training bool

	// activations cached by the last training-mode Forward
	lastX       *mat.Dense
	lastProbs   *mat.Dense
	lastTargets []int
}

// New builds a classifier with numLabels outputs on top of encoder.
func New(encoder embedding.Encoder, numLabels int, device Device, opts Options) (*Classifier, error) {
	if encoder == nil {
		return nil, errors.New("encoder is required")
	}
	if numLabels <= 0 {
		return nil, fmt.Errorf("number of labels must be positive: %d", numLabels)
	}
	hidden := encoder.Dimensions()
	if hidden <= 0 {
		return nil, fmt.Errorf("encoder dimensions must be positive: %d", hidden)
	}
	std := opts.InitStd
	if std <= 0 {
		std = 0.02
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed+1))
	w := make([]float64, numLabels*hidden)
	for i := range w {
		w[i] = rng.NormFloat64() * std
	}
	return &Classifier{
		name:     opts.Name,
		encoder:  encoder,
		device:   device,
		labels:   numLabels,
		hidden:   hidden,
		weight:   &Param{Name: "classifier.weight", Value: mat.NewDense(numLabels, hidden, w), Grad: mat.NewDense(numLabels, hidden, nil)},
		bias:     &Param{Name: "classifier.bias", Value: mat.NewDense(1, numLabels, nil), Grad: mat.NewDense(1, numLabels, nil)},
		training: true,
	}, nil
}

// Name returns the model family name.
func (c *Classifier) Name() string { return c.name }

// NumLabels returns the output dimension.
func (c *Classifier) NumLabels() int { return c.labels }

// Hidden returns the encoder output dimension.
func (c *Classifier) Hidden() int { return c.hidden }

// Device returns the device the model was placed on.
func (c *Classifier) Device() Device { return c.device }

// Train switches to training mode.
func (c *Classifier) Train() { c.training = true }

// Eval switches to inference mode and drops cached activations.
func (c *Classifier) Eval() {
	c.training = false
	c.clearCache()
}

// Training reports whether the model is in training mode.
func (c *Classifier) Training() bool { return c.training }

// Parameters returns the trainable parameters.
func (c *Classifier) Parameters() []*Param { return []*Param{c.weight, c.bias} }

// ZeroGrad clears all gradients.
func (c *Classifier) ZeroGrad() {
	for _, p := range c.Parameters() {
		p.ZeroGrad()
	}
}

// Forward computes logits for a padded batch. With labels it also returns
// the mean softmax cross-entropy loss; without labels loss is 0.
func (c *Classifier) Forward(ctx context.Context, tokenIDs, typeIDs [][]int64, labels []int) (*mat.Dense, float64, error) {
	if len(tokenIDs) == 0 {
		return nil, 0, errors.New("empty batch")
	}
	if labels != nil && len(labels) != len(tokenIDs) {
		return nil, 0, fmt.Errorf("batch has %d rows but %d labels", len(tokenIDs), len(labels))
	}
	for i, y := range labels {
		if y < 0 || y >= c.labels {
			return nil, 0, fmt.Errorf("label %d of row %d out of range [0,%d)", y, i, c.labels)
		}
	}

	x, err := c.encode(ctx, tokenIDs, typeIDs)
	if err != nil {
		return nil, 0, err
	}
	logits := c.logits(x)
	if labels == nil {
		return logits, 0, nil
	}

	probs := softmaxRows(logits)
	var loss float64
	for i, y := range labels {
		loss -= math.Log(math.Max(probs.At(i, y), 1e-12))
	}
	loss /= float64(len(labels))

	if c.training {
		c.lastX, c.lastProbs = x, probs
		c.lastTargets = append(c.lastTargets[:0], labels...)
	}
	return logits, loss, nil
}

// Predict returns logits for a single unpadded sequence.
func (c *Classifier) Predict(ctx context.Context, tokenIDs, typeIDs []int64) ([]float64, error) {
	var types [][]int64
	if typeIDs != nil {
		types = [][]int64{typeIDs}
	}
	logits, _, err := c.Forward(ctx, [][]int64{tokenIDs}, types, nil)
	if err != nil {
		return nil, err
	}
	return mat.Row(nil, 0, logits), nil
}

// Backward accumulates gradients of the last training-mode loss.
func (c *Classifier) Backward() error {
	if c.lastX == nil || c.lastProbs == nil {
		return ErrNoForward
	}
	n := float64(len(c.lastTargets))

	// dZ = (softmax - onehot) / n
	var dz mat.Dense
	dz.CloneFrom(c.lastProbs)
	for i, y := range c.lastTargets {
		dz.Set(i, y, dz.At(i, y)-1)
	}
	dz.Scale(1/n, &dz)

	var dw mat.Dense
	dw.Mul(dz.T(), c.lastX)
	c.weight.Grad.Add(c.weight.Grad, &dw)

	rows, _ := dz.Dims()
	db := make([]float64, c.labels)
	for i := 0; i < rows; i++ {
		floats.Add(db, dz.RawRowView(i))
	}
	floats.Add(c.bias.Grad.RawRowView(0), db)

	c.clearCache()
	return nil
}

func (c *Classifier) clearCache() {
	c.lastX, c.lastProbs, c.lastTargets = nil, nil, c.lastTargets[:0]
}

func (c *Classifier) encode(ctx context.Context, tokenIDs, typeIDs [][]int64) (*mat.Dense, error) {
	vecs, err := c.encoder.Encode(ctx, tokenIDs, typeIDs)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	if len(vecs) != len(tokenIDs) {
		return nil, fmt.Errorf("encoder returned %d vectors for %d rows", len(vecs), len(tokenIDs))
	}
	x := mat.NewDense(len(vecs), c.hidden, nil)
	for i, v := range vecs {
		if len(v) != c.hidden {
			return nil, fmt.Errorf("encoder vector %d has %d dims, want %d", i, len(v), c.hidden)
		}
		row := x.RawRowView(i)
		for j, f := range v {
			row[j] = float64(f)
		}
	}
	return x, nil
}

func (c *Classifier) logits(x *mat.Dense) *mat.Dense {
	rows, _ := x.Dims()
	var z mat.Dense
	z.Mul(x, c.weight.Value.T())
	b := c.bias.Value.RawRowView(0)
	for i := 0; i < rows; i++ {
		floats.Add(z.RawRowView(i), b)
	}
	return &z
}

func softmaxRows(z *mat.Dense) *mat.Dense {
	var p mat.Dense
	p.CloneFrom(z)
	rows, _ := p.Dims()
	for i := 0; i < rows; i++ {
		row := p.RawRowView(i)
		m := floats.Max(row)
		floats.AddConst(-m, row)
		for j, v := range row {
			row[j] = math.Exp(v)
		}
		floats.Scale(1/floats.Sum(row), row)
	}
	return &p
}
