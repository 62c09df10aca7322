package model

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// tableEncoder returns the vector stored for the second token of each row.
type tableEncoder struct {
	dims int
	vecs map[int64][]float32
	err  error
}

func (e *tableEncoder) Dimensions() int { return e.dims }

func (e *tableEncoder) Encode(_ context.Context, tokenIDs, _ [][]int64) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(tokenIDs))
	for i, row := range tokenIDs {
		out[i] = e.vecs[row[1]]
	}
	return out, nil
}

func separableEncoder() *tableEncoder {
	return &tableEncoder{dims: 2, vecs: map[int64][]float32{
		1: {1, 0},
		2: {0, 1},
		3: {-1, -1},
	}}
}

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := New(separableEncoder(), 3, Device{Kind: "cpu"}, Options{Name: "test", Seed: 1})
	require.NoError(t, err)
	return c
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, 2, Device{}, Options{})
	assert.Error(t, err)
	_, err = New(separableEncoder(), 0, Device{}, Options{})
	assert.Error(t, err)
	_, err = New(&tableEncoder{}, 2, Device{}, Options{})
	assert.Error(t, err)
}

func TestForwardShapesAndLoss(t *testing.T) {
	c := newTestClassifier(t)
	logits, loss, err := c.Forward(context.Background(), [][]int64{{101, 1}, {101, 2}}, nil, []int{0, 1})
	require.NoError(t, err)

	r, k := logits.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, k)
	assert.Greater(t, loss, 0.0)

	_, loss, err = c.Forward(context.Background(), [][]int64{{101, 1}}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, loss)
}

func TestForwardRejectsBadLabels(t *testing.T) {
	c := newTestClassifier(t)
	_, _, err := c.Forward(context.Background(), [][]int64{{101, 1}}, nil, []int{3})
	assert.Error(t, err)
	_, _, err = c.Forward(context.Background(), [][]int64{{101, 1}}, nil, []int{0, 1})
	assert.Error(t, err)
}

func TestForwardPropagatesEncoderError(t *testing.T) {
	enc := separableEncoder()
	enc.err = errors.New("oom")
	c, err := New(enc, 2, Device{}, Options{})
	require.NoError(t, err)
	_, _, err = c.Forward(context.Background(), [][]int64{{101, 1}}, nil, []int{0})
	assert.Error(t, err)
}

func TestBackwardRequiresTrainingForward(t *testing.T) {
	c := newTestClassifier(t)
	assert.ErrorIs(t, c.Backward(), ErrNoForward)

	c.Eval()
	_, _, err := c.Forward(context.Background(), [][]int64{{101, 1}}, nil, []int{0})
	require.NoError(t, err)
	assert.ErrorIs(t, c.Backward(), ErrNoForward)
}

func TestBackwardMatchesNumericGradient(t *testing.T) {
	c := newTestClassifier(t)
	ctx := context.Background()
	batch := [][]int64{{101, 1}, {101, 2}, {101, 3}}
	labels := []int{0, 1, 2}

	_, _, err := c.Forward(ctx, batch, nil, labels)
	require.NoError(t, err)
	c.ZeroGrad()
	require.NoError(t, c.Backward())

	const h = 1e-6
	c.Eval()
	w := c.weight.Value
	for i := 0; i < 3; i++ {
		for j := 0; j < 2; j++ {
			orig := w.At(i, j)
			w.Set(i, j, orig+h)
			_, up, err := c.Forward(ctx, batch, nil, labels)
			require.NoError(t, err)
			w.Set(i, j, orig-h)
			_, down, err := c.Forward(ctx, batch, nil, labels)
			require.NoError(t, err)
			w.Set(i, j, orig)
			assert.InDelta(t, (up-down)/(2*h), c.weight.Grad.At(i, j), 1e-5)
		}
	}
}

func TestTrainingReducesLoss(t *testing.T) {
	c := newTestClassifier(t)
	opt := NewAdam(0.1, 0)
	ctx := context.Background()
	batch := [][]int64{{101, 1}, {101, 2}, {101, 3}}
	labels := []int{0, 1, 2}

	_, first, err := c.Forward(ctx, batch, nil, labels)
	require.NoError(t, err)
	c.ZeroGrad()
	require.NoError(t, c.Backward())
	require.NoError(t, opt.Step(c.Parameters()))

	var last float64
	for i := 0; i < 100; i++ {
		_, last, err = c.Forward(ctx, batch, nil, labels)
		require.NoError(t, err)
		c.ZeroGrad()
		require.NoError(t, c.Backward())
		require.NoError(t, opt.Step(c.Parameters()))
	}
	assert.Less(t, last, first)
	assert.Equal(t, 101, opt.Steps())

	for i, tok := range []int64{1, 2, 3} {
		logits, err := c.Predict(ctx, []int64{101, tok}, nil)
		require.NoError(t, err)
		best := 0
		for j, v := range logits {
			if v > logits[best] {
				best = j
			}
		}
		assert.Equal(t, i, best)
	}
}

func TestModes(t *testing.T) {
	c := newTestClassifier(t)
	assert.True(t, c.Training())
	c.Eval()
	assert.False(t, c.Training())
	c.Train()
	assert.True(t, c.Training())
}

func TestAdamWeightDecayShrinksWeights(t *testing.T) {
	p := &Param{Name: "w", Value: mat.NewDense(1, 2, []float64{1, -1}), Grad: mat.NewDense(1, 2, nil)}
	opt := NewAdam(0.01, 0.1)
	require.NoError(t, opt.Step([]*Param{p}))
	assert.Less(t, p.Value.At(0, 0), 1.0)
	assert.Greater(t, p.Value.At(0, 1), -1.0)
	assert.InDelta(t, 0.99, p.Value.At(0, 0), 1e-6)
}

func TestAdamShapeMismatch(t *testing.T) {
	p := &Param{Name: "w", Value: mat.NewDense(1, 2, nil), Grad: mat.NewDense(2, 1, nil)}
	assert.Error(t, NewAdam(0.1, 0).Step([]*Param{p}))
}

func TestCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "model.bin")
	c := newTestClassifier(t)
	require.NoError(t, c.Save(path, 4))

	want, err := c.Predict(ctx, []int64{101, 2}, nil)
	require.NoError(t, err)

	other, err := New(separableEncoder(), 3, Device{}, Options{Seed: 99})
	require.NoError(t, err)
	epoch, err := other.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, epoch)

	got, err := other.Predict(ctx, []int64{101, 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// overwrite in place, no leftovers
	require.NoError(t, c.Save(path, 5))
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCheckpointShapeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, newTestClassifier(t).Save(path, 0))

	other, err := New(separableEncoder(), 2, Device{}, Options{})
	require.NoError(t, err)
	_, err = other.Load(path)
	assert.ErrorIs(t, err, ErrCheckpointMismatch)
}

func TestLoadMissingCheckpoint(t *testing.T) {
	_, err := newTestClassifier(t).Load(filepath.Join(t.TempDir(), "none.bin"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestResolveDevice(t *testing.T) {
	cpu := ResolveDevice("cpu", 0, func() bool { return true })
	assert.Equal(t, "cpu", cpu.String())
	assert.False(t, cpu.Accelerated())
	assert.Greater(t, cpu.Threads, 0)

	gpu := ResolveDevice("CUDA", 1, func() bool { return true })
	assert.Equal(t, "cuda:1", gpu.String())
	assert.True(t, gpu.Accelerated())

	fallback := ResolveDevice("cuda", 0, func() bool { return false })
	assert.Equal(t, "cpu", fallback.String())
}
