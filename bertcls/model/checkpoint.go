package model

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
)

const checkpointVersion = 1

// checkpoint is the on-disk form of the head parameters.
type checkpoint struct {
	Version int
	Name    string
	Labels  int
	Hidden  int
	Epoch   int
	Weight  []float64
	Bias    []float64
}

// Save writes all head parameters to path, replacing any previous file.
// The file is written to a temporary sibling first and renamed into place.
func (c *Classifier) Save(path string, epoch int) error {
	ck := checkpoint{
		Version: checkpointVersion,
		Name:    c.name,
		Labels:  c.labels,
		Hidden:  c.hidden,
		Epoch:   epoch,
		Weight:  denseData(c.weight.Value),
		Bias:    denseData(c.bias.Value),
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := gob.NewEncoder(tmp).Encode(&ck); err != nil {
		tmp.Close()
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace checkpoint %s: %w", path, err)
	}
	return nil
}

// Load restores head parameters from path and returns the epoch they were
// saved at.
func (c *Classifier) Load(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()

	var ck checkpoint
	if err := gob.NewDecoder(f).Decode(&ck); err != nil {
		return 0, fmt.Errorf("decode checkpoint %s: %w", path, err)
	}
	if ck.Version != checkpointVersion {
		return 0, fmt.Errorf("%w: unsupported version %d", ErrCheckpointMismatch, ck.Version)
	}
	if ck.Labels != c.labels || ck.Hidden != c.hidden {
		return 0, fmt.Errorf("%w: checkpoint is %dx%d, model is %dx%d", ErrCheckpointMismatch, ck.Labels, ck.Hidden, c.labels, c.hidden)
	}
	if len(ck.Weight) != c.labels*c.hidden || len(ck.Bias) != c.labels {
		return 0, fmt.Errorf("%w: truncated parameters", ErrCheckpointMismatch)
	}
	c.weight.Value = mat.NewDense(c.labels, c.hidden, ck.Weight)
	c.bias.Value = mat.NewDense(1, c.labels, ck.Bias)
	c.ZeroGrad()
	return ck.Epoch, nil
}

func denseData(d *mat.Dense) []float64 {
	r, c := d.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, d.RawRowView(i)...)
	}
	return out
}
