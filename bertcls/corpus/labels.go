package corpus

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// LabelSet maps label indices to their names. Order follows the label file.
type LabelSet struct {
	names []string
}

// NewLabelSet builds a label set from names in index order.
func NewLabelSet(names []string) (*LabelSet, error) {
	if len(names) == 0 {
		return nil, ErrEmptyLabels
	}
	out := make([]string, len(names))
	copy(out, names)
	return &LabelSet{names: out}, nil
}

// ReadLabels reads one label per line. Trailing blank lines are dropped;
// blank lines in the middle keep their index.
func ReadLabels(r io.Reader) (*LabelSet, error) {
	var names []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		names = append(names, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan labels: %w", err)
	}
	for len(names) > 0 && strings.TrimSpace(names[len(names)-1]) == "" {
		names = names[:len(names)-1]
	}
	return NewLabelSet(names)
}

// LoadLabels reads the label-name file at path.
func LoadLabels(path string) (*LabelSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open label file %s: %w", path, err)
	}
	defer f.Close()

	ls, err := ReadLabels(f)
	if err != nil {
		return nil, fmt.Errorf("label file %s: %w", path, err)
	}
	return ls, nil
}

// Len returns the number of labels, i.e. the classifier output size.
func (l *LabelSet) Len() int { return len(l.names) }

// Name returns the label at index i, or "" when out of range.
func (l *LabelSet) Name(i int) string {
	if i < 0 || i >= len(l.names) {
		return ""
	}
	return l.names[i]
}

// Names returns a copy of all label names.
func (l *LabelSet) Names() []string {
	out := make([]string, len(l.names))
	copy(out, l.names)
	return out
}

// Decode returns the arg-max index of logits and its label name. Ties go
// to the lowest index.
func (l *LabelSet) Decode(logits []float64) (int, string, error) {
	if len(logits) == 0 {
		return -1, "", fmt.Errorf("cannot decode empty output")
	}
	if len(logits) != len(l.names) {
		return -1, "", fmt.Errorf("output has %d scores for %d labels", len(logits), len(l.names))
	}
	idx := floats.MaxIdx(logits)
	return idx, l.names[idx], nil
}
