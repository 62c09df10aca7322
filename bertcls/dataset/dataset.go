// Package dataset turns the raw corpus into padded training batches.
package dataset

import (
	"errors"
	"fmt"

	"github.com/ZanzyTHEbar/bertcls/bertcls/embedding/tokenizer"
)

var (
	ErrLengthMismatch = errors.New("texts and labels differ in length")
	ErrEmptyBatch     = errors.New("cannot collate an empty batch")
)

// Example is one tokenized training example.
type Example struct {
	TokenIDs     []int64
	TokenTypeIDs []int64
	TargetID     int
}

// Dataset pairs source texts with their labels. Examples are tokenized on
// every access and never cached.
type Dataset struct {
	sentsSrc []string
	sentsTgt []int
	tok      tokenizer.Tokenizer
}

// New wraps parallel text and label slices.
func New(sentsSrc []string, sentsTgt []int, tok tokenizer.Tokenizer) (*Dataset, error) {
	if len(sentsSrc) != len(sentsTgt) {
		return nil, fmt.Errorf("%w: %d texts, %d labels", ErrLengthMismatch, len(sentsSrc), len(sentsTgt))
	}
	if tok == nil {
		return nil, errors.New("tokenizer is required")
	}
	return &Dataset{sentsSrc: sentsSrc, sentsTgt: sentsTgt, tok: tok}, nil
}

// Len returns the number of examples.
func (d *Dataset) Len() int { return len(d.sentsSrc) }

// Get tokenizes example i.
func (d *Dataset) Get(i int) (Example, error) {
	if i < 0 || i >= len(d.sentsSrc) {
		return Example{}, fmt.Errorf("index %d out of range [0,%d)", i, len(d.sentsSrc))
	}
	ids, types, err := d.tok.Encode(d.sentsSrc[i])
	if err != nil {
		return Example{}, fmt.Errorf("tokenize example %d: %w", i, err)
	}
	return Example{TokenIDs: ids, TokenTypeIDs: types, TargetID: d.sentsTgt[i]}, nil
}
