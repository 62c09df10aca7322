package trainer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZanzyTHEbar/bertcls/bertcls/corpus"
	"github.com/ZanzyTHEbar/bertcls/bertcls/embedding/tokenizer"
)

// Scorer produces label logits for one token sequence.
type Scorer interface {
	Predict(ctx context.Context, tokenIDs, typeIDs []int64) ([]float64, error)
}

// Predictor classifies raw text into label names.
type Predictor struct {
	tok    tokenizer.Tokenizer
	scorer Scorer
	labels *corpus.LabelSet
}

// NewPredictor combines a tokenizer, a scorer and the label set.
func NewPredictor(tok tokenizer.Tokenizer, scorer Scorer, labels *corpus.LabelSet) (*Predictor, error) {
	if tok == nil || scorer == nil || labels == nil {
		return nil, errors.New("predictor needs a tokenizer, a scorer and labels")
	}
	return &Predictor{tok: tok, scorer: scorer, labels: labels}, nil
}

// Classify returns the arg-max label index and name for text.
func (p *Predictor) Classify(ctx context.Context, text string) (int, string, error) {
	ids, types, err := p.tok.Encode(text)
	if err != nil {
		return -1, "", fmt.Errorf("tokenize %q: %w", text, err)
	}
	logits, err := p.scorer.Predict(ctx, ids, types)
	if err != nil {
		return -1, "", fmt.Errorf("predict %q: %w", text, err)
	}
	return p.labels.Decode(logits)
}
