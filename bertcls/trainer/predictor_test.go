package trainer

import (
	"context"
	"errors"
	"testing"

	"github.com/ZanzyTHEbar/bertcls/bertcls/corpus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scorerFunc func(ids []int64) ([]float64, error)

func (f scorerFunc) Predict(_ context.Context, ids, _ []int64) ([]float64, error) { return f(ids) }

func TestClassify(t *testing.T) {
	labels, err := corpus.NewLabelSet([]string{"short", "long"})
	require.NoError(t, err)
	// two or more words score as "long"
	scorer := scorerFunc(func(ids []int64) ([]float64, error) {
		if len(ids) > 3 {
			return []float64{0, 1}, nil
		}
		return []float64{1, 0}, nil
	})
	p, err := NewPredictor(wordTokenizer{}, scorer, labels)
	require.NoError(t, err)

	idx, name, err := p.Classify(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, "short", name)

	idx, name, err = p.Classify(context.Background(), "hello there world")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "long", name)
}

func TestClassifyScorerError(t *testing.T) {
	labels, err := corpus.NewLabelSet([]string{"a"})
	require.NoError(t, err)
	p, err := NewPredictor(wordTokenizer{}, scorerFunc(func([]int64) ([]float64, error) {
		return nil, errors.New("no model")
	}), labels)
	require.NoError(t, err)

	_, _, err = p.Classify(context.Background(), "x")
	assert.ErrorContains(t, err, "no model")
}

func TestNewPredictorRequiresAll(t *testing.T) {
	_, err := NewPredictor(nil, nil, nil)
	assert.Error(t, err)
}
