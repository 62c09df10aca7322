package dataset

import (
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTokenizer maps each whitespace-separated word to its length and
// wraps the sequence in 101/102.
type fakeTokenizer struct {
	calls atomic.Int64
	fail  string
}

func (f *fakeTokenizer) Encode(text string) ([]int64, []int64, error) {
	f.calls.Add(1)
	if f.fail != "" && text == f.fail {
		return nil, nil, errors.New("boom")
	}
	ids := []int64{101}
	for _, w := range strings.Fields(text) {
		ids = append(ids, int64(len(w)))
	}
	ids = append(ids, 102)
	return ids, make([]int64, len(ids)), nil
}

func TestDatasetLength(t *testing.T) {
	src := []string{"a", "bb cc", "ddd"}
	tgt := []int{0, 1, 2}
	ds, err := New(src, tgt, &fakeTokenizer{})
	require.NoError(t, err)
	assert.Equal(t, len(src), ds.Len())
	assert.Equal(t, len(tgt), ds.Len())
}

func TestDatasetLengthMismatch(t *testing.T) {
	_, err := New([]string{"a"}, []int{0, 1}, &fakeTokenizer{})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestDatasetGetTokenizesEveryTime(t *testing.T) {
	tok := &fakeTokenizer{}
	ds, err := New([]string{"hello world"}, []int{3}, tok)
	require.NoError(t, err)

	ex, err := ds.Get(0)
	require.NoError(t, err)
	assert.Equal(t, []int64{101, 5, 5, 102}, ex.TokenIDs)
	assert.Equal(t, []int64{0, 0, 0, 0}, ex.TokenTypeIDs)
	assert.Equal(t, 3, ex.TargetID)

	_, err = ds.Get(0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), tok.calls.Load())
}

func TestDatasetGetOutOfRange(t *testing.T) {
	ds, err := New([]string{"a"}, []int{0}, &fakeTokenizer{})
	require.NoError(t, err)
	_, err = ds.Get(1)
	assert.Error(t, err)
	_, err = ds.Get(-1)
	assert.Error(t, err)
}

func TestDatasetGetTokenizerError(t *testing.T) {
	ds, err := New([]string{"bad"}, []int{0}, &fakeTokenizer{fail: "bad"})
	require.NoError(t, err)
	_, err = ds.Get(0)
	assert.Error(t, err)
}
