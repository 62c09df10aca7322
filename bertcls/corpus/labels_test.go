package corpus

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	ls, err := ReadLabels(strings.NewReader("A\nB\nC\n"))
	require.NoError(t, err)
	require.Equal(t, 3, ls.Len())

	idx, name, err := ls.Decode([]float64{0.1, 0.7, 0.2})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "B", name)
}

func TestDecodeTiePicksFirst(t *testing.T) {
	ls, err := NewLabelSet([]string{"A", "B"})
	require.NoError(t, err)

	idx, name, err := ls.Decode([]float64{0.5, 0.5})
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, "A", name)
}

func TestDecodeSizeMismatch(t *testing.T) {
	ls, err := NewLabelSet([]string{"A", "B"})
	require.NoError(t, err)

	_, _, err = ls.Decode([]float64{0.1, 0.2, 0.7})
	assert.Error(t, err)
	_, _, err = ls.Decode(nil)
	assert.Error(t, err)
}

func TestReadLabelsTrimsLineEndings(t *testing.T) {
	ls, err := ReadLabels(strings.NewReader("体育\r\n财经\r\n\n\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"体育", "财经"}, ls.Names())
	assert.Equal(t, "财经", ls.Name(1))
	assert.Equal(t, "", ls.Name(2))
	assert.Equal(t, "", ls.Name(-1))
}

func TestReadLabelsEmpty(t *testing.T) {
	_, err := ReadLabels(strings.NewReader("\n\n"))
	assert.ErrorIs(t, err, ErrEmptyLabels)
}

func TestLoadLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "name.txt")
	require.NoError(t, os.WriteFile(path, []byte("A\nB\nC"), 0o644))

	ls, err := LoadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, 3, ls.Len())
}
