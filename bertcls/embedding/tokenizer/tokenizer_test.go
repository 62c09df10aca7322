package tokenizer

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTokens = []string{
	"[PAD]", "[UNK]", "[CLS]", "[SEP]",
	"hello", "world", "un", "##aff", "##able", "cafe", ",", "你", "好",
}

func testVocab(t *testing.T) (*Vocab, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vocab.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(testTokens, "\n")+"\n"), 0o644))
	v, err := LoadVocab(path)
	require.NoError(t, err)
	return v, path
}

func TestVocab(t *testing.T) {
	v, _ := testVocab(t)
	assert.Equal(t, len(testTokens), v.Len())

	id, ok := v.ID("hello")
	assert.True(t, ok)
	assert.Equal(t, int64(4), id)
	assert.Equal(t, "world", v.Token(5))
	assert.Equal(t, "", v.Token(99))

	assert.Equal(t, int64(2), v.SpecialID(ClsToken))
	assert.Equal(t, int64(3), v.SpecialID(SepToken))
	assert.Equal(t, int64(1), v.SpecialID(UnkToken))
}

func TestVocabFallbackSpecialIDs(t *testing.T) {
	v := NewVocab([]string{"a", "b", "a"})
	assert.Equal(t, 3, v.Len())
	id, ok := v.ID("a")
	assert.True(t, ok)
	assert.Equal(t, int64(0), id)
	assert.Equal(t, int64(101), v.SpecialID(ClsToken))
	assert.Equal(t, int64(102), v.SpecialID(SepToken))
	assert.Equal(t, int64(100), v.SpecialID(UnkToken))
}

func TestVocabIDsFollowLineIndex(t *testing.T) {
	lines := []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]", "a", "a", "", "hello"}
	path := filepath.Join(t.TempDir(), "vocab.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	v, err := LoadVocab(path)
	require.NoError(t, err)

	assert.Equal(t, len(lines), v.Len())
	id, ok := v.ID("hello")
	require.True(t, ok)
	assert.Equal(t, int64(7), id)
	id, _ = v.ID("a")
	assert.Equal(t, int64(4), id)
	assert.Equal(t, "", v.Token(6))
	_, ok = v.ID("")
	assert.False(t, ok)

	wp := NewWordPiece(v, 0, true)
	ids, _, err := wp.Encode("hello a")
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 7, 4, 3}, ids)

	swp, err := NewSugarWordPiece(path, v, 0)
	require.NoError(t, err)
	ids, _, err = swp.Encode("hello")
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 7, 3}, ids)
}

func TestReadVocabEmpty(t *testing.T) {
	_, err := ReadVocab(strings.NewReader("\n \n"))
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestWordPieceEncode(t *testing.T) {
	v, _ := testVocab(t)
	wp := NewWordPiece(v, 0, true)

	tests := []struct {
		text string
		want []string
	}{
		{"hello world", []string{"[CLS]", "hello", "world", "[SEP]"}},
		{"Hello, World", []string{"[CLS]", "hello", ",", "world", "[SEP]"}},
		{"unaffable", []string{"[CLS]", "un", "##aff", "##able", "[SEP]"}},
		{"café", []string{"[CLS]", "cafe", "[SEP]"}},
		{"你好", []string{"[CLS]", "你", "好", "[SEP]"}},
		{"unknownword", []string{"[CLS]", "[UNK]", "[SEP]"}},
		{"", []string{"[CLS]", "[SEP]"}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			ids, types, err := wp.Encode(tt.text)
			require.NoError(t, err)
			got := make([]string, len(ids))
			for i, id := range ids {
				got[i] = v.Token(id)
			}
			assert.Equal(t, tt.want, got)
			assert.Len(t, types, len(ids))
			for _, ty := range types {
				assert.Equal(t, int64(0), ty)
			}
		})
	}
}

func TestWordPieceTruncates(t *testing.T) {
	v, _ := testVocab(t)
	wp := NewWordPiece(v, 4, true)

	ids, types, err := wp.Encode("hello world hello world")
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4, 5, 3}, ids)
	assert.Len(t, types, 4)
}

func TestSugarWordPieceEncode(t *testing.T) {
	v, path := testVocab(t)
	swp, err := NewSugarWordPiece(path, v, 16)
	require.NoError(t, err)

	ids, types, err := swp.Encode("hello world")
	require.NoError(t, err)
	require.Len(t, types, len(ids))
	require.GreaterOrEqual(t, len(ids), 2)
	assert.Equal(t, int64(2), ids[0])
	assert.Equal(t, int64(3), ids[len(ids)-1])
	assert.Contains(t, ids, int64(4))
	assert.Contains(t, ids, int64(5))
}

func TestLongInputIsTruncated(t *testing.T) {
	v, path := testVocab(t)
	long := strings.Repeat("hello ", 20)

	swp, err := NewSugarWordPiece(path, v, 6)
	require.NoError(t, err)
	wp := NewWordPiece(v, 6, true)

	for name, tok := range map[string]Tokenizer{"sugarme": swp, "wordpiece": wp} {
		t.Run(name, func(t *testing.T) {
			var (
				ids, types []int64
				err        error
			)
			require.NotPanics(t, func() { ids, types, err = tok.Encode(long) })
			require.NoError(t, err)
			require.LessOrEqual(t, len(ids), 6)
			require.GreaterOrEqual(t, len(ids), 3)
			assert.Len(t, types, len(ids))
			assert.Equal(t, int64(2), ids[0])
			assert.Equal(t, int64(3), ids[len(ids)-1])
			for _, id := range ids[1 : len(ids)-1] {
				assert.Equal(t, int64(4), id)
			}
		})
	}
}

func TestNewSelectsTokenizer(t *testing.T) {
	v, path := testVocab(t)

	tok, err := New(Config{Kind: "wordpiece", MaxSeqLen: 8}, v)
	require.NoError(t, err)
	assert.IsType(t, &WordPiece{}, tok)

	tok, err = New(Config{Kind: "sugarme", VocabPath: path, MaxSeqLen: 8}, v)
	require.NoError(t, err)
	assert.IsType(t, &SugarWordPiece{}, tok)

	// unreadable vocab file falls back to the built-in tokenizer and says so
	var logs bytes.Buffer
	logger := zerolog.New(&logs)
	tok, err = New(Config{Kind: "sugarme", VocabPath: filepath.Join(t.TempDir(), "none.txt"), Logger: &logger}, v)
	require.NoError(t, err)
	assert.IsType(t, &WordPiece{}, tok)
	assert.Contains(t, logs.String(), "falling back to built-in WordPiece")
	assert.Contains(t, logs.String(), "none.txt")

	tok, err = New(Config{Kind: "sugarme", VocabPath: filepath.Join(t.TempDir(), "none.txt")}, v)
	require.NoError(t, err)
	assert.IsType(t, &WordPiece{}, tok)

	_, err = New(Config{Kind: "sentencepiece"}, v)
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = New(Config{Kind: "wordpiece"}, nil)
	assert.ErrorIs(t, err, ErrUnsupported)
}
