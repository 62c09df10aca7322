package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/armon/go-radix"
	"golang.org/x/text/unicode/norm"
)

const (
	continuationPrefix = "##"
	maxCharsPerWord    = 100
)

// WordPiece is a greedy longest-match-first BERT tokenizer over an explicit
// vocabulary. Used when the sugarme tokenizer cannot be built.
type WordPiece struct {
	trie      *radix.Tree
	unkID     int64
	clsID     int64
	sepID     int64
	maxSeqLen int
	lowercase bool
}

// NewWordPiece indexes vocab in a radix tree for prefix matching.
func NewWordPiece(vocab *Vocab, maxSeq int, lowercase bool) *WordPiece {
	trie := radix.New()
	for tok, id := range vocab.ids {
		trie.Insert(tok, id)
	}
	return &WordPiece{
		trie:      trie,
		unkID:     vocab.SpecialID(UnkToken),
		clsID:     vocab.SpecialID(ClsToken),
		sepID:     vocab.SpecialID(SepToken),
		maxSeqLen: maxSeq,
		lowercase: lowercase,
	}
}

func (w *WordPiece) Encode(text string) ([]int64, []int64, error) {
	ids := []int64{w.clsID}
	limit := -1
	if w.maxSeqLen > 0 {
		limit = w.maxSeqLen - 1 // keep room for [SEP]
	}
	for _, word := range w.basicTokens(text) {
		for _, id := range w.pieces(word) {
			if limit >= 0 && len(ids) >= limit {
				break
			}
			ids = append(ids, id)
		}
	}
	ids = append(ids, w.sepID)
	return ids, make([]int64, len(ids)), nil
}

// pieces splits a single word into vocabulary pieces, or [UNK] when any
// part of the word has no match.
func (w *WordPiece) pieces(word string) []int64 {
	if utf8.RuneCountInString(word) > maxCharsPerWord {
		return []int64{w.unkID}
	}
	var out []int64
	rest, prefix := word, ""
	for rest != "" {
		key, val, ok := w.trie.LongestPrefix(prefix + rest)
		if !ok || len(key) <= len(prefix) {
			return []int64{w.unkID}
		}
		out = append(out, val.(int64))
		rest = rest[len(key)-len(prefix):]
		prefix = continuationPrefix
	}
	return out
}

// basicTokens cleans text, isolates CJK characters and punctuation and
// splits on whitespace.
func (w *WordPiece) basicTokens(text string) []string {
	if w.lowercase {
		text = stripAccents(strings.ToLower(text))
	}
	var b strings.Builder
	for _, r := range text {
		switch {
		case r == 0 || r == utf8.RuneError || isControl(r):
			continue
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		case isCJK(r) || isPunct(r):
			b.WriteByte(' ')
			b.WriteRune(r)
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Fields(b.String())
}

func stripAccents(s string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.IsControl(r) || unicode.In(r, unicode.Cf)
}

func isPunct(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x20000 && r <= 0x2A6DF) ||
		(r >= 0x2A700 && r <= 0x2B73F) ||
		(r >= 0x2B740 && r <= 0x2B81F) ||
		(r >= 0x2B820 && r <= 0x2CEAF) ||
		(r >= 0xF900 && r <= 0xFAFF) ||
		(r >= 0x2F800 && r <= 0x2FA1F)
}
