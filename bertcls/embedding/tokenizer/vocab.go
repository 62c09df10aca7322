package tokenizer

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Special tokens of a BERT-style vocabulary
const (
	PadToken = "[PAD]"
	UnkToken = "[UNK]"
	ClsToken = "[CLS]"
	SepToken = "[SEP]"
)

// Vocab is the token -> id mapping of a pre-trained model. A token's id is
// its line index in the vocab file, blank and repeated lines included, which
// is how the pre-trained embedding table is indexed.
type Vocab struct {
	ids    map[string]int64
	tokens []string
}

// NewVocab builds a vocabulary where tokens[i] has id i. Lookups of a
// repeated token return its first id; blank tokens occupy an id but are
// never looked up.
func NewVocab(tokens []string) *Vocab {
	v := &Vocab{ids: make(map[string]int64, len(tokens)), tokens: tokens}
	for i, tok := range tokens {
		if tok == "" {
			continue
		}
		if _, dup := v.ids[tok]; !dup {
			v.ids[tok] = int64(i)
		}
	}
	return v
}

// ReadVocab reads one token per line. Every line, blank or not, takes the
// next id.
func ReadVocab(r io.Reader) (*Vocab, error) {
	var (
		tokens []string
		filled bool
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		tok := strings.TrimSpace(scanner.Text())
		filled = filled || tok != ""
		tokens = append(tokens, tok)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan vocab: %w", err)
	}
	if !filled {
		return nil, fmt.Errorf("%w: empty vocabulary", ErrUnsupported)
	}
	return NewVocab(tokens), nil
}

// LoadVocab reads the vocab file at path.
func LoadVocab(path string) (*Vocab, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocab %s: %w", path, err)
	}
	defer f.Close()
	return ReadVocab(f)
}

// Len returns the vocabulary size.
func (v *Vocab) Len() int { return len(v.tokens) }

// ID looks up a token.
func (v *Vocab) ID(token string) (int64, bool) {
	id, ok := v.ids[token]
	return id, ok
}

// Token returns the token for id, or "" when out of range.
func (v *Vocab) Token(id int64) string {
	if id < 0 || id >= int64(len(v.tokens)) {
		return ""
	}
	return v.tokens[id]
}

// SpecialID returns the id of a special token, or fallback when the
// vocabulary lacks it. Fallbacks match bert-base ids.
func (v *Vocab) SpecialID(token string) int64 {
	if id, ok := v.ids[token]; ok {
		return id
	}
	switch token {
	case PadToken:
		return 0
	case UnkToken:
		return 100
	case ClsToken:
		return 101
	case SepToken:
		return 102
	}
	return 0
}
