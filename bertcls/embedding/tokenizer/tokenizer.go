package tokenizer

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Tokenizer converts raw text into model-ready token ids and token type ids.
// Sequences carry [CLS] and [SEP] and are not padded.
type Tokenizer interface {
	Encode(text string) (tokenIDs []int64, typeIDs []int64, err error)
}

// Config holds basic tokenizer settings
type Config struct {
	// Kind is "sugarme" or "wordpiece".
	Kind      string
	VocabPath string
	MaxSeqLen int
	Lowercase bool
	// Logger reports a fallback to the built-in WordPiece. Optional.
	Logger *zerolog.Logger
}

// ErrUnsupported indicates the tokenizer could not be initialized
var ErrUnsupported = fmt.Errorf("unsupported tokenizer configuration")

// New builds the tokenizer selected by cfg.Kind over vocab. The sugarme
// tokenizer falls back to the built-in WordPiece when it cannot load.
func New(cfg Config, vocab *Vocab) (Tokenizer, error) {
	if vocab == nil {
		return nil, fmt.Errorf("%w: vocabulary is required", ErrUnsupported)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "sugarme", "bert", "":
		swp, err := NewSugarWordPiece(cfg.VocabPath, vocab, cfg.MaxSeqLen)
		if err == nil {
			return swp, nil
		}
		if cfg.Logger != nil {
			cfg.Logger.Warn().Err(err).Str("vocab", cfg.VocabPath).Msg("sugarme tokenizer unavailable, falling back to built-in WordPiece")
		}
		return NewWordPiece(vocab, cfg.MaxSeqLen, cfg.Lowercase), nil
	case "wordpiece", "basic":
		return NewWordPiece(vocab, cfg.MaxSeqLen, cfg.Lowercase), nil
	default:
		return nil, fmt.Errorf("%w: unknown tokenizer %q", ErrUnsupported, cfg.Kind)
	}
}

func toInt64(ids []int) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}
