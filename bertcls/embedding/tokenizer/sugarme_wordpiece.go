package tokenizer

import (
	"fmt"
	"os"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
	"github.com/sugarme/tokenizer/processor"
)

// SugarWordPiece wraps sugarme/tokenizer WordPiece (BERT-style)
type SugarWordPiece struct {
	t         *tk.Tokenizer
	maxSeqLen int
}

// NewSugarWordPiece loads vocab.txt and builds a BERT WordPiece tokenizer.
// Special token ids come from vocab.
func NewSugarWordPiece(vocabPath string, vocab *Vocab, maxSeq int) (*SugarWordPiece, error) {
	fi, err := os.Stat(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%w: vocab path %s is a directory", ErrUnsupported, vocabPath)
	}
	wp, err := wordpiece.NewWordPieceFromFile(vocabPath, UnkToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	t := tk.NewTokenizer(wp)
	t.WithNormalizer(normalizer.NewBertNormalizer(true, true, true, true))
	t.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())

	sep := processor.PostToken{Value: SepToken, Id: int(vocab.SpecialID(SepToken))}
	cls := processor.PostToken{Value: ClsToken, Id: int(vocab.SpecialID(ClsToken))}
	t.WithPostProcessor(processor.NewBertProcessing(sep, cls))
	if maxSeq > 0 {
		// single-sentence input has no pair encoding, so only the first
		// sequence may be truncated
		t.WithTruncation(&tk.TruncationParams{MaxLength: maxSeq, Strategy: tk.OnlyFirst})
	}
	// no padding here: batches are padded dynamically by the collator
	return &SugarWordPiece{t: t, maxSeqLen: maxSeq}, nil
}

func (s *SugarWordPiece) Encode(text string) ([]int64, []int64, error) {
	enc, err := s.t.Encode(tk.NewSingleEncodeInput(tk.NewInputSequence(text)), true)
	if err != nil {
		return nil, nil, fmt.Errorf("encode %q: %w", text, err)
	}
	ids := toInt64(enc.GetIds())
	types := toInt64(enc.GetTypeIds())
	if len(types) != len(ids) {
		types = make([]int64, len(ids))
	}
	if s.maxSeqLen > 0 && len(ids) > s.maxSeqLen {
		// keep the trailing [SEP]
		last := len(ids) - 1
		ids = append(ids[:s.maxSeqLen-1], ids[last])
		types = append(types[:s.maxSeqLen-1], types[last])
	}
	return ids, types, nil
}
