package dataset

// PadID is the value used to right-pad token and type id rows.
const PadID int64 = 0

// Batch is a padded group of examples. All rows share one length.
type Batch struct {
	TokenIDs     [][]int64
	TokenTypeIDs [][]int64
	TargetIDs    []int
}

// Size returns the number of rows.
func (b Batch) Size() int { return len(b.TargetIDs) }

// MaxLen returns the padded row length.
func (b Batch) MaxLen() int {
	if len(b.TokenIDs) == 0 {
		return 0
	}
	return len(b.TokenIDs[0])
}

// Pad right-pads each row with padID up to maxLen. Rows are copied; longer
// rows are kept as-is.
func Pad(rows [][]int64, maxLen int, padID int64) [][]int64 {
	out := make([][]int64, len(rows))
	for i, row := range rows {
		n := max(len(row), maxLen)
		padded := make([]int64, n)
		copy(padded, row)
		for j := len(row); j < n; j++ {
			padded[j] = padID
		}
		out[i] = padded
	}
	return out
}

// Collate pads token and type ids of examples to the longest token sequence
// in the batch and stacks the labels, keeping example order.
func Collate(examples []Example) (Batch, error) {
	if len(examples) == 0 {
		return Batch{}, ErrEmptyBatch
	}
	maxLen := 0
	tokenIDs := make([][]int64, len(examples))
	typeIDs := make([][]int64, len(examples))
	targets := make([]int, len(examples))
	for i, ex := range examples {
		maxLen = max(maxLen, len(ex.TokenIDs))
		tokenIDs[i] = ex.TokenIDs
		typeIDs[i] = ex.TokenTypeIDs
		targets[i] = ex.TargetID
	}
	return Batch{
		TokenIDs:     Pad(tokenIDs, maxLen, PadID),
		TokenTypeIDs: Pad(typeIDs, maxLen, PadID),
		TargetIDs:    targets,
	}, nil
}

// Examples splits a batch back into per-row examples, padding included.
func (b Batch) Examples() []Example {
	out := make([]Example, len(b.TargetIDs))
	for i := range out {
		out[i] = Example{TokenIDs: b.TokenIDs[i], TokenTypeIDs: b.TokenTypeIDs[i], TargetID: b.TargetIDs[i]}
	}
	return out
}
