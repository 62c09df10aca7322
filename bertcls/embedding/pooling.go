package embedding

// AdjustToDims truncates or pads a vector to the target dimension.
// If target <= 0, returns the original slice.
func AdjustToDims(vec []float32, target int) []float32 {
	if target <= 0 {
		return vec
	}
	if len(vec) == target {
		return vec
	}
	if len(vec) > target {
		return vec[:target]
	}
	out := make([]float32, target)
	copy(out, vec)
	return out
}

// MeanPool averages the rows of a [seq x hidden] block whose mask entry is
// non-zero. data is row-major.
func MeanPool(data []float32, mask []int64, seq, hidden int) []float32 {
	out := make([]float32, hidden)
	n := 0
	for s := 0; s < seq; s++ {
		if s < len(mask) && mask[s] == 0 {
			continue
		}
		row := data[s*hidden : (s+1)*hidden]
		for k, v := range row {
			out[k] += v
		}
		n++
	}
	if n > 0 {
		for k := range out {
			out[k] /= float32(n)
		}
	}
	return out
}

// AttentionMask marks non-padding positions with 1.
func AttentionMask(row []int64) []int64 {
	mask := make([]int64, len(row))
	for i, id := range row {
		if id != 0 {
			mask[i] = 1
		}
	}
	return mask
}
