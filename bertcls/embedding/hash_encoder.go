package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
)

// hashEncoder embeds each token with a fixed pseudo-random vector derived
// from sha256 of its (token id, type id) pair and mean-pools non-padding
// tokens. It needs no model file.
type hashEncoder struct {
	dims  int
	mu    sync.RWMutex
	cache map[[2]int64][]float32
}

func NewHashEncoder(dims int) *hashEncoder {
	if dims <= 0 {
		dims = 768
	}
	return &hashEncoder{dims: dims, cache: make(map[[2]int64][]float32)}
}

func (h *hashEncoder) Dimensions() int { return h.dims }

func (h *hashEncoder) Encode(ctx context.Context, tokenIDs, typeIDs [][]int64) ([][]float32, error) {
	if len(typeIDs) != 0 && len(typeIDs) != len(tokenIDs) {
		return nil, fmt.Errorf("token ids have %d rows but type ids have %d", len(tokenIDs), len(typeIDs))
	}
	out := make([][]float32, len(tokenIDs))
	for i, row := range tokenIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec := make([]float32, h.dims)
		n := 0
		for j, id := range row {
			if id == 0 {
				continue
			}
			var ty int64
			if len(typeIDs) != 0 && j < len(typeIDs[i]) {
				ty = typeIDs[i][j]
			}
			tv := h.tokenVector(id, ty)
			for k := range vec {
				vec[k] += tv[k]
			}
			n++
		}
		if n > 0 {
			for k := range vec {
				vec[k] /= float32(n)
			}
		}
		out[i] = vec
	}
	return out, nil
}

func (h *hashEncoder) tokenVector(id, ty int64) []float32 {
	key := [2]int64{id, ty}
	h.mu.RLock()
	v, ok := h.cache[key]
	h.mu.RUnlock()
	if ok {
		return v
	}

	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(id))
	binary.LittleEndian.PutUint64(buf[8:], uint64(ty))
	sum := sha256.Sum256(buf[:])
	// xorshift64 seeded from the digest fills the remaining dims
	state := binary.LittleEndian.Uint64(sum[:8]) | 1
	vec := make([]float32, h.dims)
	for j := range vec {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		vec[j] = (float32(state>>40)/float32(1<<24))*2 - 1
	}

	h.mu.Lock()
	h.cache[key] = vec
	h.mu.Unlock()
	return vec
}
