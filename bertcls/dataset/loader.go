package dataset

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math/rand/v2"
	"runtime"

	"github.com/RoaringBitmap/roaring"
	"github.com/sourcegraph/conc/pool"
)

// Source is anything the loader can draw examples from.
type Source interface {
	Len() int
	Get(i int) (Example, error)
}

// Loader yields shuffled, collated batches. Examples within a batch are
// fetched on a bounded worker pool.
type Loader struct {
	src       Source
	batchSize int
	shuffle   bool
	workers   int
	rng       *rand.Rand

	// consumed holds the example indices handed out in the current epoch.
	consumed *roaring.Bitmap
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithShuffle toggles per-epoch shuffling (on by default).
func WithShuffle(on bool) LoaderOption { return func(l *Loader) { l.shuffle = on } }

// WithSeed fixes the shuffle order.
func WithSeed(seed uint64) LoaderOption {
	return func(l *Loader) { l.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithWorkers bounds the goroutines used to fetch one batch.
func WithWorkers(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.workers = n
		}
	}
}

// NewLoader creates a loader over src.
func NewLoader(src Source, batchSize int, opts ...LoaderOption) (*Loader, error) {
	if src == nil {
		return nil, errors.New("loader source is required")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive: %d", batchSize)
	}
	l := &Loader{
		src:       src,
		batchSize: batchSize,
		shuffle:   true,
		workers:   min(runtime.NumCPU(), batchSize),
		consumed:  roaring.New(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.rng == nil {
		l.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return l, nil
}

// NumBatches returns the number of batches per epoch; the last one may be short.
func (l *Loader) NumBatches() int {
	return (l.src.Len() + l.batchSize - 1) / l.batchSize
}

// Order returns the index order for the next epoch.
func (l *Loader) Order() []int {
	n := l.src.Len()
	if !l.shuffle {
		order := make([]int, n)
		for i := range order {
			order[i] = i
		}
		return order
	}
	return l.rng.Perm(n)
}

// Epoch yields every example exactly once, grouped in batches. Iteration
// stops at the first error, which is yielded with an empty batch. Indices of
// yielded batches are tracked until the next epoch starts; see Consumed and
// Remaining.
func (l *Loader) Epoch(ctx context.Context) iter.Seq2[Batch, error] {
	return func(yield func(Batch, error) bool) {
		order := l.Order()
		l.consumed.Clear()
		for start := 0; start < len(order); start += l.batchSize {
			if err := ctx.Err(); err != nil {
				yield(Batch{}, err)
				return
			}
			idx := order[start:min(start+l.batchSize, len(order))]
			batch, err := l.fetch(ctx, idx)
			if err != nil {
				yield(Batch{}, err)
				return
			}
			for _, i := range idx {
				l.consumed.Add(uint32(i))
			}
			if !yield(batch, nil) {
				return
			}
		}
	}
}

// Consumed returns how many examples the current epoch has handed out.
func (l *Loader) Consumed() int {
	return int(l.consumed.GetCardinality())
}

// Remaining returns, in ascending order, the examples the current epoch has
// not handed out yet.
func (l *Loader) Remaining() []int {
	all := roaring.New()
	all.AddRange(0, uint64(l.src.Len()))
	all.AndNot(l.consumed)
	out := make([]int, 0, all.GetCardinality())
	it := all.Iterator()
	for it.HasNext() {
		out = append(out, int(it.Next()))
	}
	return out
}

func (l *Loader) fetch(ctx context.Context, idx []int) (Batch, error) {
	examples := make([]Example, len(idx))
	p := pool.New().WithMaxGoroutines(l.workers).WithContext(ctx).WithCancelOnError()
	for j, i := range idx {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ex, err := l.src.Get(i)
			if err != nil {
				return err
			}
			examples[j] = ex
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return Batch{}, fmt.Errorf("fetch batch: %w", err)
	}
	return Collate(examples)
}
