package evaluate

import (
	"context"
	"fmt"
	"os"

	"github.com/nvr-ai/go-vision/images"
	"github.com/nvr-ai/go-vision/models/model/preprocess"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Batch is a run of consecutive shard samples ready for the detector.
type Batch struct {
	Samples []Sample
	Inputs  []*preprocess.PreprocessingResult
}

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	// BatchSize is the per-rank batch size.
	BatchSize int
	// Workers is the number of decode goroutines.
	Workers int
	// Prefetch bounds how many batches may be decoded ahead of the consumer.
	Prefetch int
	// InputSize is the letterbox side.
	InputSize int
	// Rank and World select this process's shard.
	Rank  int
	World int
	// ReadFile loads image bytes; nil means os.ReadFile.
	ReadFile func(path string) ([]byte, error)
}

// Loader yields one rank's share of a dataset in order.
type Loader struct {
	dataset *Dataset
	indices []int
	opts    LoaderOptions
}

// NewLoader shards ds for opts.Rank.
//
// Arguments:
//   - ds: The dataset.
//   - opts: Batch, worker, prefetch and shard settings.
//
// Returns:
//   - *Loader: The loader.
//   - error: An error if the options are out of range.
func NewLoader(ds *Dataset, opts LoaderOptions) (*Loader, error) {
	if opts.World <= 0 {
		opts.World = 1
	}
	if opts.Rank < 0 || opts.Rank >= opts.World {
		return nil, fmt.Errorf("rank %d outside world of %d", opts.Rank, opts.World)
	}
	if opts.BatchSize <= 0 || opts.InputSize <= 0 {
		return nil, fmt.Errorf("batch size %d and input size %d must be positive", opts.BatchSize, opts.InputSize)
	}
	opts.Workers = max(opts.Workers, 1)
	opts.Prefetch = max(opts.Prefetch, 1)
	if opts.ReadFile == nil {
		opts.ReadFile = os.ReadFile
	}

	return &Loader{
		dataset: ds,
		indices: ShardIndices(len(ds.Samples), opts.Rank, opts.World),
		opts:    opts,
	}, nil
}

// ShardIndices splits n samples across world ranks without shuffling.
//
// The index list is padded by wrapping around to a multiple of world, then
// rank takes every world-th index starting at rank. Every rank gets the same
// count and padded samples are duplicates that must be removed after gathering.
//
// Arguments:
//   - n: The dataset size.
//   - rank: This rank.
//   - world: The number of ranks.
//
// Returns:
//   - []int: The sample indices for rank.
func ShardIndices(n, rank, world int) []int {
	if n == 0 {
		return nil
	}
	perRank := (n + world - 1) / world
	out := make([]int, 0, perRank)
	for i := rank; i < perRank*world; i += world {
		out = append(out, i%n)
	}
	return out
}

// Dataset returns the underlying dataset.
func (l *Loader) Dataset() *Dataset { return l.dataset }

// Indices returns this rank's sample indices.
func (l *Loader) Indices() []int { return l.indices }

// Len returns the number of batches.
func (l *Loader) Len() int {
	return (len(l.indices) + l.opts.BatchSize - 1) / l.opts.BatchSize
}

func (l *Loader) batch(i int) []int {
	start := i * l.opts.BatchSize
	return l.indices[start:min(start+l.opts.BatchSize, len(l.indices))]
}

// Each decodes batches concurrently and calls fn for each in order.
//
// Arguments:
//   - ctx: Cancels decoding.
//   - fn: Called from a single goroutine, batch by batch.
//
// Returns:
//   - error: The first decode error, fn error or context error.
func (l *Loader) Each(ctx context.Context, fn func(*Batch) error) error {
	n := l.Len()
	slots := make([]chan *Batch, n)
	for i := range slots {
		slots[i] = make(chan *Batch, 1)
	}
	jobs := make(chan int)
	ahead := semaphore.NewWeighted(int64(l.opts.Prefetch))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for i := 0; i < n; i++ {
			if err := ahead.Acquire(gctx, 1); err != nil {
				return err
			}
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < l.opts.Workers; w++ {
		g.Go(func() error {
			for i := range jobs {
				b, err := l.load(l.batch(i))
				if err != nil {
					return err
				}
				slots[i] <- b
			}
			return nil
		})
	}

	g.Go(func() error {
		for i := 0; i < n; i++ {
			select {
			case b := <-slots[i]:
				err := fn(b)
				ahead.Release(1)
				if err != nil {
					return err
				}
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	return g.Wait()
}

func (l *Loader) load(idx []int) (*Batch, error) {
	b := &Batch{
		Samples: make([]Sample, len(idx)),
		Inputs:  make([]*preprocess.PreprocessingResult, len(idx)),
	}
	for j, i := range idx {
		s := l.dataset.Samples[i]
		data, err := l.opts.ReadFile(s.Path)
		if err != nil {
			return nil, errors.Wrapf(err, "error reading sample %d", s.Index)
		}
		img, err := images.Decode(data)
		if err != nil {
			return nil, errors.Wrapf(err, "error decoding %s", s.Path)
		}
		b.Samples[j] = s
		b.Inputs[j] = preprocess.Letterbox(img, l.opts.InputSize)
	}
	return b, nil
}
