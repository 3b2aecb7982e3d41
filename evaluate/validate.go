package evaluate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nvr-ai/go-vision/dist"
	"github.com/nvr-ai/go-vision/models/face"
	"github.com/nvr-ai/go-vision/profiler"
	"go.uber.org/zap"
)

// DatasetResult is the rank 0 summary of one dataset.
type DatasetResult struct {
	Name    string
	Metrics Metrics
}

// Validator runs the detector over sharded loaders and reduces on rank 0.
type Validator struct {
	Group        dist.Group
	Detector     face.Detector
	Decoder      *face.Decoder
	Criterion    Criterion
	IoUThreshold float32
	Logger       *zap.Logger
	Timings      *profiler.Tracker
}

// Validate evaluates one loader.
//
// Every rank must call Validate for the same loaders in the same order,
// because each call ends in a collective gather.
//
// Arguments:
//   - ctx: Cancels loading and inference.
//   - l: This rank's shard.
//
// Returns:
//   - *Metrics: The dataset metrics on rank 0, nil elsewhere.
//   - error: A load, inference, exchange or decode error.
func (v *Validator) Validate(ctx context.Context, l *Loader) (*Metrics, error) {
	logger := v.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timings := v.Timings
	if timings == nil {
		timings = profiler.NewTracker()
	}

	var records []ImageRecord
	start := time.Now()
	err := l.Each(ctx, func(b *Batch) error {
		done := timings.StartOperation("forward", len(b.Inputs))
		raw, err := v.Detector.Forward(ctx, b.Inputs)
		done()
		if err != nil {
			return fmt.Errorf("forward: %w", err)
		}

		done = timings.StartOperation("decode", len(raw))
		for i, out := range raw {
			dets := v.Decoder.Decode(out, b.Inputs[i])
			loss := v.Criterion.Loss(dets, b.Samples[i].Boxes)
			records = append(records, NewImageRecord(b.Samples[i], dets, loss))
		}
		done()
		return nil
	})
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	logger.Debug("shard evaluated",
		zap.String("dataset", l.Dataset().Name),
		zap.Int("images", len(records)),
		zap.Duration("elapsed", elapsed),
	)

	payload, err := json.Marshal(Partial{Rank: v.Group.Rank(), Elapsed: elapsed, Records: records})
	if err != nil {
		return nil, err
	}
	parts, err := v.Group.Gather(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("gathering %s: %w", l.Dataset().Name, err)
	}
	if v.Group.Rank() != 0 {
		return nil, nil
	}

	merged, slowest, err := MergePartials(parts)
	if err != nil {
		return nil, err
	}
	m := ComputeMetrics(merged, v.IoUThreshold, slowest)
	return &m, nil
}

// ValidateAll evaluates every loader in order.
//
// Returns:
//   - []DatasetResult: One entry per loader on rank 0, nil elsewhere.
//   - error: The first failure.
func (v *Validator) ValidateAll(ctx context.Context, loaders []*Loader) ([]DatasetResult, error) {
	var results []DatasetResult
	for _, l := range loaders {
		m, err := v.Validate(ctx, l)
		if err != nil {
			return nil, err
		}
		if m != nil {
			results = append(results, DatasetResult{Name: l.Dataset().Name, Metrics: *m})
		}
	}
	return results, nil
}
