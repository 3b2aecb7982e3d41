package evaluate

import (
	"fmt"

	"github.com/nvr-ai/go-vision/images"
	"github.com/nvr-ai/go-vision/models/model"
)

// CriterionIoU is the only built-in validation loss.
const CriterionIoU = "iou_loss"

// Criterion scores one image's detections against its ground truth.
type Criterion interface {
	Name() string
	Loss(dets model.Detections, gt []images.Rect) float32
}

// NewCriterion returns the named criterion.
func NewCriterion(cfg CriterionConfig) (Criterion, error) {
	switch cfg.Name {
	case "", CriterionIoU:
		return IoULoss{}, nil
	default:
		return nil, fmt.Errorf("unsupported criterion: %q", cfg.Name)
	}
}

// IoULoss is the mean over ground truth boxes of 1 - best IoU with any detection.
// An image without ground truth has zero loss.
type IoULoss struct{}

// Name returns "iou_loss".
func (IoULoss) Name() string { return CriterionIoU }

// Loss computes the image loss.
func (IoULoss) Loss(dets model.Detections, gt []images.Rect) float32 {
	if len(gt) == 0 {
		return 0
	}
	var sum float32
	for _, g := range gt {
		var best float32
		for _, d := range dets {
			best = max(best, images.CalculateIoU(g, d.Box))
		}
		sum += 1 - best
	}
	return sum / float32(len(gt))
}
