package face

import (
	"github.com/nvr-ai/go-vision/images"
	"github.com/nvr-ai/go-vision/models/model"
	"github.com/nvr-ai/go-vision/models/model/preprocess"
	"github.com/nvr-ai/go-vision/models/postprocess"
)

// DecoderConfig holds the detection post-processing thresholds.
type DecoderConfig struct {
	ConfThreshold float32 `mapstructure:"conf_threshold" yaml:"conf_threshold"`
	NMSThreshold  float32 `mapstructure:"nms_threshold"  yaml:"nms_threshold"`
	MaxDetections int     `mapstructure:"max_detections" yaml:"max_detections"`
}

// DefaultDecoderConfig returns the usual WIDER FACE evaluation thresholds.
func DefaultDecoderConfig() DecoderConfig {
	return DecoderConfig{ConfThreshold: 0.01, NMSThreshold: 0.5, MaxDetections: 1000}
}

// Decoder turns raw rows into boxes in original image pixels.
type Decoder struct {
	cfg DecoderConfig
}

// NewDecoder creates a decoder.
func NewDecoder(cfg DecoderConfig) *Decoder {
	return &Decoder{cfg: cfg}
}

// Decode filters, converts and suppresses the rows of one image.
//
// The score of a row is objectness times class score. Rows under the
// confidence threshold are dropped, boxes go from centre/size to corners, the
// letterbox is undone and boxes are clipped to the image before greedy NMS.
//
// Arguments:
//   - raw: RowSize values per candidate.
//   - lb: The letterbox geometry of the image.
//
// Returns:
//   - model.Detections: Sorted by descending score.
func (d *Decoder) Decode(raw []float32, lb *preprocess.PreprocessingResult) model.Detections {
	var candidates []postprocess.Result

	w, h := float32(lb.OriginalWidth), float32(lb.OriginalHeight)
	for off := 0; off+RowSize <= len(raw); off += RowSize {
		row := raw[off : off+RowSize]
		score := row[objIndex] * row[clsIndex]
		if score < d.cfg.ConfThreshold {
			continue
		}

		cx, cy, bw, bh := row[0], row[1], row[2], row[3]
		x1, y1 := lb.Unletterbox(cx-bw/2, cy-bh/2)
		x2, y2 := lb.Unletterbox(cx+bw/2, cy+bh/2)
		box := images.Rect{X1: x1, Y1: y1, X2: x2, Y2: y2}.Clip(w, h)
		if box.Empty() {
			continue
		}

		candidates = append(candidates, postprocess.Result{Box: box, Score: score})
	}

	postprocess.SortByScore(candidates)
	return postprocess.ApplyGreedyNMS(candidates, &postprocess.NMSConfig{
		IoUThreshold:  d.cfg.NMSThreshold,
		MaxDetections: d.cfg.MaxDetections,
	})
}
