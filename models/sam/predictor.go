package sam

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/nvr-ai/go-vision/images"
	"github.com/nvr-ai/go-vision/models/model/preprocess"
	"github.com/nvr-ai/go-vision/profiler"
	"go.uber.org/zap"
)

// Request is one interactive segmentation call.
type Request struct {
	// Image is the photo to segment.
	Image image.Image
	// Sketch is the user's drawing over Image, same size.
	Sketch image.Image
	// MaskIndex picks one of the decoder's candidate masks, 0 to 3.
	MaskIndex int
	// Color overrides the palette colour when set.
	Color *color.RGBA
}

// Response holds both visualisations and the prompt that produced them.
type Response struct {
	// Box is the prompt box in original image pixels.
	Box images.Rect
	// IoU is the decoder's quality estimate for the chosen mask.
	IoU float32
	// Color is the colour used for the overlay.
	Color color.RGBA
	// ImageWithMask is the tinted, outlined image.
	ImageWithMask *image.RGBA
	// Mask is the binary mask, 0 or 255.
	Mask *image.Gray
}

// PredictorOptions configures a Predictor.
type PredictorOptions struct {
	// ClipThreshold binarises the resized mask. Zero is a valid threshold.
	ClipThreshold float32
	// Seed seeds the colour palette.
	Seed int64
	// Logger receives per-request timings; nil disables logging.
	Logger *zap.Logger
}

// DefaultPredictorOptions returns the options used by the demo.
func DefaultPredictorOptions() PredictorOptions {
	return PredictorOptions{ClipThreshold: DefaultClipThreshold}
}

// Predictor runs the whole pipeline around a Model.
type Predictor struct {
	model   Model
	clip    float32
	palette *Palette
	logger  *zap.Logger
	timings *profiler.Tracker
}

// NewPredictor wraps m.
//
// Arguments:
//   - m: The loaded model.
//   - opts: Threshold, seed and logger, usually from DefaultPredictorOptions.
//
// Returns:
//   - *Predictor: The predictor. It is safe for concurrent use when m is.
func NewPredictor(m Model, opts PredictorOptions) *Predictor {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Predictor{
		model:   m,
		clip:    opts.ClipThreshold,
		palette: NewPalette(opts.Seed),
		logger:  opts.Logger,
		timings: profiler.NewTracker(),
	}
}

// Timings exposes the per-stage timings.
func (p *Predictor) Timings() *profiler.Tracker {
	return p.timings
}

// Predict segments the sketched object.
//
// Arguments:
//   - ctx: Cancels the model call.
//   - req: The image, sketch, mask index and optional colour.
//
// Returns:
//   - *Response: The overlay and binary mask at original resolution.
//   - error: ErrMaskIndex, ErrSketchSize, ErrEmptyPrompt or a model failure.
func (p *Predictor) Predict(ctx context.Context, req Request) (*Response, error) {
	if req.MaskIndex < 0 || req.MaskIndex >= NumMaskOutputs {
		return nil, fmt.Errorf("%w: %d", ErrMaskIndex, req.MaskIndex)
	}

	done := p.timings.StartOperation("preprocess", 1)
	pre, err := preprocess.Preprocess(images.PlanesFromImage(req.Image), p.model.InputSize())
	done()
	if err != nil {
		return nil, err
	}

	prompt, err := BuildPrompt(req.Sketch, req.Image.Bounds(), pre.Scale)
	if err != nil {
		return nil, err
	}

	done = p.timings.StartOperation("segment", 1)
	out, err := p.model.Segment(ctx, pre, prompt)
	done()
	if err != nil {
		return nil, err
	}
	if req.MaskIndex >= len(out.Masks) {
		return nil, fmt.Errorf("%w: %d of %d", ErrMaskIndex, req.MaskIndex, len(out.Masks))
	}

	done = p.timings.StartOperation("postprocess", 1)
	defer done()

	mask, err := PostProcess(out.Masks[req.MaskIndex], pre, p.clip)
	if err != nil {
		return nil, err
	}

	c := p.palette.Next()
	if req.Color != nil {
		c = *req.Color
	}

	overlay, err := Overlay(pre.Origin, mask, c)
	if err != nil {
		return nil, err
	}

	var iou float32
	if req.MaskIndex < len(out.IoU) {
		iou = out.IoU[req.MaskIndex]
	}

	p.logger.Debug("segmented",
		zap.Stringer("box", prompt.Box),
		zap.Int("mask_out_idx", req.MaskIndex),
		zap.Float32("iou", iou),
		zap.Int("mask_pixels", mask.Count()),
	)

	return &Response{
		Box:           prompt.Box.Scale(1 / pre.Scale),
		IoU:           iou,
		Color:         c,
		ImageWithMask: overlay,
		Mask:          mask.Gray(),
	}, nil
}
