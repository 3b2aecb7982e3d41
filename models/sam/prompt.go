// Package sam - Promptable segmentation with Segment Anything style ONNX models.
//
// A request flows through preprocessing, prompt construction, the encoder
// and decoder sessions, then mask post-processing and visualisation.
package sam

import (
	"errors"
	"fmt"
	"image"

	"github.com/nvr-ai/go-vision/images"
)

var (
	// ErrEmptyPrompt is returned when the sketch has no marked pixel.
	ErrEmptyPrompt = errors.New("sketch is empty, circle the target first")
	// ErrSketchSize is returned when the sketch and the image differ in size.
	ErrSketchSize = errors.New("sketch size does not match image size")
	// ErrMaskIndex is returned when the requested mask index is out of range.
	ErrMaskIndex = errors.New("mask index out of range")
)

// Box point labels used by the decoder for the top-left and bottom-right corners.
const (
	LabelBoxTopLeft     float32 = 2
	LabelBoxBottomRight float32 = 3
)

// Prompt is the decoder prompt in model-input pixel space.
//
// Only box prompts are produced by this package. Points and Mask exist so the
// decoder contract is explicit and stay nil.
type Prompt struct {
	Box    images.Rect
	Points []PromptPoint
	Mask   *images.Mask
}

// PromptPoint is a labelled click.
type PromptPoint struct {
	X, Y  float32
	Label float32
}

// BuildPrompt derives a box prompt from a user sketch.
//
// The sketch is reduced to luma, every non-zero pixel is marked, and the
// smallest rectangle around the marks is scaled by the preprocessing factor.
//
// Arguments:
//   - sketch: The drawn layer, same size as the image.
//   - bounds: The size of the image the sketch was drawn on.
//   - scale: The preprocessing resize factor.
//
// Returns:
//   - *Prompt: The box prompt in model-input space.
//   - error: ErrSketchSize or ErrEmptyPrompt.
//
// @example
// prompt, err := BuildPrompt(sketch, img.Bounds(), pre.Scale)
func BuildPrompt(sketch image.Image, bounds image.Rectangle, scale float32) (*Prompt, error) {
	if sketch.Bounds().Dx() != bounds.Dx() || sketch.Bounds().Dy() != bounds.Dy() {
		return nil, fmt.Errorf("%w: sketch %dx%d, image %dx%d", ErrSketchSize,
			sketch.Bounds().Dx(), sketch.Bounds().Dy(), bounds.Dx(), bounds.Dy())
	}

	rect := images.BoundingRect(images.BinaryGray(sketch))
	if rect.Empty() {
		return nil, ErrEmptyPrompt
	}

	return &Prompt{Box: images.RectFromImage(rect).Scale(scale)}, nil
}

// Tensors encodes the box as two labelled corner points.
//
// Returns:
//   - coords: [x1, y1, x2, y2] for a [1, 2, 2] point_coords tensor.
//   - labels: [2, 3] for a [1, 2] point_labels tensor.
func (p *Prompt) Tensors() (coords []float32, labels []float32) {
	coords = []float32{p.Box.X1, p.Box.Y1, p.Box.X2, p.Box.Y2}
	labels = []float32{LabelBoxTopLeft, LabelBoxBottomRight}
	return coords, labels
}
