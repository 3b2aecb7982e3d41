// Package preprocess - Image preprocessing for the segmentation and detection networks.
package preprocess

import (
	"fmt"
	"math"

	"github.com/nvr-ai/go-vision/images"
	"gorgonia.org/tensor"
)

// ImageNet channel statistics in the 0-255 range, RGB order.
var (
	Mean = [3]float32{123.675, 116.28, 103.53}
	Std  = [3]float32{58.395, 57.12, 57.375}
)

// DefaultInputSize is the long side the segmentation encoder expects.
const DefaultInputSize = 1024

// Result contains the preprocessed image and the geometry needed to map
// model-space coordinates back onto the original image.
type Result struct {
	// Origin is the untouched RGB image, values in [0, 255].
	Origin *images.Planes
	// Padded is the normalised image written top-left into a zero-filled
	// [S, S, 3] tensor, S = max(ScaledSize).
	Padded *tensor.Dense
	// Scale is the factor applied to the original image.
	Scale float32
	// ScaledSize is [resize_h, resize_w].
	ScaledSize [2]int
	// OriginSize is [h, w].
	OriginSize [2]int
}

// Size returns S, the side of the square padded buffer.
func (r *Result) Size() int {
	return max(r.ScaledSize[0], r.ScaledSize[1])
}

// Data returns the padded HWC backing slice.
func (r *Result) Data() []float32 {
	return r.Padded.Data().([]float32)
}

// CHW returns a planar copy of the padded buffer, the [1, 3, S, S] layout the
// image encoder consumes.
func (r *Result) CHW() []float32 {
	s := r.Size()
	hwc := r.Data()
	out := make([]float32, 3*s*s)
	plane := s * s

	images.Parallel(s, func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < s; x++ {
				i := y*s + x
				out[i] = hwc[i*3+0]
				out[plane+i] = hwc[i*3+1]
				out[2*plane+i] = hwc[i*3+2]
			}
		}
	})

	return out
}

// Preprocess resizes an image so its long side equals resize, normalises it
// and pads it to a square.
//
// The scaled size uses round-half-to-even so that 2.5 rounds to 2, matching
// the reference pipeline. Padding is always bottom and right, so a box
// scaled by Result.Scale addresses the same content in the padded buffer.
//
// Arguments:
//   - img: An RGB image with values in [0, 255].
//   - resize: The target long side, usually DefaultInputSize.
//
// Returns:
//   - *Result: The padded tensor and geometry.
//   - error: An error if the image is empty or resize is not positive.
//
// @example
//
//	res, err := Preprocess(images.PlanesFromImage(img), DefaultInputSize)
//	if err != nil {
//	    return err
//	}
//	encoderInput := res.CHW()
func Preprocess(img *images.Planes, resize int) (*Result, error) {
	if img == nil || img.Width <= 0 || img.Height <= 0 {
		return nil, fmt.Errorf("invalid image dimensions")
	}
	if img.Channels != 3 {
		return nil, fmt.Errorf("expected 3 channels, got %d", img.Channels)
	}
	if resize <= 0 {
		return nil, fmt.Errorf("invalid resize %d", resize)
	}

	h, w := img.Height, img.Width
	factor := float64(resize) / float64(max(h, w))
	resizeH := int(math.RoundToEven(float64(h) * factor))
	resizeW := int(math.RoundToEven(float64(w) * factor))
	resizeH, resizeW = max(resizeH, 1), max(resizeW, 1)

	scaled := images.ResizePlanes(img, resizeW, resizeH)
	Normalize(scaled)

	s := max(resizeH, resizeW)
	buf := make([]float32, s*s*3)
	for y := 0; y < resizeH; y++ {
		copy(buf[y*s*3:y*s*3+resizeW*3], scaled.Pix[y*resizeW*3:(y+1)*resizeW*3])
	}

	return &Result{
		Origin:     img.Clone(),
		Padded:     tensor.New(tensor.WithShape(s, s, 3), tensor.WithBacking(buf)),
		Scale:      float32(factor),
		ScaledSize: [2]int{resizeH, resizeW},
		OriginSize: [2]int{h, w},
	}, nil
}

// Normalize applies (v - Mean) / Std per channel in place.
func Normalize(p *images.Planes) {
	images.Parallel(p.Height, func(start, end int) {
		for i := start * p.Width * 3; i < end*p.Width*3; i += 3 {
			p.Pix[i+0] = (p.Pix[i+0] - Mean[0]) / Std[0]
			p.Pix[i+1] = (p.Pix[i+1] - Mean[1]) / Std[1]
			p.Pix[i+2] = (p.Pix[i+2] - Mean[2]) / Std[2]
		}
	})
}
