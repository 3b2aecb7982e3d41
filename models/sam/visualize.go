package sam

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/nvr-ai/go-vision/images"
	"gocv.io/x/gocv"
)

// MaskBlend is the weight of the original image under the mask colour.
const MaskBlend float32 = 0.5

var contourColor = color.RGBA{R: 255, G: 255, B: 255, A: 0}

// Overlay paints a binary mask onto the original image.
//
// Pixels inside the mask become saturate(round(0.5*orig + colour)), rounding
// halves to even; pixels
// outside keep their original value. The mask outline is traced with OpenCV
// (tree retrieval, simple chain approximation) and drawn in white, 1px wide.
//
// Arguments:
//   - origin: The original RGB image, values in [0, 255].
//   - mask: A binary mask with the same size as origin.
//   - c: The mask colour.
//
// Returns:
//   - *image.RGBA: The visualisation.
//   - error: An error if the sizes differ or OpenCV rejects the buffers.
func Overlay(origin *images.Planes, mask *images.Mask, c color.RGBA) (*image.RGBA, error) {
	if origin.Width != mask.Width || origin.Height != mask.Height {
		return nil, fmt.Errorf("mask %dx%d does not match image %dx%d",
			mask.Width, mask.Height, origin.Width, origin.Height)
	}

	w, h := origin.Width, origin.Height
	tint := [3]float32{float32(c.R), float32(c.G), float32(c.B)}

	blended := origin.Clone()
	images.Parallel(h, func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < w; x++ {
				if mask.At(x, y) != 1 {
					continue
				}
				i := blended.Offset(x, y, 0)
				for ch := 0; ch < 3; ch++ {
					// Half to even, as saturate_cast does.
					v := math.RoundToEven(float64(MaskBlend*origin.Pix[i+ch] + tint[ch]))
					blended.Pix[i+ch] = images.Clamp(float32(v), 0, 255)
				}
			}
		}
	})

	out := blended.RGBA()
	if err := drawContours(out, mask.Gray()); err != nil {
		return nil, err
	}
	return out, nil
}

// drawContours traces the mask outline and draws it onto dst in place.
func drawContours(dst *image.RGBA, gray *image.Gray) error {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()

	maskMat, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC1, gray.Pix)
	if err != nil {
		return fmt.Errorf("failed to wrap mask: %w", err)
	}
	defer maskMat.Close()

	contours := gocv.FindContours(maskMat, gocv.RetrievalTree, gocv.ChainApproxSimple)
	defer contours.Close()
	if contours.Size() == 0 {
		return nil
	}

	rgb := make([]byte, 0, w*h*3)
	for i := 0; i < len(dst.Pix); i += 4 {
		rgb = append(rgb, dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2])
	}

	canvas, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC3, rgb)
	if err != nil {
		return fmt.Errorf("failed to wrap overlay: %w", err)
	}
	defer canvas.Close()

	gocv.DrawContours(&canvas, contours, -1, contourColor, 1)

	drawn := canvas.ToBytes()
	for p := 0; p < w*h; p++ {
		dst.Pix[p*4+0] = drawn[p*3+0]
		dst.Pix[p*4+1] = drawn[p*3+1]
		dst.Pix[p*4+2] = drawn[p*3+2]
	}
	return nil
}
