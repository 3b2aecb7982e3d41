package sam

import (
	"fmt"

	"github.com/nvr-ai/go-vision/images"
	"github.com/nvr-ai/go-vision/models/model/preprocess"
)

// DefaultClipThreshold binarises the resized mask.
const DefaultClipThreshold float32 = 0.5

// PostProcess maps one padded-space decoder map back onto the original image.
//
// The map is cropped to the scaled (unpadded) region, resized bilinearly to
// the original size and thresholded so every value is 0 or 1.
//
// Arguments:
//   - raw: A Size*Size decoder map.
//   - pre: The preprocessing result the prompt was built from.
//   - clip: The binarisation threshold.
//
// Returns:
//   - *images.Mask: The binary mask at original resolution.
//   - error: An error if raw does not match the padded size.
func PostProcess(raw []float32, pre *preprocess.Result, clip float32) (*images.Mask, error) {
	s := pre.Size()
	if len(raw) != s*s {
		return nil, fmt.Errorf("mask has %d values, want %d", len(raw), s*s)
	}

	rh, rw := pre.ScaledSize[0], pre.ScaledSize[1]
	h, w := pre.OriginSize[0], pre.OriginSize[1]

	return images.MaskFromData(s, s, raw).
		Crop(rw, rh).
		Resize(w, h).
		Binarize(clip), nil
}
