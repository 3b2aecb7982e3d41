package images

import (
	"image"
	"image/color"
)

// Mask is a single-channel float32 map, row major.
//
// Model outputs are masks of logits or probabilities; after Binarize every
// value is exactly 0 or 1.
type Mask struct {
	Width  int
	Height int
	Data   []float32
}

// NewMask allocates a zero-filled mask.
func NewMask(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Data: make([]float32, width*height)}
}

// MaskFromData wraps an existing slice. The slice must hold width*height values.
func MaskFromData(width, height int, data []float32) *Mask {
	return &Mask{Width: width, Height: height, Data: data}
}

// At returns the value at (x, y).
func (m *Mask) At(x, y int) float32 {
	return m.Data[y*m.Width+x]
}

// Crop returns a copy of the top-left width x height region.
//
// Arguments:
//   - width: The width of the region to keep, clamped to the mask width.
//   - height: The height of the region to keep, clamped to the mask height.
//
// Returns:
//   - *Mask: The cropped copy.
func (m *Mask) Crop(width, height int) *Mask {
	width = min(width, m.Width)
	height = min(height, m.Height)
	out := NewMask(width, height)
	for y := 0; y < height; y++ {
		copy(out.Data[y*width:(y+1)*width], m.Data[y*m.Width:y*m.Width+width])
	}
	return out
}

// Resize bilinearly resizes the mask.
func (m *Mask) Resize(width, height int) *Mask {
	p := ResizePlanes(&Planes{Width: m.Width, Height: m.Height, Channels: 1, Pix: m.Data}, width, height)
	return &Mask{Width: p.Width, Height: p.Height, Data: p.Pix}
}

// Binarize maps values below threshold to 0 and the rest to 1.
//
// Applying Binarize to an already binary mask with a threshold in (0, 1]
// returns an identical mask.
//
// Arguments:
//   - threshold: The cutoff; values >= threshold become 1.
//
// Returns:
//   - *Mask: A new binary mask.
func (m *Mask) Binarize(threshold float32) *Mask {
	out := NewMask(m.Width, m.Height)
	for i, v := range m.Data {
		if v >= threshold {
			out.Data[i] = 1
		}
	}
	return out
}

// Count returns the number of strictly positive values.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v > 0 {
			n++
		}
	}
	return n
}

// Gray renders the mask as 8-bit grayscale, scaling 1.0 to 255.
func (m *Mask) Gray() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, v := range m.Data {
		img.Pix[i] = saturate(v * 255)
	}
	return img
}

// BinaryGray converts a sketch to a single channel image where every non-zero
// luma value becomes 255.
//
// Luma uses the ITU-R BT.601 weights (0.299, 0.587, 0.114).
//
// Arguments:
//   - img: The sketch layer, typically RGB(A) strokes on black or transparent.
//
// Returns:
//   - *image.Gray: A 0/255 image with the same bounds origin at (0, 0).
func BinaryGray(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			g := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			if g.Y > 0 {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// BoundingRect returns the smallest rectangle containing every non-zero pixel.
//
// An image without any non-zero pixel yields the zero rectangle, whose width
// and height are both zero. Callers decide whether that is an error.
//
// Arguments:
//   - img: A single channel image.
//
// Returns:
//   - image.Rectangle: The bounds, with Max exclusive.
func BoundingRect(img *image.Gray) image.Rectangle {
	b := img.Bounds()
	minX, minY := b.Max.X, b.Max.Y
	maxX, maxY := b.Min.X-1, b.Min.Y-1

	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for x := b.Min.X; x < b.Max.X; x++ {
			if row[x-b.Min.X] == 0 {
				continue
			}
			minX = min(minX, x)
			maxX = max(maxX, x)
			minY = min(minY, y)
			maxY = max(maxY, y)
		}
	}

	if maxX < minX || maxY < minY {
		return image.Rectangle{}
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}
