package preprocess

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/nfnt/resize"
)

// LetterboxColor is the YOLO padding gray.
var LetterboxColor = color.RGBA{R: 114, G: 114, B: 114, A: 255}

// PreprocessingResult contains a letterboxed tensor and its geometry.
type PreprocessingResult struct {
	// Data is the [3, size, size] float32 tensor scaled to [0, 1].
	Data []float32
	// OriginalWidth is the original image width before preprocessing.
	OriginalWidth int
	// OriginalHeight is the original image height before preprocessing.
	OriginalHeight int
	// Scale is the uniform factor applied to the original image.
	Scale float64
	// PadLeft is the left padding applied for letterboxing.
	PadLeft int
	// PadTop is the top padding applied for letterboxing.
	PadTop int
}

// Letterbox resizes an image into a size x size square keeping its aspect
// ratio, centres it on LetterboxColor and returns a planar RGB tensor.
//
// Arguments:
//   - img: The input image.
//   - size: The square network input side.
//
// Returns:
//   - *PreprocessingResult: The tensor plus the scale and padding needed to undo it.
//
// @example
// res := Letterbox(img, 640)
func Letterbox(img image.Image, size int) *PreprocessingResult {
	bounds := img.Bounds()
	srcWidth, srcHeight := bounds.Dx(), bounds.Dy()

	// Calculate scale to maintain aspect ratio.
	scale := min(float64(size)/float64(srcWidth), float64(size)/float64(srcHeight))
	newWidth := max(int(float64(srcWidth)*scale), 1)
	newHeight := max(int(float64(srcHeight)*scale), 1)

	resized := resize.Resize(uint(newWidth), uint(newHeight), img, resize.Bilinear)

	padLeft := (size - newWidth) / 2
	padTop := (size - newHeight) / 2

	letterboxed := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(letterboxed, letterboxed.Bounds(), &image.Uniform{LetterboxColor}, image.Point{}, draw.Src)
	draw.Draw(letterboxed, image.Rect(padLeft, padTop, padLeft+newWidth, padTop+newHeight),
		resized, resized.Bounds().Min, draw.Src)

	return &PreprocessingResult{
		Data:           ToCHW(letterboxed, 1.0/255.0),
		OriginalWidth:  srcWidth,
		OriginalHeight: srcHeight,
		Scale:          scale,
		PadLeft:        padLeft,
		PadTop:         padTop,
	}
}

// ToCHW converts an RGBA image to a planar RGB tensor multiplied by factor.
func ToCHW(img *image.RGBA, factor float32) []float32 {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	plane := width * height
	out := make([]float32, 3*plane)

	for y := 0; y < height; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < width; x++ {
			i := y*width + x
			out[i] = float32(row[x*4+0]) * factor
			out[plane+i] = float32(row[x*4+1]) * factor
			out[2*plane+i] = float32(row[x*4+2]) * factor
		}
	}

	return out
}

// Unletterbox maps a point from letterboxed input space to original pixels.
func (r *PreprocessingResult) Unletterbox(x, y float32) (float32, float32) {
	s := float32(r.Scale)
	return (x - float32(r.PadLeft)) / s, (y - float32(r.PadTop)) / s
}
