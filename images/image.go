// Package images - Image definition for processing utilities.
package images

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/chai2010/webp"
	"github.com/chewxy/math32"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// ImageFormat represents supported image formats.
type ImageFormat string

const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
)

// Planes is an interleaved (HWC) float32 pixel buffer.
type Planes struct {
	// Width is the width in pixels.
	Width int
	// Height is the height in pixels.
	Height int
	// Channels is the number of interleaved channels per pixel.
	Channels int
	// Pix holds Height*Width*Channels values, row major.
	Pix []float32
}

// NewPlanes allocates a zero-filled buffer.
func NewPlanes(width, height, channels int) *Planes {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Planes{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]float32, width*height*channels),
	}
}

// Offset returns the index of channel c of the pixel at (x, y).
func (p *Planes) Offset(x, y, c int) int {
	return (y*p.Width+x)*p.Channels + c
}

// At returns channel c of the pixel at (x, y).
func (p *Planes) At(x, y, c int) float32 {
	return p.Pix[p.Offset(x, y, c)]
}

// Clone returns a deep copy.
func (p *Planes) Clone() *Planes {
	out := NewPlanes(p.Width, p.Height, p.Channels)
	copy(out.Pix, p.Pix)
	return out
}

// PlanesFromImage converts any image into RGB planes with values in [0, 255].
//
// Colour channels are taken without alpha premultiplication, so a
// semi-transparent pixel keeps its stored RGB and alpha is dropped.
//
// Arguments:
//   - img: The source image.
//
// Returns:
//   - *Planes: A 3-channel buffer.
func PlanesFromImage(img image.Image) *Planes {
	b := img.Bounds()
	p := NewPlanes(b.Dx(), b.Dy(), 3)

	switch src := img.(type) {
	case *image.NRGBA:
		p.copyRGB(src.Pix, src.Stride, src.PixOffset(b.Min.X, b.Min.Y))
		return p
	case *image.RGBA:
		if src.Opaque() {
			p.copyRGB(src.Pix, src.Stride, src.PixOffset(b.Min.X, b.Min.Y))
			return p
		}
	}

	Parallel(p.Height, func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < p.Width; x++ {
				c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				i := p.Offset(x, y, 0)
				p.Pix[i+0] = float32(c.R)
				p.Pix[i+1] = float32(c.G)
				p.Pix[i+2] = float32(c.B)
			}
		}
	})
	return p
}

// copyRGB fills p from 4-byte-per-pixel rows, skipping the alpha byte.
func (p *Planes) copyRGB(pix []uint8, stride, origin int) {
	Parallel(p.Height, func(start, end int) {
		for y := start; y < end; y++ {
			src := origin + y*stride
			dst := y * p.Width * 3
			for x := 0; x < p.Width; x++ {
				p.Pix[dst+x*3+0] = float32(pix[src+x*4+0])
				p.Pix[dst+x*3+1] = float32(pix[src+x*4+1])
				p.Pix[dst+x*3+2] = float32(pix[src+x*4+2])
			}
		}
	})
}

// RGBA converts 3-channel planes back to an 8-bit image, saturating each value.
func (p *Planes) RGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			i := p.Offset(x, y, 0)
			img.SetRGBA(x, y, color.RGBA{
				R: saturate(p.Pix[i+0]),
				G: saturate(p.Pix[i+1]),
				B: saturate(p.Pix[i+2]),
				A: 255,
			})
		}
	}
	return img
}

func saturate(v float32) uint8 {
	return uint8(Clamp(math32.Floor(v+0.5), 0, 255))
}

// Decode reads an image, applying its EXIF orientation when present.
//
// WebP payloads are decoded with the dedicated codec; everything else goes
// through the registered standard decoders.
//
// Arguments:
//   - data: The encoded image bytes.
//
// Returns:
//   - image.Image: The decoded image.
//   - error: An error if the payload is empty or cannot be decoded.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image data")
	}

	if DetectFormat(data) == FormatWebP {
		img, err := webp.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "failed to decode webp image")
		}
		return img, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode image")
	}
	return img, nil
}

// DecodeConfig reads only the header of an encoded image.
//
// Arguments:
//   - data: The encoded image bytes.
//
// Returns:
//   - image.Config: The stored width, height and colour model.
//   - error: An error if the payload is empty or the header is unreadable.
func DecodeConfig(data []byte) (image.Config, error) {
	if len(data) == 0 {
		return image.Config{}, errors.New("empty image data")
	}

	if DetectFormat(data) == FormatWebP {
		cfg, err := webp.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return image.Config{}, errors.Wrap(err, "failed to read webp header")
		}
		return cfg, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, errors.Wrap(err, "failed to read image header")
	}
	return cfg, nil
}

// DetectFormat sniffs the container format from the leading magic bytes.
func DetectFormat(data []byte) ImageFormat {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return FormatWebP
	case len(data) >= 8 && string(data[1:4]) == "PNG":
		return FormatPNG
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return FormatJPEG
	default:
		return ""
	}
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return imaging.Encode(w, img, imaging.PNG)
}

// PNGDataURI encodes img as a base64 PNG data URI suitable for <img src>.
func PNGDataURI(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := EncodePNG(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
