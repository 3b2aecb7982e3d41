// Package images - provides idempotent float32 image operations used by the
// segmentation and detection preprocessing pipelines.
package images

import (
	"runtime"
	"sync"

	"github.com/chewxy/math32"
)

// ResizePlanes performs bilinear resizing of an interleaved float32 buffer.
//
// Sample positions use half-pixel centres and borders are replicated, which is
// the convention OpenCV's INTER_LINEAR uses. No antialiasing is applied when
// downscaling.
//
// Arguments:
//   - src: The source planes.
//   - width: The target width in pixels.
//   - height: The target height in pixels.
//
// Returns:
//   - *Planes: A new buffer with the same channel count as src.
//
// @example
// resized := ResizePlanes(planes, 512, 1024)
func ResizePlanes(src *Planes, width, height int) *Planes {
	dst := NewPlanes(width, height, src.Channels)
	if width <= 0 || height <= 0 || src.Width == 0 || src.Height == 0 {
		return dst
	}

	// Same size is a straight copy so the operation stays idempotent.
	if src.Width == width && src.Height == height {
		copy(dst.Pix, src.Pix)
		return dst
	}

	xs := linearTaps(src.Width, width)
	ys := linearTaps(src.Height, height)
	ch := src.Channels

	Parallel(height, func(partStart, partEnd int) {
		for y := partStart; y < partEnd; y++ {
			ty := ys[y]
			row0 := ty.i0 * src.Width * ch
			row1 := ty.i1 * src.Width * ch
			out := y * width * ch

			for x := 0; x < width; x++ {
				tx := xs[x]
				a := tx.i0 * ch
				b := tx.i1 * ch
				for c := 0; c < ch; c++ {
					top := src.Pix[row0+a+c]*(1-tx.w) + src.Pix[row0+b+c]*tx.w
					bottom := src.Pix[row1+a+c]*(1-tx.w) + src.Pix[row1+b+c]*tx.w
					dst.Pix[out+x*ch+c] = top*(1-ty.w) + bottom*ty.w
				}
			}
		}
	})

	return dst
}

// tap is the pair of source indices and the weight of the second one.
type tap struct {
	i0, i1 int
	w      float32
}

// linearTaps pre-computes the bilinear contributions along one axis.
func linearTaps(srcSize, dstSize int) []tap {
	taps := make([]tap, dstSize)
	scale := float32(srcSize) / float32(dstSize)

	for d := 0; d < dstSize; d++ {
		f := (float32(d)+0.5)*scale - 0.5
		i0 := int(math32.Floor(f))
		w := f - float32(i0)

		if i0 < 0 {
			i0, w = 0, 0
		}
		if i0 >= srcSize-1 {
			i0, w = srcSize-1, 0
		}

		i1 := i0 + 1
		if i1 > srcSize-1 {
			i1 = srcSize - 1
		}
		taps[d] = tap{i0: i0, i1: i1, w: w}
	}

	return taps
}

// Clamp restricts a value to the specified range [min, max].
//
// Arguments:
// - value: The value to Clamp.
// - min: Minimum allowed value.
// - max: Maximum allowed value.
//
// Returns:
// - The clamped value within [min, max].
//
// @example
// clamped := Clamp(300.5, 0, 255) // Returns 255
func Clamp(value, min, max float32) float32 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// Parallel executes a function in Parallel across multiple goroutines.
//
// Arguments:
// - dataSize: The size of the data to process.
// - fn: Function to execute for each partition (receives start and end indices).
//
// @example
//
//	Parallel(height, func(start, end int) {
//	    for y := start; y < end; y++ {
//	        // Process row y
//	    }
//	})
func Parallel(dataSize int, fn func(partStart, partEnd int)) {
	numGoroutines := runtime.NumCPU()

	// For small data sizes, parallel processing overhead isn't worth it.
	if dataSize < numGoroutines*2 {
		fn(0, dataSize)
		return
	}

	partSize := dataSize / numGoroutines

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		partStart := i * partSize
		partEnd := partStart + partSize

		// Last partition gets any remaining data.
		if i == numGoroutines-1 {
			partEnd = dataSize
		}

		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(partStart, partEnd)
	}

	wg.Wait()
}
