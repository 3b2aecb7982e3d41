// Package images - Image processing utilities
package images

import (
	"fmt"
	"image"
)

// Rect is a lightweight float bounding box in pixel coordinates.
type Rect struct {
	// X2,Y2 are exclusive (like image.Rectangle).
	X1, Y1, X2, Y2 float32
}

// RectFromImage converts an integral rectangle.
func RectFromImage(r image.Rectangle) Rect {
	return Rect{
		X1: float32(r.Min.X),
		Y1: float32(r.Min.Y),
		X2: float32(r.Max.X),
		Y2: float32(r.Max.Y),
	}
}

// Width returns X2-X1.
func (r Rect) Width() float32 { return r.X2 - r.X1 }

// Height returns Y2-Y1.
func (r Rect) Height() float32 { return r.Y2 - r.Y1 }

// Area returns the area, or zero for degenerate boxes.
func (r Rect) Area() float32 {
	if r.Empty() {
		return 0
	}
	return r.Width() * r.Height()
}

// Empty reports whether the box has zero (or negative) width or height.
func (r Rect) Empty() bool {
	return r.X2 <= r.X1 || r.Y2 <= r.Y1
}

// Scale multiplies every coordinate by f.
//
// Arguments:
//   - f: The scale factor, typically the preprocessing resize factor.
//
// Returns:
//   - Rect: The scaled box.
//
// @example
// box := Rect{X1: 10, Y1: 10, X2: 20, Y2: 40}.Scale(10.24)
func (r Rect) Scale(f float32) Rect {
	return Rect{X1: r.X1 * f, Y1: r.Y1 * f, X2: r.X2 * f, Y2: r.Y2 * f}
}

// Clip restricts the box to [0, w] x [0, h].
func (r Rect) Clip(w, h float32) Rect {
	return Rect{
		X1: Clamp(r.X1, 0, w),
		Y1: Clamp(r.Y1, 0, h),
		X2: Clamp(r.X2, 0, w),
		Y2: Clamp(r.Y2, 0, h),
	}
}

// String formats the box as x1,y1,x2,y2.
func (r Rect) String() string {
	return fmt.Sprintf("(%.2f, %.2f), (%.2f, %.2f)", r.X1, r.Y1, r.X2, r.Y2)
}

// CalculateIoU computes the Intersection over Union of two boxes.
//
//	IoU = Area of Intersection / Area of Union
//
// A value of 1.0 means the boxes are identical, 0.0 means they do not overlap.
// Non-overlapping and degenerate inputs return 0 without dividing.
//
// Arguments:
//   - r: The first box.
//   - o: The other box to compare against.
//
// Returns:
//   - float32: A value between 0.0 and 1.0 representing the IoU score.
//
// Example Usage:
// ```go
//
//	rect1 := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	rect2 := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
//
//	iouScore := CalculateIoU(rect1, rect2) // 25 / 175 = 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	// The intersection starts at the larger of the two origins and ends at the
	// smaller of the two far corners.
	ix1 := max(r.X1, o.X1)
	iy1 := max(r.Y1, o.Y1)
	ix2 := min(r.X2, o.X2)
	iy2 := min(r.Y2, o.Y2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH

	// Union(A, B) = Area(A) + Area(B) - Intersection(A, B)
	unionArea := r.Area() + o.Area() - interArea
	if unionArea <= 0 {
		return 0.0
	}

	return interArea / unionArea
}
