// Package images - Geometry primitives for detection boxes.
package images

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
)

// Rect is an axis-aligned bounding box in pixel coordinates of the original image.
type Rect struct {
	// X1,Y1 is the top-left corner (left, top).
	X1, Y1 float32
	// X2,Y2 is the bottom-right corner (right, bottom).
	X2, Y2 float32
}

// Width returns the horizontal extent of the box (negative for inverted boxes).
func (r Rect) Width() float32 {
	return r.X2 - r.X1
}

// Height returns the vertical extent of the box (negative for inverted boxes).
func (r Rect) Height() float32 {
	return r.Y2 - r.Y1
}

// Area returns Width * Height.
func (r Rect) Area() float32 {
	return r.Width() * r.Height()
}

// String formats the rectangle corners.
func (r Rect) String() string {
	return fmt.Sprintf("(%.2f, %.2f), (%.2f, %.2f)", r.X1, r.Y1, r.X2, r.Y2)
}

// Rectangle rounds the box to integer pixel coordinates for drawing.
func (r Rect) Rectangle() image.Rectangle {
	return image.Rect(
		int(math32.Round(r.X1)), int(math32.Round(r.Y1)),
		int(math32.Round(r.X2)), int(math32.Round(r.Y2)),
	)
}

// FromCenter converts a (center-x, center-y, width, height) box to corners and clamps the
// result to [0, bounds.Width] x [0, bounds.Height].
//
// Arguments:
//   - cx, cy: The center of the box in pixels.
//   - w, h: The width and height of the box in pixels.
//   - bounds: The size of the image the box must stay inside of.
//
// Returns:
//   - Rect: The clamped corner box.
func FromCenter(cx, cy, w, h float32, bounds Size) Rect {
	return Rect{
		X1: math32.Max(0, cx-w/2),
		Y1: math32.Max(0, cy-h/2),
		X2: math32.Min(float32(bounds.Width), cx+w/2),
		Y2: math32.Min(float32(bounds.Height), cy+h/2),
	}
}

// CalculateIntersection returns the overlapping area of two rectangles, or 0 when they do
// not overlap.
func CalculateIntersection(r, o Rect) float32 {
	w := math32.Min(r.X2, o.X2) - math32.Max(r.X1, o.X1)
	h := math32.Min(r.Y2, o.Y2) - math32.Max(r.Y1, o.Y1)
	if w < 0 || h < 0 {
		return 0
	}
	return w * h
}

// CalculateUnion returns Area(r) + Area(o) - Intersection(r, o).
func CalculateUnion(r, o Rect) float32 {
	return r.Area() + o.Area() - CalculateIntersection(r, o)
}

// CalculateIoU measures how much two rectangles overlap as
//
//	IoU = Area of Intersection / Area of Union
//
// A value of 1.0 means the rectangles are identical and 0.0 means they do not overlap.
// The result is symmetric in its arguments.
//
// When the union is zero or negative both boxes are degenerate (zero area) and there is no
// meaningful overlap, so 0.0 is returned rather than dividing.
//
// Arguments:
//   - r: The first rectangle.
//   - o: The other rectangle to compare against.
//
// Returns:
//   - float32: A value between 0.0 and 1.0 representing the IoU score.
//
// Example Usage:
// ```go
//
//	a := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	b := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
//	CalculateIoU(a, b) // 25 / 175 = 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	union := CalculateUnion(r, o)
	if union <= 0 {
		return 0
	}
	return CalculateIntersection(r, o) / union
}
