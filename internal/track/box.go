package track

import "math"

// Box is an axis-aligned bounding box in pixel coordinates,
// (X1,Y1) top-left and (X2,Y2) bottom-right.
type Box struct {
	X1, Y1, X2, Y2 float64
}

// NewBox builds a Box from a [x1, y1, x2, y2] slice-style quad.
func NewBox(x1, y1, x2, y2 float64) Box {
	return Box{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// Valid reports whether the box has positive width and height.
func (b Box) Valid() bool {
	return b.X2 > b.X1 && b.Y2 > b.Y1
}

// Width returns the box width in pixels.
func (b Box) Width() float64 { return b.X2 - b.X1 }

// Height returns the box height in pixels.
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

// Area returns the box area in square pixels, zero for degenerate boxes.
func (b Box) Area() float64 {
	if !b.Valid() {
		return 0
	}
	return b.Width() * b.Height()
}

// AspectRatio returns width/height, with a 1.0 fallback on zero height so
// degenerate geometry never divides by zero.
func (b Box) AspectRatio() float64 {
	h := b.Height()
	if h <= 0 {
		return 1.0
	}
	return b.Width() / h
}

// IoU computes intersection-over-union with another box. Disjoint boxes
// and zero-union degenerate pairs return 0.
func (b Box) IoU(o Box) float64 {
	ix1 := math.Max(b.X1, o.X1)
	iy1 := math.Max(b.Y1, o.Y1)
	ix2 := math.Min(b.X2, o.X2)
	iy2 := math.Min(b.Y2, o.Y2)
	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}
	inter := (ix2 - ix1) * (iy2 - iy1)
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Truncate drops the fractional part of every coordinate, mirroring
// integer pixel coordinates.
func (b Box) Truncate() Box {
	return Box{
		X1: math.Trunc(b.X1),
		Y1: math.Trunc(b.Y1),
		X2: math.Trunc(b.X2),
		Y2: math.Trunc(b.Y2),
	}
}

// Coords returns the box as integer [x1, y1, x2, y2] coordinates.
func (b Box) Coords() [4]int {
	return [4]int{int(b.X1), int(b.Y1), int(b.X2), int(b.Y2)}
}
