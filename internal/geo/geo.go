// Package geo holds the pure geometry helpers consumed by the board engine:
// polyline simplification, bounding boxes, rect containment, and the frame
// layout functions that place each frame's rectangle on the shared canvas.
package geo

import "math"

// Frame layout constants. Frame i spans
// [FrameOriginX(i), FrameOriginX(i)+BoardWidth] x [FrameOriginY, FrameOriginY+BoardHeight].
const (
	BoardWidth   = 4000.0
	BoardHeight  = 3000.0
	FrameGap     = 200.0
	FrameOriginY = -1500.0
)

// FrameOriginX returns the left edge of frame i. Frame 0 is centered on the
// origin; subsequent frames are laid out to the right with a fixed gap.
func FrameOriginX(index int) float64 {
	return float64(index)*(BoardWidth+FrameGap) - BoardWidth/2
}

// Point is a 2D point.
type Point struct {
	X, Y float64
}

// Rect is an axis-aligned rectangle.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

// FrameRect returns the rectangle covered by frame i.
func FrameRect(index int) Rect {
	x := FrameOriginX(index)
	return Rect{
		MinX: x,
		MinY: FrameOriginY,
		MaxX: x + BoardWidth,
		MaxY: FrameOriginY + BoardHeight,
	}
}

// Contains reports whether the point lies inside the rectangle, bounds
// inclusive.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.MinX && x <= r.MaxX && y >= r.MinY && y <= r.MaxY
}

// BoundingBox returns the smallest rect covering all points. The zero rect is
// returned for an empty slice.
func BoundingBox(points []Point) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	r := Rect{MinX: points[0].X, MinY: points[0].Y, MaxX: points[0].X, MaxY: points[0].Y}
	for _, p := range points[1:] {
		r.MinX = math.Min(r.MinX, p.X)
		r.MinY = math.Min(r.MinY, p.Y)
		r.MaxX = math.Max(r.MaxX, p.X)
		r.MaxY = math.Max(r.MaxY, p.Y)
	}
	return r
}

// Midpoint returns the average of the first and last point of a polyline,
// not the centroid of all points. Cascade deletion uses it to decide whether
// an unconnected line belongs to a frame.
func Midpoint(points []Point) (Point, bool) {
	if len(points) < 2 {
		return Point{}, false
	}
	first, last := points[0], points[len(points)-1]
	return Point{X: (first.X + last.X) / 2, Y: (first.Y + last.Y) / 2}, true
}

// Simplify reduces a polyline with the Ramer-Douglas-Peucker algorithm,
// keeping every point whose perpendicular distance from the simplified
// segments exceeds epsilon.
func Simplify(points []Point, epsilon float64) []Point {
	if len(points) <= 2 {
		return points
	}

	first := points[0]
	last := points[len(points)-1]

	maxDist := 0.0
	maxIdx := 0
	for i := 1; i < len(points)-1; i++ {
		if d := PerpendicularDistance(points[i], first, last); d > maxDist {
			maxDist = d
			maxIdx = i
		}
	}

	if maxDist > epsilon {
		left := Simplify(points[:maxIdx+1], epsilon)
		right := Simplify(points[maxIdx:], epsilon)
		return append(left[:len(left)-1:len(left)-1], right...)
	}
	return []Point{first, last}
}

// PerpendicularDistance returns the distance from point to the line through
// lineStart and lineEnd. Degenerate segments fall back to point distance.
func PerpendicularDistance(point, lineStart, lineEnd Point) float64 {
	dx := lineEnd.X - lineStart.X
	dy := lineEnd.Y - lineStart.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(point.X-lineStart.X, point.Y-lineStart.Y)
	}
	num := math.Abs(dy*point.X - dx*point.Y + lineEnd.X*lineStart.Y - lineEnd.Y*lineStart.X)
	return num / math.Sqrt(lenSq)
}
