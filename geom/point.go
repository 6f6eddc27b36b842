package geom

import "math"

// Epsilon is the coordinate tolerance used when comparing points
const Epsilon = 1e-3

// Point is a 2D position in map space
type Point struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// Pt is shorthand for Point{x, y}
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Add returns p+q
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Distance returns the distance between two points
func Distance(a, b Point) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Near reports whether two points coincide within Epsilon
func Near(a, b Point) bool {
	return Distance(a, b) < Epsilon
}

// Polar returns the offset of length dist at angle rad
func Polar(rad, dist float64) Point {
	return Point{X: math.Cos(rad) * dist, Y: math.Sin(rad) * dist}
}

// Orient returns the 2D cross product of (b-a) and (c-a).
// Positive when a, b, c wind counter-clockwise.
func Orient(a, b, c Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

// Clamp restricts v to [min, max]
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Bounds is an axis-aligned rectangle
type Bounds struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// Centered returns bounds of the given size centered on the origin
func Centered(width, height float64) Bounds {
	return Bounds{MinX: -width / 2, MinY: -height / 2, MaxX: width / 2, MaxY: height / 2}
}

// Contains reports whether p lies inside b (edges included)
func (b Bounds) Contains(p Point) bool {
	return p.X >= b.MinX && p.X <= b.MaxX && p.Y >= b.MinY && p.Y <= b.MaxY
}

// BoundingBox returns the smallest bounds containing every point.
// The zero Bounds is returned for an empty slice.
func BoundingBox(points []Point) Bounds {
	if len(points) == 0 {
		return Bounds{}
	}
	b := Bounds{MinX: math.MaxFloat64, MinY: math.MaxFloat64, MaxX: -math.MaxFloat64, MaxY: -math.MaxFloat64}
	for _, p := range points {
		b.MinX = math.Min(b.MinX, p.X)
		b.MinY = math.Min(b.MinY, p.Y)
		b.MaxX = math.Max(b.MaxX, p.X)
		b.MaxY = math.Max(b.MaxY, p.Y)
	}
	return b
}
