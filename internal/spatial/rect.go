package spatial

import (
	"fmt"
	"math"
)

// Rect is an axis-aligned rectangle. Bounds are inclusive on every side.
type Rect struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// NewRect builds a rectangle from two opposite corners in any order.
func NewRect(x1, y1, x2, y2 float64) Rect {
	return Rect{
		MinX: math.Min(x1, x2),
		MinY: math.Min(y1, y2),
		MaxX: math.Max(x1, x2),
		MaxY: math.Max(y1, y2),
	}
}

func (r Rect) CenterX() float64 { return (r.MinX + r.MaxX) / 2 }
func (r Rect) CenterY() float64 { return (r.MinY + r.MaxY) / 2 }

// ContainsOrEquals reports whether (x, y) lies inside r or on its border.
func (r Rect) ContainsOrEquals(x, y float64) bool {
	return x >= r.MinX && y >= r.MinY && x <= r.MaxX && y <= r.MaxY
}

// Intersects reports whether the two rectangles share at least one point.
func (r Rect) Intersects(o Rect) bool {
	if r.MaxX < r.MinX || r.MaxY < r.MinY {
		return false
	}
	return o.MaxX >= r.MinX && o.MaxY >= r.MinY && o.MinX <= r.MaxX && o.MinY <= r.MaxY
}

// Union returns the smallest rectangle containing both r and o.
func (r Rect) Union(o Rect) Rect {
	return Rect{
		MinX: math.Min(r.MinX, o.MinX),
		MinY: math.Min(r.MinY, o.MinY),
		MaxX: math.Max(r.MaxX, o.MaxX),
		MaxY: math.Max(r.MaxY, o.MaxY),
	}
}

// Extend grows r so that it contains (x, y).
func (r Rect) Extend(x, y float64) Rect {
	return r.Union(Rect{MinX: x, MinY: y, MaxX: x, MaxY: y})
}

// MinDistance is the smallest Euclidean distance from (x, y) to any point of r.
// It is zero when the point lies inside r.
func (r Rect) MinDistance(x, y float64) float64 {
	var dx, dy float64
	if x < r.MinX {
		dx = r.MinX - x
	} else if x > r.MaxX {
		dx = x - r.MaxX
	}
	if y < r.MinY {
		dy = r.MinY - y
	} else if y > r.MaxY {
		dy = y - r.MaxY
	}
	return math.Sqrt(dx*dx + dy*dy)
}

// MaxDistance is the largest Euclidean distance from (x, y) to any point of r.
func (r Rect) MaxDistance(x, y float64) float64 {
	dx := math.Max(math.Abs(r.MinX-x), math.Abs(r.MaxX-x))
	dy := math.Max(math.Abs(r.MinY-y), math.Abs(r.MaxY-y))
	return math.Sqrt(dx*dx + dy*dy)
}

func (r Rect) String() string {
	return fmt.Sprintf("[(%g,%g) (%g,%g)]", r.MinX, r.MinY, r.MaxX, r.MaxY)
}

func distance(x1, y1, x2, y2 float64) float64 {
	dx := x1 - x2
	dy := y1 - y2
	return math.Sqrt(dx*dx + dy*dy)
}
