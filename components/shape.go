package components

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// ShapeKind tags the Shape variant.
type ShapeKind uint8

const (
	ShapeEdge ShapeKind = iota
	ShapePolygon
	ShapeCircle
)

// String returns the display name of the shape kind.
func (k ShapeKind) String() string {
	switch k {
	case ShapeEdge:
		return "edge"
	case ShapePolygon:
		return "polygon"
	case ShapeCircle:
		return "circle"
	}
	return "unknown"
}

// Shape is a collision and render primitive.
//
// Edge uses Vertices[0:2], Polygon uses a convex counter-clockwise
// vertex list, Circle uses Center and Radius.
type Shape struct {
	Kind     ShapeKind `json:"kind"`
	Vertices []r2.Vec  `json:"vertices,omitempty"`
	Center   r2.Vec    `json:"center"`
	Radius   float64   `json:"radius,omitempty"`
}

// Edge returns a two-sided line segment shape.
func Edge(a, b r2.Vec) Shape {
	return Shape{Kind: ShapeEdge, Vertices: []r2.Vec{a, b}}
}

// Polygon returns a convex polygon shape. Clockwise input is reversed so the
// stored winding is always counter-clockwise.
func Polygon(vertices ...r2.Vec) Shape {
	vs := make([]r2.Vec, len(vertices))
	copy(vs, vertices)
	if signedArea(vs) < 0 {
		for i, j := 0, len(vs)-1; i < j; i, j = i+1, j-1 {
			vs[i], vs[j] = vs[j], vs[i]
		}
	}
	return Shape{Kind: ShapePolygon, Vertices: vs}
}

// Box returns a rectangle with half extents hx, hy centered at center and
// rotated by angle.
func Box(hx, hy float64, center r2.Vec, angle float64) Shape {
	corners := [4]r2.Vec{{X: -hx, Y: -hy}, {X: hx, Y: -hy}, {X: hx, Y: hy}, {X: -hx, Y: hy}}
	vs := make([]r2.Vec, 4)
	for i, c := range corners {
		vs[i] = r2.Add(center, Rotate(c, angle))
	}
	return Shape{Kind: ShapePolygon, Vertices: vs}
}

// Circle returns a circle shape.
func Circle(center r2.Vec, radius float64) Shape {
	return Shape{Kind: ShapeCircle, Center: center, Radius: radius}
}

// Transformed returns the shape placed at pose. The receiver is not modified.
func (s Shape) Transformed(p Pose) Shape {
	switch s.Kind {
	case ShapeCircle:
		return Shape{Kind: ShapeCircle, Center: p.Apply(s.Center), Radius: s.Radius}
	default:
		vs := make([]r2.Vec, len(s.Vertices))
		for i, v := range s.Vertices {
			vs[i] = p.Apply(v)
		}
		return Shape{Kind: s.Kind, Vertices: vs}
	}
}

// Translated returns the shape shifted by d.
func (s Shape) Translated(d r2.Vec) Shape {
	return s.Transformed(Pose{Position: d})
}

// Clone returns a deep copy.
func (s Shape) Clone() Shape {
	c := s
	if s.Vertices != nil {
		c.Vertices = make([]r2.Vec, len(s.Vertices))
		copy(c.Vertices, s.Vertices)
	}
	return c
}

// Bounds returns the axis-aligned bounding box of the shape.
func (s Shape) Bounds() (lo, hi r2.Vec) {
	if s.Kind == ShapeCircle {
		r := r2.Vec{X: s.Radius, Y: s.Radius}
		return r2.Sub(s.Center, r), r2.Add(s.Center, r)
	}
	if len(s.Vertices) == 0 {
		return r2.Vec{}, r2.Vec{}
	}
	lo, hi = s.Vertices[0], s.Vertices[0]
	for _, v := range s.Vertices[1:] {
		lo.X, lo.Y = min(lo.X, v.X), min(lo.Y, v.Y)
		hi.X, hi.Y = max(hi.X, v.X), max(hi.Y, v.Y)
	}
	return lo, hi
}

// Area returns the enclosed area; edges have none.
func (s Shape) Area() float64 {
	switch s.Kind {
	case ShapePolygon:
		a := signedArea(s.Vertices)
		if a < 0 {
			return -a
		}
		return a
	case ShapeCircle:
		return math.Pi * s.Radius * s.Radius
	}
	return 0
}

func signedArea(vs []r2.Vec) float64 {
	area := 0.0
	for i := range vs {
		j := (i + 1) % len(vs)
		area += r2.Cross(vs[i], vs[j])
	}
	return area / 2
}
