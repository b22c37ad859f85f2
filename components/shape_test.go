package components

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"
)

func near(a, b r2.Vec, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol && math.Abs(a.Y-b.Y) <= tol
}

func TestPolygonWindingNormalized(t *testing.T) {
	cw := Polygon(r2.Vec{X: 0, Y: 0}, r2.Vec{X: 0, Y: 1}, r2.Vec{X: 1, Y: 1}, r2.Vec{X: 1, Y: 0})
	if signedArea(cw.Vertices) <= 0 {
		t.Errorf("clockwise input should be stored counter-clockwise, area = %v", signedArea(cw.Vertices))
	}
	if math.Abs(cw.Area()-1) > 1e-12 {
		t.Errorf("Area() = %v, want 1", cw.Area())
	}
}

func TestTransformed(t *testing.T) {
	tests := []struct {
		name  string
		shape Shape
		pose  Pose
		want  []r2.Vec
	}{
		{
			name:  "edge translate",
			shape: Edge(r2.Vec{X: 0, Y: 0}, r2.Vec{X: 1, Y: 0}),
			pose:  Pose{Position: r2.Vec{X: 2, Y: 3}},
			want:  []r2.Vec{{X: 2, Y: 3}, {X: 3, Y: 3}},
		},
		{
			name:  "edge rotate quarter turn",
			shape: Edge(r2.Vec{X: 0, Y: 0}, r2.Vec{X: 1, Y: 0}),
			pose:  Pose{Angle: math.Pi / 2},
			want:  []r2.Vec{{X: 0, Y: 0}, {X: 0, Y: 1}},
		},
		{
			name:  "box rotate and translate",
			shape: Box(1, 0.5, r2.Vec{}, 0),
			pose:  Pose{Position: r2.Vec{X: 1, Y: 1}, Angle: math.Pi},
			want:  []r2.Vec{{X: 2, Y: 1.5}, {X: 0, Y: 1.5}, {X: 0, Y: 0.5}, {X: 2, Y: 0.5}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.shape.Transformed(tt.pose)
			if got.Kind != tt.shape.Kind {
				t.Fatalf("kind = %v, want %v", got.Kind, tt.shape.Kind)
			}
			if len(got.Vertices) != len(tt.want) {
				t.Fatalf("got %d vertices, want %d", len(got.Vertices), len(tt.want))
			}
			for i := range tt.want {
				if !near(got.Vertices[i], tt.want[i], 1e-9) {
					t.Errorf("vertex %d = %v, want %v", i, got.Vertices[i], tt.want[i])
				}
			}
		})
	}
}

func TestTransformedCircle(t *testing.T) {
	c := Circle(r2.Vec{X: 1, Y: 0}, 0.25)
	got := c.Transformed(Pose{Position: r2.Vec{X: 5, Y: 5}, Angle: math.Pi / 2})
	if !near(got.Center, r2.Vec{X: 5, Y: 6}, 1e-9) {
		t.Errorf("center = %v, want (5, 6)", got.Center)
	}
	if got.Radius != 0.25 {
		t.Errorf("radius = %v, want 0.25", got.Radius)
	}
}

func TestTransformedDoesNotAlias(t *testing.T) {
	s := Box(1, 1, r2.Vec{}, 0)
	moved := s.Transformed(Pose{Position: r2.Vec{X: 10}})
	moved.Vertices[0] = r2.Vec{X: 99, Y: 99}
	if s.Vertices[0].X == 99 {
		t.Error("Transformed shares vertex storage with the source shape")
	}
}

func TestPoseInverse(t *testing.T) {
	p := Pose{Position: r2.Vec{X: 3, Y: -2}, Angle: 0.7}
	local := r2.Vec{X: 0.4, Y: 1.3}
	if got := p.Inverse(p.Apply(local)); !near(got, local, 1e-12) {
		t.Errorf("Inverse(Apply(v)) = %v, want %v", got, local)
	}
}

func TestBounds(t *testing.T) {
	lo, hi := Polygon(r2.Vec{X: -1, Y: 2}, r2.Vec{X: 3, Y: 2}, r2.Vec{X: 0, Y: 5}).Bounds()
	if lo != (r2.Vec{X: -1, Y: 2}) || hi != (r2.Vec{X: 3, Y: 5}) {
		t.Errorf("Bounds = %v %v", lo, hi)
	}
}
