// Package components defines ECS components for the rigid-body simulation.
package components

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Pose is the placement of a body frame in world space.
type Pose struct {
	Position r2.Vec
	Angle    float64 // radians, counter-clockwise
}

// Apply maps a body-local point into world space.
func (p Pose) Apply(local r2.Vec) r2.Vec {
	return r2.Add(p.Position, Rotate(local, p.Angle))
}

// Inverse maps a world point into body-local space.
func (p Pose) Inverse(world r2.Vec) r2.Vec {
	return Rotate(r2.Sub(world, p.Position), -p.Angle)
}

// Velocity holds linear and angular velocity of the center of mass.
type Velocity struct {
	Linear  r2.Vec
	Angular float64
}

// Mass holds inertial properties computed from a body's shapes.
// Static bodies have zero inverse mass and inertia.
type Mass struct {
	Mass        float64
	InvMass     float64
	Inertia     float64 // about the center of mass
	InvInertia  float64
	LocalCenter r2.Vec // center of mass in body-local coordinates
}

// Collider holds a body's shapes in body-local coordinates.
type Collider struct {
	Shapes []Shape
}

// Material holds surface and density properties shared by a body's shapes.
type Material struct {
	Density  float64
	Friction float64
}

// PartKind identifies what role a body plays in the scene.
type PartKind uint8

const (
	PartGround PartKind = iota
	PartHull
	PartHead
	PartThigh
	PartShin
)

// String returns the display name of the part kind.
func (k PartKind) String() string {
	switch k {
	case PartGround:
		return "ground"
	case PartHull:
		return "hull"
	case PartHead:
		return "head"
	case PartThigh:
		return "thigh"
	case PartShin:
		return "shin"
	}
	return "unknown"
}

// Part tags a body with its role and stable identifier.
type Part struct {
	ID     uint32
	Kind   PartKind
	Leg    int8 // -1 when not part of a leg
	Static bool
}

// Rotate rotates v counter-clockwise by angle radians.
func Rotate(v r2.Vec, angle float64) r2.Vec {
	s, c := math.Sincos(angle)
	return r2.Vec{X: c*v.X - s*v.Y, Y: s*v.X + c*v.Y}
}

// Perp returns v rotated by 90 degrees counter-clockwise.
func Perp(v r2.Vec) r2.Vec {
	return r2.Vec{X: -v.Y, Y: v.X}
}

// CrossSV returns the cross product of a scalar angular term and a vector (w x r).
func CrossSV(s float64, v r2.Vec) r2.Vec {
	return r2.Vec{X: -s * v.Y, Y: s * v.X}
}

// Finite reports whether both coordinates are finite.
func Finite(v r2.Vec) bool {
	return !math.IsNaN(v.X) && !math.IsNaN(v.Y) && !math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0)
}
