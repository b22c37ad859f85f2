package physics

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/strider/components"
)

// massData is the mass contribution of one shape about the body origin.
type massData struct {
	mass    float64
	center  r2.Vec
	inertia float64 // about the body origin
}

// shapeMass computes mass, centroid and rotational inertia of a shape with
// the given density. Edges carry no mass.
func shapeMass(s components.Shape, density float64) massData {
	switch s.Kind {
	case components.ShapeCircle:
		m := density * math.Pi * s.Radius * s.Radius
		return massData{
			mass:    m,
			center:  s.Center,
			inertia: m * (0.5*s.Radius*s.Radius + r2.Dot(s.Center, s.Center)),
		}
	case components.ShapePolygon:
		return polygonMass(s.Vertices, density)
	}
	return massData{}
}

// polygonMass triangulates the polygon from its first vertex.
func polygonMass(vs []r2.Vec, density float64) massData {
	if len(vs) < 3 {
		return massData{}
	}
	const inv3 = 1.0 / 3.0

	ref := vs[0]
	var center r2.Vec
	area, inertia := 0.0, 0.0
	for i := range vs {
		e1 := r2.Sub(vs[i], ref)
		e2 := r2.Sub(vs[(i+1)%len(vs)], ref)
		d := r2.Cross(e1, e2)
		tri := 0.5 * d
		area += tri
		center = r2.Add(center, r2.Scale(tri*inv3, r2.Add(e1, e2)))

		intx2 := e1.X*e1.X + e2.X*e1.X + e2.X*e2.X
		inty2 := e1.Y*e1.Y + e2.Y*e1.Y + e2.Y*e2.Y
		inertia += (0.25 * inv3 * d) * (intx2 + inty2)
	}
	if area <= 0 {
		return massData{}
	}

	m := density * area
	center = r2.Scale(1/area, center)
	massCenter := r2.Add(center, ref)
	// shift inertia from the reference vertex to the body origin
	i := density*inertia + m*(r2.Dot(massCenter, massCenter)-r2.Dot(center, center))
	return massData{mass: m, center: massCenter, inertia: i}
}

// computeMass combines shape masses into body mass properties.
func computeMass(shapes []components.Shape, density float64, static bool) components.Mass {
	if static {
		return components.Mass{}
	}
	var total massData
	var weighted r2.Vec
	for _, s := range shapes {
		md := shapeMass(s, density)
		total.mass += md.mass
		total.inertia += md.inertia
		weighted = r2.Add(weighted, r2.Scale(md.mass, md.center))
	}
	if total.mass <= 0 {
		// dynamic bodies always need positive mass
		return components.Mass{Mass: 1, InvMass: 1}
	}
	center := r2.Scale(1/total.mass, weighted)
	inertia := total.inertia - total.mass*r2.Dot(center, center)
	out := components.Mass{
		Mass:        total.mass,
		InvMass:     1 / total.mass,
		LocalCenter: center,
	}
	if inertia > 0 {
		out.Inertia = inertia
		out.InvInertia = 1 / inertia
	}
	return out
}
