package physics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/strider/components"
)

type groundEdge struct {
	a, b   r2.Vec
	normal r2.Vec // unit, pointing up out of the ground
}

// ground is the static profile, sorted by x for lookup.
type ground struct {
	edges    []groundEdge
	friction float64
}

func newGround(edges []components.Shape, friction float64) ground {
	g := ground{edges: make([]groundEdge, len(edges)), friction: friction}
	for i, e := range edges {
		a, b := e.Vertices[0], e.Vertices[1]
		g.edges[i] = groundEdge{a: a, b: b, normal: components.Perp(r2.Unit(r2.Sub(b, a)))}
	}
	return g
}

// under returns the index of the edge spanning x, or -1 off the track.
func (g *ground) under(x float64) int {
	i := sort.Search(len(g.edges), func(i int) bool { return g.edges[i].b.X >= x })
	if i == len(g.edges) || g.edges[i].a.X > x {
		return -1
	}
	return i
}

type contactKey struct {
	body   BodyID
	shape  uint16
	vertex uint16
}

type cachedImpulse struct {
	normal, tangent float64
}

// contact is one body point against one ground edge. Only body vertices
// and circles are tested against the ground; ground vertices poking into a
// body polygon are not detected.
type contact struct {
	key        contactKey
	body       BodyID
	slot       int
	edge       int
	local      r2.Vec  // vertex or circle center in the body frame
	radius     float64 // zero for polygon vertices
	normal     r2.Vec
	separation float64
	friction   float64

	r              r2.Vec // contact point relative to the center of mass
	normalMass     float64
	tangentMass    float64
	normalImpulse  float64
	tangentImpulse float64
}

func mixFriction(a, b float64) float64 {
	return math.Sqrt(a * b)
}

func tangent(n r2.Vec) r2.Vec {
	return r2.Vec{X: n.Y, Y: -n.X}
}

// collide rebuilds the contact list from current positions. Points within
// a velocity-scaled margin above the ground become speculative contacts.
func (w *World) collide(dt float64) {
	w.contacts = w.contacts[:0]
	if len(w.ground.edges) == 0 {
		return
	}
	for i := range w.island {
		b := &w.island[i]
		pose := b.origin()
		margin := speculativeDistance + dt*(r2.Norm(b.v)+math.Abs(b.w)*b.radius)
		friction := mixFriction(b.friction, w.ground.friction)
		for si, s := range b.shapes {
			switch s.Kind {
			case components.ShapeCircle:
				w.addContact(b, i, si, 0, s.Center, s.Radius, pose.Apply(s.Center), margin, friction)
			case components.ShapePolygon:
				for vi, v := range s.Vertices {
					w.addContact(b, i, si, vi, v, 0, pose.Apply(v), margin, friction)
				}
			}
		}
	}
}

func (w *World) addContact(b *bodyState, slot, shape, vertex int, local r2.Vec, radius float64, p r2.Vec, margin, friction float64) {
	edge := w.ground.under(p.X)
	if edge < 0 {
		return
	}
	e := &w.ground.edges[edge]
	sep := r2.Dot(r2.Sub(p, e.a), e.normal) - radius
	if sep >= margin {
		return
	}
	key := contactKey{body: b.id, shape: uint16(shape), vertex: uint16(vertex)}
	cached := w.impulses[key]
	w.contacts = append(w.contacts, contact{
		key:            key,
		body:           b.id,
		slot:           slot,
		edge:           edge,
		local:          local,
		radius:         radius,
		normal:         e.normal,
		separation:     sep,
		friction:       friction,
		normalImpulse:  cached.normal,
		tangentImpulse: cached.tangent,
	})
}

// contactPoint returns the world contact point on the body surface.
func contactPoint(b *bodyState, c *contact) r2.Vec {
	p := b.origin().Apply(c.local)
	return r2.Sub(p, r2.Scale(c.radius, c.normal))
}

// initContacts computes effective masses and applies warm-start impulses.
func (w *World) initContacts() {
	for i := range w.contacts {
		c := &w.contacts[i]
		b := &w.island[c.slot]
		c.r = r2.Sub(contactPoint(b, c), b.c)

		rn := r2.Cross(c.r, c.normal)
		kn := b.invMass + b.invI*rn*rn
		c.normalMass = 0
		if kn > 0 {
			c.normalMass = 1 / kn
		}

		t := tangent(c.normal)
		rt := r2.Cross(c.r, t)
		kt := b.invMass + b.invI*rt*rt
		c.tangentMass = 0
		if kt > 0 {
			c.tangentMass = 1 / kt
		}

		p := r2.Add(r2.Scale(c.normalImpulse, c.normal), r2.Scale(c.tangentImpulse, t))
		applyImpulse(b, c.r, p)
	}
}

func applyImpulse(b *bodyState, r, p r2.Vec) {
	b.v = r2.Add(b.v, r2.Scale(b.invMass, p))
	b.w += b.invI * r2.Cross(r, p)
}

// solveContactVelocity runs one friction then normal pass. Friction goes
// first so non-penetration has the last word.
func (w *World) solveContactVelocity(invDt float64) {
	for i := range w.contacts {
		c := &w.contacts[i]
		b := &w.island[c.slot]
		t := tangent(c.normal)

		dv := r2.Add(b.v, components.CrossSV(b.w, c.r))
		lambda := -c.tangentMass * r2.Dot(dv, t)
		maxFriction := c.friction * c.normalImpulse
		next := math.Max(-maxFriction, math.Min(c.tangentImpulse+lambda, maxFriction))
		lambda = next - c.tangentImpulse
		c.tangentImpulse = next
		applyImpulse(b, c.r, r2.Scale(lambda, t))

		dv = r2.Add(b.v, components.CrossSV(b.w, c.r))
		vn := r2.Dot(dv, c.normal)
		// speculative: allow approach up to the remaining gap
		lambda = -c.normalMass * (vn + math.Max(c.separation, 0)*invDt)
		next = math.Max(c.normalImpulse+lambda, 0)
		lambda = next - c.normalImpulse
		c.normalImpulse = next
		applyImpulse(b, c.r, r2.Scale(lambda, c.normal))
	}
}

// storeImpulses caches accumulated impulses for warm starting.
func (w *World) storeImpulses() {
	clear(w.impulses)
	for i := range w.contacts {
		c := &w.contacts[i]
		if c.normalImpulse == 0 && c.tangentImpulse == 0 {
			continue
		}
		w.impulses[c.key] = cachedImpulse{normal: c.normalImpulse, tangent: c.tangentImpulse}
	}
}

// solveContactPosition pushes penetrating points out along the ground
// normal. It reports whether the worst penetration is within tolerance.
func (w *World) solveContactPosition() bool {
	minSeparation := 0.0
	for i := range w.contacts {
		c := &w.contacts[i]
		b := &w.island[c.slot]
		e := &w.ground.edges[c.edge]

		point := contactPoint(b, c)
		sep := r2.Dot(r2.Sub(point, e.a), e.normal)
		minSeparation = math.Min(minSeparation, sep)

		corr := math.Max(-maxLinearCorrection, math.Min(baumgarte*(sep+linearSlop), 0))
		r := r2.Sub(point, b.c)
		rn := r2.Cross(r, e.normal)
		k := b.invMass + b.invI*rn*rn
		if k <= 0 {
			continue
		}
		p := r2.Scale(-corr/k, e.normal)
		b.c = r2.Add(b.c, r2.Scale(b.invMass, p))
		b.a += b.invI * r2.Cross(r, p)
	}
	return minSeparation >= -3*linearSlop
}
