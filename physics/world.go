// Package physics is a small 2D rigid-body world: dynamic polygon and
// circle bodies connected by motorized revolute joints, colliding with a
// static ground profile.
package physics

import (
	"errors"
	"fmt"
	"math"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/strider/components"
	"github.com/pthm-cable/strider/config"
)

var (
	// ErrNotBuilt is returned when stepping a world with no dynamic bodies.
	ErrNotBuilt = errors.New("physics world has no dynamic bodies")
	// ErrInvalidStep is returned for a non-positive time step or iteration count.
	ErrInvalidStep = errors.New("invalid physics step")
	// ErrDiverged is returned when a step produces non-finite body state.
	ErrDiverged = errors.New("physics diverged")
)

// Solver tuning, in world units.
const (
	linearSlop           = 0.005
	angularSlop          = 2.0 / 180.0 * math.Pi
	baumgarte            = 0.2
	maxLinearCorrection  = 0.2
	maxAngularCorrection = 8.0 / 180.0 * math.Pi
	maxTranslation       = 2.0
	maxRotation          = 0.5 * math.Pi
	speculativeDistance  = 4 * linearSlop
	touchDistance        = 2 * linearSlop
)

// BodyID identifies a body within one World.
type BodyID uint32

// BodyDef describes a body to create.
type BodyDef struct {
	Kind     components.PartKind
	Leg      int8
	Static   bool
	Pose     components.Pose
	Shapes   []components.Shape // body-local
	Density  float64
	Friction float64
}

// ContactKind distinguishes begin and end events.
type ContactKind uint8

const (
	ContactBegin ContactKind = iota
	ContactEnd
)

// String returns the event name.
func (k ContactKind) String() string {
	if k == ContactBegin {
		return "begin"
	}
	return "end"
}

// ContactEvent reports a body starting or stopping to touch the ground.
type ContactEvent struct {
	Body BodyID
	Kind ContactKind
}

// bodyState is the solver's working copy of one dynamic body.
type bodyState struct {
	entity      ecs.Entity
	id          BodyID
	c           r2.Vec // center of mass, world
	a           float64
	v           r2.Vec
	w           float64
	invMass     float64
	invI        float64
	localCenter r2.Vec
	radius      float64 // furthest shape extent from the center
	shapes      []components.Shape
	friction    float64
}

// origin returns the body frame pose for the solver state.
func (b *bodyState) origin() components.Pose {
	return components.Pose{
		Position: r2.Sub(b.c, components.Rotate(b.localCenter, b.a)),
		Angle:    b.a,
	}
}

// World owns bodies, joints and contact state for one episode.
type World struct {
	cfg     config.PhysicsConfig
	gravity r2.Vec

	ecs        *ecs.World
	bodyMapper *ecs.Map6[
		components.Pose,
		components.Velocity,
		components.Mass,
		components.Collider,
		components.Material,
		components.Part,
	]
	bodyFilter *ecs.Filter6[
		components.Pose,
		components.Velocity,
		components.Mass,
		components.Collider,
		components.Material,
		components.Part,
	]
	poseMap     *ecs.Map1[components.Pose]
	velMap      *ecs.Map1[components.Velocity]
	massMap     *ecs.Map1[components.Mass]
	colliderMap *ecs.Map1[components.Collider]
	partMap     *ecs.Map1[components.Part]

	entities []ecs.Entity // indexed by BodyID
	ground   ground
	joints   []*RevoluteJoint

	// Per-step scratch, reused across steps
	island   []bodyState
	slots    []int // BodyID -> island index, -1 for static
	contacts []contact
	impulses map[contactKey]cachedImpulse

	touching map[BodyID]bool
	events   []ContactEvent
	steps    int
}

// NewWorld creates an empty world.
func NewWorld(cfg config.PhysicsConfig) *World {
	world := ecs.NewWorld()
	return &World{
		cfg:     cfg,
		gravity: r2.Vec{X: 0, Y: cfg.Gravity},
		ecs:     world,
		bodyMapper: ecs.NewMap6[
			components.Pose,
			components.Velocity,
			components.Mass,
			components.Collider,
			components.Material,
			components.Part,
		](world),
		bodyFilter: ecs.NewFilter6[
			components.Pose,
			components.Velocity,
			components.Mass,
			components.Collider,
			components.Material,
			components.Part,
		](world),
		poseMap:     ecs.NewMap1[components.Pose](world),
		velMap:      ecs.NewMap1[components.Velocity](world),
		massMap:     ecs.NewMap1[components.Mass](world),
		colliderMap: ecs.NewMap1[components.Collider](world),
		partMap:     ecs.NewMap1[components.Part](world),
		impulses:    make(map[contactKey]cachedImpulse),
		touching:    make(map[BodyID]bool),
		island:      make([]bodyState, 0, 8),
		contacts:    make([]contact, 0, 32),
	}
}

// Config returns the world's stepping configuration.
func (w *World) Config() config.PhysicsConfig {
	return w.cfg
}

// CreateBody adds a body. Mass, center of mass and inertia are derived from
// the shapes and density; static bodies get zero inverse mass.
func (w *World) CreateBody(def BodyDef) BodyID {
	id := BodyID(len(w.entities))
	shapes := make([]components.Shape, len(def.Shapes))
	for i, s := range def.Shapes {
		shapes[i] = s.Clone()
	}

	pose := def.Pose
	vel := components.Velocity{}
	mass := computeMass(shapes, def.Density, def.Static)
	collider := components.Collider{Shapes: shapes}
	material := components.Material{Density: def.Density, Friction: def.Friction}
	part := components.Part{ID: uint32(id), Kind: def.Kind, Leg: def.Leg, Static: def.Static}

	e := w.bodyMapper.NewEntity(&pose, &vel, &mass, &collider, &material, &part)
	w.entities = append(w.entities, e)
	return id
}

// AddGround adds the static ground profile. Edges must be ordered and
// increasing in x, as produced by the terrain generator.
func (w *World) AddGround(edges []components.Shape, friction float64) (BodyID, error) {
	for i, e := range edges {
		if e.Kind != components.ShapeEdge || len(e.Vertices) != 2 {
			return 0, fmt.Errorf("ground shape %d is not an edge", i)
		}
		if e.Vertices[1].X <= e.Vertices[0].X {
			return 0, fmt.Errorf("ground edge %d is not increasing in x", i)
		}
		if i > 0 && e.Vertices[0].X < edges[i-1].Vertices[1].X {
			return 0, fmt.Errorf("ground edge %d overlaps its predecessor", i)
		}
	}
	id := w.CreateBody(BodyDef{
		Kind:     components.PartGround,
		Leg:      -1,
		Static:   true,
		Shapes:   edges,
		Friction: friction,
	})
	w.ground = newGround(edges, friction)
	return id, nil
}

// NumBodies returns the number of bodies, ground included.
func (w *World) NumBodies() int {
	return len(w.entities)
}

// Steps returns the number of completed steps.
func (w *World) Steps() int {
	return w.steps
}

// Pose returns the body frame pose.
func (w *World) Pose(id BodyID) components.Pose {
	return *w.poseMap.Get(w.entities[id])
}

// Velocity returns the center-of-mass velocity.
func (w *World) Velocity(id BodyID) components.Velocity {
	return *w.velMap.Get(w.entities[id])
}

// Mass returns the body mass properties.
func (w *World) Mass(id BodyID) components.Mass {
	return *w.massMap.Get(w.entities[id])
}

// Part returns the body role tag.
func (w *World) Part(id BodyID) components.Part {
	return *w.partMap.Get(w.entities[id])
}

// WorldCenter returns the center of mass in world space.
func (w *World) WorldCenter(id BodyID) r2.Vec {
	pose := w.Pose(id)
	return pose.Apply(w.Mass(id).LocalCenter)
}

// Shapes returns the body's shapes placed at its current pose.
func (w *World) Shapes(id BodyID) []components.Shape {
	pose := w.Pose(id)
	local := w.colliderMap.Get(w.entities[id]).Shapes
	out := make([]components.Shape, len(local))
	for i, s := range local {
		out[i] = s.Transformed(pose)
	}
	return out
}

// SetVelocity overrides a body's velocity.
func (w *World) SetVelocity(id BodyID, v components.Velocity) {
	*w.velMap.Get(w.entities[id]) = v
}

// DrainEvents returns and clears the contact events queued by Step.
func (w *World) DrainEvents() []ContactEvent {
	out := w.events
	w.events = nil
	return out
}

// Advance steps the world using its configured time step and iterations.
func (w *World) Advance() error {
	return w.Step(w.cfg.DT, w.cfg.VelocityIterations, w.cfg.PositionIterations)
}

// Step advances the world by dt using the given solver iteration counts.
func (w *World) Step(dt float64, velocityIterations, positionIterations int) error {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return fmt.Errorf("%w: dt=%v", ErrInvalidStep, dt)
	}
	if velocityIterations < 1 || positionIterations < 0 {
		return fmt.Errorf("%w: iterations velocity=%d position=%d", ErrInvalidStep, velocityIterations, positionIterations)
	}

	// Phase A: snapshot dynamic bodies
	w.snapshot()
	if len(w.island) == 0 {
		return ErrNotBuilt
	}

	for i := range w.island {
		b := &w.island[i]
		if b.invMass > 0 {
			b.v = r2.Add(b.v, r2.Scale(dt, w.gravity))
		}
	}

	w.collide(dt)

	// Phase B: velocity constraints
	invDt := 1 / dt
	for _, j := range w.joints {
		j.initVelocity(w.island, w.slots, dt)
	}
	w.initContacts()
	for it := 0; it < velocityIterations; it++ {
		for _, j := range w.joints {
			j.solveVelocity(w.island, dt, invDt)
		}
		w.solveContactVelocity(invDt)
	}
	w.storeImpulses()

	for i := range w.island {
		integrate(&w.island[i], dt)
	}

	// Phase C: position constraints
	for it := 0; it < positionIterations; it++ {
		contactsOK := w.solveContactPosition()
		jointsOK := true
		for _, j := range w.joints {
			if !j.solvePosition(w.island) {
				jointsOK = false
			}
		}
		if contactsOK && jointsOK {
			break
		}
	}

	w.steps++
	if err := w.writeBack(); err != nil {
		return err
	}

	w.collide(dt)
	w.updateTouching()
	return nil
}

// snapshot copies dynamic body state into the island.
func (w *World) snapshot() {
	w.island = w.island[:0]
	if cap(w.slots) < len(w.entities) {
		w.slots = make([]int, len(w.entities))
	}
	w.slots = w.slots[:len(w.entities)]
	for i := range w.slots {
		w.slots[i] = -1
	}

	query := w.bodyFilter.Query()
	for query.Next() {
		pose, vel, mass, collider, material, part := query.Get()
		if part.Static {
			continue
		}
		b := bodyState{
			entity:      query.Entity(),
			id:          BodyID(part.ID),
			a:           pose.Angle,
			v:           vel.Linear,
			w:           vel.Angular,
			invMass:     mass.InvMass,
			invI:        mass.InvInertia,
			localCenter: mass.LocalCenter,
			shapes:      collider.Shapes,
			friction:    material.Friction,
		}
		b.c = pose.Apply(mass.LocalCenter)
		b.radius = shapeRadius(collider.Shapes, mass.LocalCenter)
		w.slots[b.id] = len(w.island)
		w.island = append(w.island, b)
	}
}

// writeBack stores island state into the components.
func (w *World) writeBack() error {
	diverged := false
	for i := range w.island {
		b := &w.island[i]
		if !components.Finite(b.c) || !components.Finite(b.v) ||
			math.IsNaN(b.a) || math.IsInf(b.a, 0) || math.IsNaN(b.w) || math.IsInf(b.w, 0) {
			diverged = true
		}
		pose := w.poseMap.Get(b.entity)
		vel := w.velMap.Get(b.entity)
		if pose == nil || vel == nil {
			continue
		}
		*pose = b.origin()
		vel.Linear = b.v
		vel.Angular = b.w
	}
	if diverged {
		return ErrDiverged
	}
	return nil
}

// updateTouching diffs the set of ground-touching bodies against the
// previous step and queues begin/end events.
func (w *World) updateTouching() {
	now := make(map[BodyID]bool, len(w.touching))
	for i := range w.contacts {
		c := &w.contacts[i]
		if c.separation < touchDistance {
			now[c.body] = true
		}
	}
	// island order keeps event order deterministic
	for i := range w.island {
		id := w.island[i].id
		was, is := w.touching[id], now[id]
		switch {
		case is && !was:
			w.events = append(w.events, ContactEvent{Body: id, Kind: ContactBegin})
		case was && !is:
			w.events = append(w.events, ContactEvent{Body: id, Kind: ContactEnd})
		}
	}
	w.touching = now
}

func integrate(b *bodyState, dt float64) {
	translation := r2.Scale(dt, b.v)
	if d := r2.Norm(translation); d > maxTranslation {
		b.v = r2.Scale(maxTranslation/d, b.v)
	}
	if rotation := dt * b.w; math.Abs(rotation) > maxRotation {
		b.w *= maxRotation / math.Abs(rotation)
	}
	b.c = r2.Add(b.c, r2.Scale(dt, b.v))
	b.a += dt * b.w
}

func shapeRadius(shapes []components.Shape, center r2.Vec) float64 {
	r := 0.0
	for _, s := range shapes {
		if s.Kind == components.ShapeCircle {
			r = math.Max(r, r2.Norm(r2.Sub(s.Center, center))+s.Radius)
			continue
		}
		for _, v := range s.Vertices {
			r = math.Max(r, r2.Norm(r2.Sub(v, center)))
		}
	}
	return r
}
