// Package body builds the two-legged walker and translates between its
// joints and the controller's observation/command vectors.
package body

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/strider/components"
	"github.com/pthm-cable/strider/config"
	"github.com/pthm-cable/strider/physics"
)

const (
	// NumJoints is the command vector length: hip0, knee0, hip1, knee1.
	NumJoints = 4
	// ObservationSize is the observation vector length.
	ObservationSize = 14

	// Initial hip spread, legs start slightly apart.
	hipSpread = 0.05
)

// hullOutline is the hull polygon in pixels, scaled by BodyConfig.HullScale.
var hullOutline = []r2.Vec{
	{X: -30, Y: -8}, {X: 34, Y: -8}, {X: 34, Y: 1}, {X: 6, Y: 9}, {X: -30, Y: 9},
}

// Observation is the controller input for one step.
type Observation [ObservationSize]float64

// Slice returns the observation as a slice backed by a copy.
func (o Observation) Slice() []float64 {
	out := make([]float64, ObservationSize)
	copy(out, o[:])
	return out
}

// ContactSource answers whether a body currently touches the ground.
type ContactSource interface {
	Touching(id physics.BodyID) bool
}

// Leg is one thigh+shin chain.
type Leg struct {
	Thigh physics.BodyID
	Shin  physics.BodyID
	Hip   *physics.RevoluteJoint
	Knee  *physics.RevoluteJoint
}

// Biped is a built walker inside a physics world.
type Biped struct {
	world *physics.World
	cfg   config.BodyConfig
	morph Morphology

	hull physics.BodyID
	legs [2]Leg
}

// partPlan is a body placed relative to the hip before the final shift.
type partPlan struct {
	kind   components.PartKind
	leg    int8
	pose   components.Pose
	shapes []components.Shape
}

// Build clamps the morphology, creates hull, legs and joints, and places
// the walker so its lowest foot point sits at spawn.Y under spawn.X.
func Build(world *physics.World, cfg config.BodyConfig, m Morphology, spawn r2.Vec) (*Biped, error) {
	m = m.Clamped(cfg)

	hullShapes := []components.Shape{components.Polygon(scaled(hullOutline, cfg.HullScale)...)}
	if cfg.Head {
		top := 9 * cfg.HullScale
		hullShapes = append(hullShapes, components.Circle(r2.Vec{X: 0.2, Y: top + cfg.HeadRadius}, cfg.HeadRadius))
	}
	hull := partPlan{kind: components.PartHull, leg: -1, shapes: hullShapes}

	hip := r2.Vec{X: 0, Y: -cfg.LegDown}
	var thighs, shins [2]partPlan
	for i := range 2 {
		sign := float64(2*i - 1)
		thighAngle := sign * hipSpread
		shinAngle := thighAngle + cfg.KneeRest

		thighCenter := r2.Add(hip, components.Rotate(r2.Vec{Y: -m.ThighLength / 2}, thighAngle))
		knee := r2.Add(thighCenter, components.Rotate(r2.Vec{Y: -m.ThighLength / 2}, thighAngle))
		shinCenter := r2.Add(knee, components.Rotate(r2.Vec{Y: -m.ShinLength / 2}, shinAngle))

		thighs[i] = partPlan{
			kind:   components.PartThigh,
			leg:    int8(i),
			pose:   components.Pose{Position: thighCenter, Angle: thighAngle},
			shapes: []components.Shape{components.Box(m.ThighWidth/2, m.ThighLength/2, r2.Vec{}, 0)},
		}
		shins[i] = partPlan{
			kind:   components.PartShin,
			leg:    int8(i),
			pose:   components.Pose{Position: shinCenter, Angle: shinAngle},
			shapes: []components.Shape{components.Box(m.ShinWidth/2, m.ShinLength/2, r2.Vec{}, 0)},
		}
	}

	lowest := math.Inf(1)
	for _, s := range shins {
		for _, shape := range s.shapes {
			lo, _ := shape.Transformed(s.pose).Bounds()
			lowest = math.Min(lowest, lo.Y)
		}
	}
	shift := r2.Vec{X: spawn.X, Y: spawn.Y - lowest}

	create := func(p partPlan, density, friction float64) physics.BodyID {
		pose := p.pose
		pose.Position = r2.Add(pose.Position, shift)
		return world.CreateBody(physics.BodyDef{
			Kind:     p.kind,
			Leg:      p.leg,
			Pose:     pose,
			Shapes:   p.shapes,
			Density:  density,
			Friction: friction,
		})
	}

	b := &Biped{world: world, cfg: cfg, morph: m}
	b.hull = create(hull, cfg.HullDensity, cfg.HullFriction)
	for i := range 2 {
		leg := &b.legs[i]
		leg.Thigh = create(thighs[i], cfg.LegDensity, cfg.LegFriction)
		leg.Shin = create(shins[i], cfg.LegDensity, cfg.LegFriction)

		var err error
		leg.Hip, err = world.CreateRevoluteJoint(physics.JointDef{
			BodyA:          b.hull,
			BodyB:          leg.Thigh,
			LocalAnchorA:   hip,
			LocalAnchorB:   r2.Vec{Y: m.ThighLength / 2},
			EnableLimit:    true,
			Lower:          cfg.HipLimits.Lower(),
			Upper:          cfg.HipLimits.Upper(),
			EnableMotor:    true,
			MaxMotorTorque: cfg.MotorTorque,
		})
		if err != nil {
			return nil, fmt.Errorf("hip %d: %w", i, err)
		}
		leg.Knee, err = world.CreateRevoluteJoint(physics.JointDef{
			BodyA:          leg.Thigh,
			BodyB:          leg.Shin,
			LocalAnchorA:   r2.Vec{Y: -m.ThighLength / 2},
			LocalAnchorB:   r2.Vec{Y: m.ShinLength / 2},
			EnableLimit:    true,
			Lower:          cfg.KneeLimits.Lower(),
			Upper:          cfg.KneeLimits.Upper(),
			EnableMotor:    true,
			MaxMotorTorque: cfg.MotorTorque,
		})
		if err != nil {
			return nil, fmt.Errorf("knee %d: %w", i, err)
		}
	}
	return b, nil
}

func scaled(vs []r2.Vec, s float64) []r2.Vec {
	out := make([]r2.Vec, len(vs))
	for i, v := range vs {
		out[i] = r2.Scale(s, v)
	}
	return out
}

// Morphology returns the clamped morphology the walker was built with.
func (b *Biped) Morphology() Morphology {
	return b.morph
}

// HullID returns the hull body.
func (b *Biped) HullID() physics.BodyID {
	return b.hull
}

// FootIDs returns the shin bodies, whose ground contact counts as footing.
func (b *Biped) FootIDs() [2]physics.BodyID {
	return [2]physics.BodyID{b.legs[0].Shin, b.legs[1].Shin}
}

// BodyIDs returns all parts: hull, thigh0, shin0, thigh1, shin1.
func (b *Biped) BodyIDs() []physics.BodyID {
	return []physics.BodyID{b.hull, b.legs[0].Thigh, b.legs[0].Shin, b.legs[1].Thigh, b.legs[1].Shin}
}

// Legs returns both legs.
func (b *Biped) Legs() [2]Leg {
	return b.legs
}

// Joints returns the joints in command order.
func (b *Biped) Joints() [NumJoints]*physics.RevoluteJoint {
	return [NumJoints]*physics.RevoluteJoint{b.legs[0].Hip, b.legs[0].Knee, b.legs[1].Hip, b.legs[1].Knee}
}

// Tracker returns the hull reference point used for distance and falls.
func (b *Biped) Tracker() r2.Vec {
	return b.world.WorldCenter(b.hull)
}

// HullPosition is an alias of Tracker.
func (b *Biped) HullPosition() r2.Vec {
	return b.Tracker()
}

// HullAngle returns the hull orientation.
func (b *Biped) HullAngle() float64 {
	return b.world.Pose(b.hull).Angle
}

// HullVelocity returns the hull center-of-mass velocity.
func (b *Biped) HullVelocity() components.Velocity {
	return b.world.Velocity(b.hull)
}

// Shapes returns every part's shapes placed at the current poses.
func (b *Biped) Shapes() []components.Shape {
	var out []components.Shape
	for _, id := range b.BodyIDs() {
		out = append(out, b.world.Shapes(id)...)
	}
	return out
}

// Observe builds the observation vector. Velocities are scaled by the
// world time step so typical values stay near unit range.
func (b *Biped) Observe(contacts ContactSource) Observation {
	dt := b.world.Config().DT
	vel := b.HullVelocity()
	var o Observation
	o[0] = b.HullAngle()
	o[1] = 2.0 * vel.Angular * dt
	o[2] = 0.3 * vel.Linear.X * 20 * dt
	o[3] = 0.3 * vel.Linear.Y * (400.0 / 30.0) * dt

	for i, leg := range b.legs {
		base := 4 + 5*i
		o[base+0] = leg.Hip.Angle()
		o[base+1] = leg.Hip.Speed() / b.cfg.HipSpeed
		o[base+2] = leg.Knee.Angle() + 1.0
		o[base+3] = leg.Knee.Speed() / b.cfg.KneeSpeed
		if contacts != nil && contacts.Touching(leg.Shin) {
			o[base+4] = 1
		}
	}
	return o
}

// Apply sets each motor from a command in [-1, 1]: the sign picks the
// direction at full joint speed, the magnitude scales the torque limit.
// Out-of-range commands are clamped and NaN counts as zero.
func (b *Biped) Apply(cmd []float64) error {
	if len(cmd) != NumJoints {
		return fmt.Errorf("command has %d values, want %d", len(cmd), NumJoints)
	}
	for i, j := range b.Joints() {
		a := cmd[i]
		if math.IsNaN(a) {
			a = 0
		}
		a = math.Max(-1, math.Min(1, a))
		speed := b.cfg.HipSpeed
		if i%2 == 1 {
			speed = b.cfg.KneeSpeed
		}
		sign := 0.0
		switch {
		case a > 0:
			sign = 1
		case a < 0:
			sign = -1
		}
		j.SetMotorSpeed(speed * sign)
		j.SetMaxMotorTorque(b.cfg.MotorTorque * math.Abs(a))
	}
	return nil
}
