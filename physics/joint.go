package physics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/strider/components"
)

// JointDef describes a revolute joint between two dynamic bodies.
// Anchors are in each body's local frame.
type JointDef struct {
	BodyA, BodyB   BodyID
	LocalAnchorA   r2.Vec
	LocalAnchorB   r2.Vec
	ReferenceAngle float64

	EnableLimit bool
	Lower       float64
	Upper       float64

	EnableMotor    bool
	MaxMotorTorque float64
	MotorSpeed     float64
}

// RevoluteJoint pins two bodies together at a point, with optional angle
// limits and a speed motor bounded by a maximum torque.
type RevoluteJoint struct {
	world *World
	def   JointDef

	// Accumulated impulses
	impulse      r2.Vec
	motorImpulse float64
	lowerImpulse float64
	upperImpulse float64

	// Solver temporaries
	ia, ib    int
	rA, rB    r2.Vec
	axialMass float64
	angle     float64
}

// CreateRevoluteJoint adds a joint. Both bodies must be dynamic.
func (w *World) CreateRevoluteJoint(def JointDef) (*RevoluteJoint, error) {
	for _, id := range []BodyID{def.BodyA, def.BodyB} {
		if int(id) >= len(w.entities) {
			return nil, fmt.Errorf("joint body %d does not exist", id)
		}
		if w.Part(id).Static {
			return nil, fmt.Errorf("joint body %d is static", id)
		}
	}
	if def.BodyA == def.BodyB {
		return nil, fmt.Errorf("joint connects body %d to itself", def.BodyA)
	}
	if def.EnableLimit && def.Lower > def.Upper {
		return nil, fmt.Errorf("joint limits inverted: [%v, %v]", def.Lower, def.Upper)
	}
	j := &RevoluteJoint{world: w, def: def}
	w.joints = append(w.joints, j)
	return j, nil
}

// Joints returns the joints in creation order.
func (w *World) Joints() []*RevoluteJoint {
	out := make([]*RevoluteJoint, len(w.joints))
	copy(out, w.joints)
	return out
}

// BodyA returns the first body.
func (j *RevoluteJoint) BodyA() BodyID { return j.def.BodyA }

// BodyB returns the second body.
func (j *RevoluteJoint) BodyB() BodyID { return j.def.BodyB }

// Angle returns the current joint angle (body B relative to body A).
func (j *RevoluteJoint) Angle() float64 {
	return j.world.Pose(j.def.BodyB).Angle - j.world.Pose(j.def.BodyA).Angle - j.def.ReferenceAngle
}

// Speed returns the current joint angular speed.
func (j *RevoluteJoint) Speed() float64 {
	return j.world.Velocity(j.def.BodyB).Angular - j.world.Velocity(j.def.BodyA).Angular
}

// Limits returns the lower and upper angle limits.
func (j *RevoluteJoint) Limits() (lower, upper float64) {
	return j.def.Lower, j.def.Upper
}

// MotorSpeed returns the commanded motor speed.
func (j *RevoluteJoint) MotorSpeed() float64 { return j.def.MotorSpeed }

// SetMotorSpeed sets the motor target speed in rad/s.
func (j *RevoluteJoint) SetMotorSpeed(speed float64) { j.def.MotorSpeed = speed }

// MaxMotorTorque returns the motor torque limit.
func (j *RevoluteJoint) MaxMotorTorque() float64 { return j.def.MaxMotorTorque }

// SetMaxMotorTorque sets the motor torque limit.
func (j *RevoluteJoint) SetMaxMotorTorque(torque float64) { j.def.MaxMotorTorque = math.Abs(torque) }

// MotorTorque returns the torque applied by the motor during the last step.
func (j *RevoluteJoint) MotorTorque(invDt float64) float64 {
	return j.motorImpulse * invDt
}

// AnchorWorld returns the anchor on body A in world space.
func (j *RevoluteJoint) AnchorWorld() r2.Vec {
	return j.world.Pose(j.def.BodyA).Apply(j.def.LocalAnchorA)
}

func (j *RevoluteJoint) initVelocity(island []bodyState, slots []int, dt float64) {
	j.ia, j.ib = slots[j.def.BodyA], slots[j.def.BodyB]
	a, b := &island[j.ia], &island[j.ib]

	j.rA = components.Rotate(r2.Sub(j.def.LocalAnchorA, a.localCenter), a.a)
	j.rB = components.Rotate(r2.Sub(j.def.LocalAnchorB, b.localCenter), b.a)

	iSum := a.invI + b.invI
	fixedRotation := iSum == 0
	j.axialMass = 0
	if iSum > 0 {
		j.axialMass = 1 / iSum
	}
	j.angle = b.a - a.a - j.def.ReferenceAngle

	if !j.def.EnableLimit || fixedRotation {
		j.lowerImpulse, j.upperImpulse = 0, 0
	}
	if !j.def.EnableMotor || fixedRotation {
		j.motorImpulse = 0
	}

	// warm start
	axial := j.motorImpulse + j.lowerImpulse - j.upperImpulse
	p := j.impulse
	a.v = r2.Sub(a.v, r2.Scale(a.invMass, p))
	a.w -= a.invI * (r2.Cross(j.rA, p) + axial)
	b.v = r2.Add(b.v, r2.Scale(b.invMass, p))
	b.w += b.invI * (r2.Cross(j.rB, p) + axial)
}

func (j *RevoluteJoint) solveVelocity(island []bodyState, dt, invDt float64) {
	a, b := &island[j.ia], &island[j.ib]
	mA, mB := a.invMass, b.invMass
	iA, iB := a.invI, b.invI
	fixedRotation := iA+iB == 0

	if j.def.EnableMotor && !fixedRotation {
		cdot := b.w - a.w - j.def.MotorSpeed
		impulse := -j.axialMass * cdot
		old := j.motorImpulse
		maxImpulse := dt * j.def.MaxMotorTorque
		j.motorImpulse = math.Max(-maxImpulse, math.Min(old+impulse, maxImpulse))
		impulse = j.motorImpulse - old
		a.w -= iA * impulse
		b.w += iB * impulse
	}

	if j.def.EnableLimit && !fixedRotation {
		// lower limit
		{
			c := j.angle - j.def.Lower
			cdot := b.w - a.w
			impulse := -j.axialMass * (cdot + math.Max(c, 0)*invDt)
			old := j.lowerImpulse
			j.lowerImpulse = math.Max(old+impulse, 0)
			impulse = j.lowerImpulse - old
			a.w -= iA * impulse
			b.w += iB * impulse
		}
		// upper limit, sign flipped
		{
			c := j.def.Upper - j.angle
			cdot := a.w - b.w
			impulse := -j.axialMass * (cdot + math.Max(c, 0)*invDt)
			old := j.upperImpulse
			j.upperImpulse = math.Max(old+impulse, 0)
			impulse = j.upperImpulse - old
			a.w += iA * impulse
			b.w -= iB * impulse
		}
	}

	// point constraint
	cdot := r2.Sub(
		r2.Add(b.v, components.CrossSV(b.w, j.rB)),
		r2.Add(a.v, components.CrossSV(a.w, j.rA)),
	)
	k := pointMass(mA, mB, iA, iB, j.rA, j.rB)
	impulse := k.solve(r2.Scale(-1, cdot))
	j.impulse = r2.Add(j.impulse, impulse)

	a.v = r2.Sub(a.v, r2.Scale(mA, impulse))
	a.w -= iA * r2.Cross(j.rA, impulse)
	b.v = r2.Add(b.v, r2.Scale(mB, impulse))
	b.w += iB * r2.Cross(j.rB, impulse)
}

// solvePosition corrects limit violation and anchor drift. It reports
// whether both are within tolerance.
func (j *RevoluteJoint) solvePosition(island []bodyState) bool {
	a, b := &island[j.ia], &island[j.ib]
	mA, mB := a.invMass, b.invMass
	iA, iB := a.invI, b.invI

	angularError := 0.0
	if j.def.EnableLimit && iA+iB != 0 {
		angle := b.a - a.a - j.def.ReferenceAngle
		c := 0.0
		lower, upper := j.def.Lower, j.def.Upper
		switch {
		case math.Abs(upper-lower) < 2*angularSlop:
			c = clamp(angle-lower, -maxAngularCorrection, maxAngularCorrection)
		case angle <= lower:
			c = clamp(angle-lower+angularSlop, -maxAngularCorrection, 0)
		case angle >= upper:
			c = clamp(angle-upper-angularSlop, 0, maxAngularCorrection)
		}
		limitImpulse := -j.axialMass * c
		a.a -= iA * limitImpulse
		b.a += iB * limitImpulse
		angularError = math.Abs(c)
	}

	rA := components.Rotate(r2.Sub(j.def.LocalAnchorA, a.localCenter), a.a)
	rB := components.Rotate(r2.Sub(j.def.LocalAnchorB, b.localCenter), b.a)
	c := r2.Sub(r2.Add(b.c, rB), r2.Add(a.c, rA))
	positionError := r2.Norm(c)

	k := pointMass(mA, mB, iA, iB, rA, rB)
	impulse := r2.Scale(-1, k.solve(c))

	a.c = r2.Sub(a.c, r2.Scale(mA, impulse))
	a.a -= iA * r2.Cross(rA, impulse)
	b.c = r2.Add(b.c, r2.Scale(mB, impulse))
	b.a += iB * r2.Cross(rB, impulse)

	return positionError <= linearSlop && angularError <= angularSlop
}

// mat22 is a symmetric-capable 2x2 matrix in row-major order.
type mat22 struct {
	a11, a12, a21, a22 float64
}

// pointMass is the effective mass matrix of a point-to-point constraint.
func pointMass(mA, mB, iA, iB float64, rA, rB r2.Vec) mat22 {
	return mat22{
		a11: mA + mB + rA.Y*rA.Y*iA + rB.Y*rB.Y*iB,
		a12: -rA.Y*rA.X*iA - rB.Y*rB.X*iB,
		a21: -rA.Y*rA.X*iA - rB.Y*rB.X*iB,
		a22: mA + mB + rA.X*rA.X*iA + rB.X*rB.X*iB,
	}
}

// solve returns x with K x = b, or zero when K is singular.
func (k mat22) solve(b r2.Vec) r2.Vec {
	det := k.a11*k.a22 - k.a12*k.a21
	if det != 0 {
		det = 1 / det
	}
	return r2.Vec{
		X: det * (k.a22*b.X - k.a12*b.Y),
		Y: det * (k.a11*b.Y - k.a21*b.X),
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
