package physics

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/strider/components"
	"github.com/pthm-cable/strider/config"
)

func testPhysics() config.PhysicsConfig {
	return config.PhysicsConfig{
		DT:                 0.02,
		VelocityIterations: 6,
		PositionIterations: 2,
		MaxSteps:           1000,
		Gravity:            -10,
	}
}

func flatGround(t *testing.T, w *World) BodyID {
	t.Helper()
	id, err := w.AddGround([]components.Shape{
		components.Edge(r2.Vec{X: 0, Y: 0}, r2.Vec{X: 10, Y: 0}),
		components.Edge(r2.Vec{X: 10, Y: 0}, r2.Vec{X: 20, Y: 0}),
	}, 1)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func unitBox(w *World, at r2.Vec) BodyID {
	return w.CreateBody(BodyDef{
		Kind:     components.PartHull,
		Leg:      -1,
		Pose:     components.Pose{Position: at},
		Shapes:   []components.Shape{components.Box(0.5, 0.5, r2.Vec{}, 0)},
		Density:  1,
		Friction: 0.5,
	})
}

func TestPolygonMass(t *testing.T) {
	box := components.Box(1, 0.5, r2.Vec{X: 1, Y: 0}, 0)
	m := computeMass([]components.Shape{box}, 1, false)

	if math.Abs(m.Mass-2) > 1e-12 {
		t.Errorf("mass = %v, want 2", m.Mass)
	}
	if math.Abs(m.LocalCenter.X-1) > 1e-12 || math.Abs(m.LocalCenter.Y) > 1e-12 {
		t.Errorf("center = %v, want (1, 0)", m.LocalCenter)
	}
	// m (w^2 + h^2) / 12 about the centroid
	if want := 2.0 * (4 + 1) / 12; math.Abs(m.Inertia-want) > 1e-12 {
		t.Errorf("inertia = %v, want %v", m.Inertia, want)
	}
}

func TestCombinedMass(t *testing.T) {
	shapes := []components.Shape{
		components.Box(0.5, 0.5, r2.Vec{X: -1}, 0),
		components.Circle(r2.Vec{X: 1}, 0.5),
	}
	m := computeMass(shapes, 2, false)
	boxMass, circleMass := 2.0, 2*math.Pi*0.25
	if math.Abs(m.Mass-(boxMass+circleMass)) > 1e-12 {
		t.Errorf("mass = %v", m.Mass)
	}
	wantX := (boxMass*-1 + circleMass*1) / (boxMass + circleMass)
	if math.Abs(m.LocalCenter.X-wantX) > 1e-12 {
		t.Errorf("center x = %v, want %v", m.LocalCenter.X, wantX)
	}
	if m.Inertia <= 0 || math.Abs(m.InvInertia*m.Inertia-1) > 1e-12 {
		t.Errorf("inertia = %v, inverse = %v", m.Inertia, m.InvInertia)
	}
}

func TestStaticMass(t *testing.T) {
	m := computeMass([]components.Shape{components.Box(1, 1, r2.Vec{}, 0)}, 1, true)
	if m.InvMass != 0 || m.InvInertia != 0 {
		t.Errorf("static body has inverse mass %v inertia %v", m.InvMass, m.InvInertia)
	}
}

func TestStepErrors(t *testing.T) {
	w := NewWorld(testPhysics())
	if err := w.Step(0.02, 6, 2); !errors.Is(err, ErrNotBuilt) {
		t.Errorf("empty world Step = %v, want ErrNotBuilt", err)
	}
	flatGround(t, w)
	if err := w.Step(0.02, 6, 2); !errors.Is(err, ErrNotBuilt) {
		t.Errorf("ground-only Step = %v, want ErrNotBuilt", err)
	}
	unitBox(w, r2.Vec{X: 5, Y: 2})

	tests := []struct {
		name     string
		dt       float64
		vel, pos int
	}{
		{"zero dt", 0, 6, 2},
		{"negative dt", -0.01, 6, 2},
		{"nan dt", math.NaN(), 6, 2},
		{"zero velocity iterations", 0.02, 0, 2},
		{"negative position iterations", 0.02, 6, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := w.Step(tt.dt, tt.vel, tt.pos); !errors.Is(err, ErrInvalidStep) {
				t.Errorf("Step = %v, want ErrInvalidStep", err)
			}
		})
	}
	if err := w.Step(0.02, 6, 2); err != nil {
		t.Errorf("valid Step = %v", err)
	}
}

func TestFreeFall(t *testing.T) {
	w := NewWorld(testPhysics())
	id := unitBox(w, r2.Vec{X: 0, Y: 100})
	for i := 0; i < 50; i++ {
		if err := w.Advance(); err != nil {
			t.Fatal(err)
		}
	}
	// semi-implicit Euler: v = g*t exactly, y drops by g*dt^2*n(n+1)/2
	v := w.Velocity(id).Linear
	if math.Abs(v.Y-(-10)) > 1e-9 {
		t.Errorf("vy = %v, want -10", v.Y)
	}
	wantY := 100 - 10*0.02*0.02*50*51/2
	if y := w.Pose(id).Position.Y; math.Abs(y-wantY) > 1e-9 {
		t.Errorf("y = %v, want %v", y, wantY)
	}
}

func TestBoxComesToRest(t *testing.T) {
	w := NewWorld(testPhysics())
	flatGround(t, w)
	id := unitBox(w, r2.Vec{X: 5, Y: 2})

	begins, ends := 0, 0
	for i := 0; i < 250; i++ {
		if err := w.Advance(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		for _, ev := range w.DrainEvents() {
			if ev.Body != id {
				t.Errorf("event for unexpected body %d", ev.Body)
			}
			if ev.Kind == ContactBegin {
				begins++
			} else {
				ends++
			}
		}
	}

	pose := w.Pose(id)
	if pose.Position.Y < 0.45 || pose.Position.Y > 0.52 {
		t.Errorf("resting height = %v, want ~0.5", pose.Position.Y)
	}
	if math.Abs(pose.Angle) > 0.02 {
		t.Errorf("resting angle = %v, want ~0", pose.Angle)
	}
	if math.Abs(pose.Position.X-5) > 0.05 {
		t.Errorf("box drifted to x = %v", pose.Position.X)
	}
	if v := w.Velocity(id).Linear; r2.Norm(v) > 0.1 {
		t.Errorf("resting velocity = %v", v)
	}
	if begins != 1 || ends != 0 {
		t.Errorf("events begin=%d end=%d, want 1/0", begins, ends)
	}
	if len(w.DrainEvents()) != 0 {
		t.Error("DrainEvents did not clear the queue")
	}
}

func TestNoContactOffTrack(t *testing.T) {
	w := NewWorld(testPhysics())
	flatGround(t, w)
	id := unitBox(w, r2.Vec{X: -5, Y: 1})
	for i := 0; i < 50; i++ {
		if err := w.Advance(); err != nil {
			t.Fatal(err)
		}
	}
	if y := w.Pose(id).Position.Y; y > 0 {
		t.Errorf("box beyond the track should fall, y = %v", y)
	}
}

func jointPair(t *testing.T, w *World, def JointDef) (BodyID, BodyID, *RevoluteJoint) {
	t.Helper()
	a := unitBox(w, r2.Vec{X: 0, Y: 0})
	b := unitBox(w, r2.Vec{X: 1, Y: 0})
	def.BodyA, def.BodyB = a, b
	def.LocalAnchorA = r2.Vec{X: 0.5, Y: 0}
	def.LocalAnchorB = r2.Vec{X: -0.5, Y: 0}
	j, err := w.CreateRevoluteJoint(def)
	if err != nil {
		t.Fatal(err)
	}
	return a, b, j
}

func TestJointKeepsAnchorsTogether(t *testing.T) {
	w := NewWorld(testPhysics())
	_, b, j := jointPair(t, w, JointDef{})
	w.SetVelocity(b, components.Velocity{Angular: 3, Linear: r2.Vec{Y: 1}})

	for i := 0; i < 100; i++ {
		if err := w.Advance(); err != nil {
			t.Fatal(err)
		}
	}
	pa := j.AnchorWorld()
	pb := w.Pose(b).Apply(r2.Vec{X: -0.5, Y: 0})
	if d := r2.Norm(r2.Sub(pa, pb)); d > 0.02 {
		t.Errorf("anchor separation = %v", d)
	}
}

func TestMotorReachesSpeed(t *testing.T) {
	cfg := testPhysics()
	cfg.Gravity = 0
	w := NewWorld(cfg)
	_, _, j := jointPair(t, w, JointDef{EnableMotor: true, MaxMotorTorque: 1000, MotorSpeed: 2})

	for i := 0; i < 20; i++ {
		if err := w.Advance(); err != nil {
			t.Fatal(err)
		}
	}
	if s := j.Speed(); math.Abs(s-2) > 0.2 {
		t.Errorf("joint speed = %v, want ~2", s)
	}
}

func TestMotorTorqueLimit(t *testing.T) {
	cfg := testPhysics()
	cfg.Gravity = 0
	w := NewWorld(cfg)
	_, _, j := jointPair(t, w, JointDef{EnableMotor: true, MaxMotorTorque: 0, MotorSpeed: 5})

	for i := 0; i < 20; i++ {
		if err := w.Advance(); err != nil {
			t.Fatal(err)
		}
	}
	if s := j.Speed(); math.Abs(s) > 1e-9 {
		t.Errorf("zero-torque motor moved the joint, speed = %v", s)
	}
}

func TestJointLimit(t *testing.T) {
	cfg := testPhysics()
	cfg.Gravity = 0
	w := NewWorld(cfg)
	_, _, j := jointPair(t, w, JointDef{
		EnableLimit:    true,
		Lower:          -0.5,
		Upper:          0.5,
		EnableMotor:    true,
		MaxMotorTorque: 50,
		MotorSpeed:     4,
	})

	for i := 0; i < 100; i++ {
		if err := w.Advance(); err != nil {
			t.Fatal(err)
		}
		if a := j.Angle(); a > 0.5+0.05 {
			t.Fatalf("step %d: angle %v exceeds upper limit", i, a)
		}
	}
	if a := j.Angle(); a < 0.4 {
		t.Errorf("motor should hold the joint near its upper limit, angle = %v", a)
	}
}

func TestCreateJointErrors(t *testing.T) {
	w := NewWorld(testPhysics())
	ground := flatGround(t, w)
	a := unitBox(w, r2.Vec{X: 1, Y: 1})
	b := unitBox(w, r2.Vec{X: 2, Y: 1})

	tests := []struct {
		name string
		def  JointDef
	}{
		{"static body", JointDef{BodyA: ground, BodyB: a}},
		{"same body", JointDef{BodyA: a, BodyB: a}},
		{"missing body", JointDef{BodyA: a, BodyB: 99}},
		{"inverted limits", JointDef{BodyA: a, BodyB: b, EnableLimit: true, Lower: 1, Upper: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := w.CreateRevoluteJoint(tt.def); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDiverged(t *testing.T) {
	w := NewWorld(testPhysics())
	id := unitBox(w, r2.Vec{X: 1, Y: 1})
	w.SetVelocity(id, components.Velocity{Angular: math.NaN()})
	if err := w.Advance(); !errors.Is(err, ErrDiverged) {
		t.Errorf("Step = %v, want ErrDiverged", err)
	}
}

func TestShapesTransformed(t *testing.T) {
	w := NewWorld(testPhysics())
	id := unitBox(w, r2.Vec{X: 3, Y: 4})
	shapes := w.Shapes(id)
	if len(shapes) != 1 {
		t.Fatalf("got %d shapes", len(shapes))
	}
	lo, hi := shapes[0].Bounds()
	if lo != (r2.Vec{X: 2.5, Y: 3.5}) || hi != (r2.Vec{X: 3.5, Y: 4.5}) {
		t.Errorf("bounds = %v %v", lo, hi)
	}
}

func TestAddGroundRejectsBadEdges(t *testing.T) {
	w := NewWorld(testPhysics())
	_, err := w.AddGround([]components.Shape{
		components.Edge(r2.Vec{X: 5, Y: 0}, r2.Vec{X: 0, Y: 0}),
	}, 1)
	if err == nil {
		t.Error("expected error for edge decreasing in x")
	}
}
