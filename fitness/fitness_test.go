package fitness

import (
	"math"
	"testing"

	"github.com/pthm-cable/strider/config"
	"github.com/pthm-cable/strider/physics"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Physics.MaxSteps = 50
	cfg.Fitness.StuckDuration = 0.2 // 10 steps at dt 0.02
	if err := cfg.Refresh(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestRewardTelescopes(t *testing.T) {
	cfg := testConfig(t)
	e := NewEvaluator(cfg, 600)
	e.Start(5, 0)

	cmd := []float64{0.5, -0.5, 1, 0}
	sum := 0.0
	xs := []float64{5.2, 5.9, 6.5, 7.4}
	angles := []float64{0.01, -0.02, 0.05, 0.03}
	for i := range xs {
		r, done := e.Step(Sample{X: xs[i], Angle: angles[i]}, cmd)
		if done {
			t.Fatalf("terminated early: %v", e.Reason())
		}
		sum += r
	}

	effort := 4 * 2 * 0.028
	want := e.Shaping(7.4, 0.03) - e.Shaping(5, 0) - effort
	if math.Abs(sum-want) > 1e-9 || math.Abs(e.Reward()-want) > 1e-9 {
		t.Errorf("reward = %v (sum %v), want %v", e.Reward(), sum, want)
	}
	if math.Abs(e.TotalEffort()-effort) > 1e-12 {
		t.Errorf("effort = %v, want %v", e.TotalEffort(), effort)
	}
	if math.Abs(e.ShapingDelta()-(e.Reward()+e.TotalEffort())) > 1e-9 {
		t.Errorf("shaping delta %v inconsistent", e.ShapingDelta())
	}
	if math.Abs(e.Distance()-2.4) > 1e-12 {
		t.Errorf("distance = %v", e.Distance())
	}
}

func TestTermination(t *testing.T) {
	tests := []struct {
		name       string
		sample     Sample
		want       Reason
		wantReward float64
	}{
		{"diverged", Sample{X: math.NaN()}, Diverged, -100},
		{"diverged flag wins over fall", Sample{X: 6, Diverged: true, HullContact: true}, Diverged, -100},
		{"fall", Sample{X: 6, HullContact: true}, Fall, -100},
		{"fall wins over off start", Sample{X: -1, HullContact: true}, Fall, -100},
		{"fell off start", Sample{X: -0.1}, FellOffStart, -100},
		{"success", Sample{X: 591}, Success, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			e := NewEvaluator(cfg, 600)
			e.Start(5, 0)
			r, done := e.Step(tt.sample, make([]float64, 4))
			if !done || e.Reason() != tt.want {
				t.Fatalf("done=%v reason=%v, want %v", done, e.Reason(), tt.want)
			}
			if tt.want != Success && r != tt.wantReward {
				t.Errorf("reward = %v, want %v", r, tt.wantReward)
			}
			if tt.want == Success && r <= 0 {
				t.Errorf("success step reward = %v, want progress", r)
			}
			if math.IsNaN(e.Reward()) {
				t.Error("NaN leaked into reward")
			}
		})
	}
}

func TestTimeout(t *testing.T) {
	cfg := testConfig(t)
	e := NewEvaluator(cfg, 600)
	e.Start(5, 0)
	x := 5.0
	for i := 1; i <= cfg.Physics.MaxSteps; i++ {
		x += 0.1 // keeps moving, never stuck
		_, done := e.Step(Sample{X: x}, nil)
		if done != (i == cfg.Physics.MaxSteps) {
			t.Fatalf("step %d: done=%v reason=%v", i, done, e.Reason())
		}
	}
	if e.Reason() != Timeout || e.Steps() != cfg.Physics.MaxSteps {
		t.Errorf("reason=%v steps=%d", e.Reason(), e.Steps())
	}
	if _, done := e.Step(Sample{X: x}, nil); !done || e.Steps() != cfg.Physics.MaxSteps {
		t.Error("step after termination changed the evaluator")
	}
}

func TestStuck(t *testing.T) {
	cfg := testConfig(t)
	e := NewEvaluator(cfg, 600)
	e.Start(5, 0)

	// creeping slower than min_move per window
	x := 5.0
	for i := 1; i < cfg.Derived.StuckSteps; i++ {
		x += 0.01
		if _, done := e.Step(Sample{X: x}, nil); done {
			t.Fatalf("step %d: terminated with %v", i, e.Reason())
		}
	}
	// a real step forward moves the anchor
	x += 0.5
	if _, done := e.Step(Sample{X: x}, nil); done {
		t.Fatalf("terminated after progress: %v", e.Reason())
	}
	for i := 1; i <= cfg.Derived.StuckSteps; i++ {
		r, done := e.Step(Sample{X: x}, nil)
		if i < cfg.Derived.StuckSteps && done {
			t.Fatalf("stuck fired %d steps after progress", i)
		}
		if i == cfg.Derived.StuckSteps {
			if !done || e.Reason() != Stuck {
				t.Fatalf("done=%v reason=%v", done, e.Reason())
			}
			if r != -cfg.Fitness.StuckPenalty {
				t.Errorf("stuck reward = %v", r)
			}
		}
	}
}

func TestMetric(t *testing.T) {
	cfg := testConfig(t)
	cfg.Fitness.Metric = config.MetricDistance
	e := NewEvaluator(cfg, 600)
	e.Start(5, 0)
	e.Step(Sample{X: 7, Angle: 0.5}, []float64{1, 1, 1, 1})
	if e.Fitness() != 2 {
		t.Errorf("distance fitness = %v", e.Fitness())
	}
}

func TestContactTracker(t *testing.T) {
	c := NewContactTracker()
	c.Apply([]physics.ContactEvent{
		{Body: 1, Kind: physics.ContactBegin},
		{Body: 2, Kind: physics.ContactBegin},
		{Body: 1, Kind: physics.ContactEnd},
	})
	if c.Touching(1) || !c.Touching(2) || c.Touching(3) {
		t.Errorf("flags: 1=%v 2=%v 3=%v", c.Touching(1), c.Touching(2), c.Touching(3))
	}
	if c.Count() != 1 {
		t.Errorf("Count() = %d", c.Count())
	}
}
