// Package fitness scores walker episodes step by step and decides when an
// episode ends.
package fitness

import (
	"log/slog"
	"math"

	"github.com/pthm-cable/strider/config"
)

// Reason is why an episode terminated.
type Reason uint8

const (
	None Reason = iota
	Diverged
	Fall
	FellOffStart
	Success
	Timeout
	Stuck
)

// Reasons lists every termination reason, None excluded.
var Reasons = []Reason{Diverged, Fall, FellOffStart, Success, Timeout, Stuck}

// String returns the reason name.
func (r Reason) String() string {
	switch r {
	case None:
		return "none"
	case Diverged:
		return "diverged"
	case Fall:
		return "fall"
	case FellOffStart:
		return "fell_off_start"
	case Success:
		return "success"
	case Timeout:
		return "timeout"
	case Stuck:
		return "stuck"
	}
	return "unknown"
}

// MarshalText encodes the reason name.
func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Sample is the walker state the evaluator sees after one physics step.
type Sample struct {
	X           float64 // hull tracker, forward
	Angle       float64 // hull angle
	HullContact bool
	Diverged    bool
}

// Evaluator accumulates reward over one episode and detects termination.
// Reward per step is the change in shaping minus the effort penalty, so
// the total telescopes to final shaping minus initial shaping minus effort.
type Evaluator struct {
	cfg         config.FitnessConfig
	trackLength float64
	maxSteps    int
	stuckSteps  int

	startX      float64
	prevShaping float64
	startShape  float64

	reward float64
	effort float64
	x      float64
	steps  int
	reason Reason

	anchorX    float64
	anchorStep int
}

// NewEvaluator creates an evaluator for a track of the given length. The
// step cap and the stuck window come from cfg.
func NewEvaluator(cfg *config.Config, trackLength float64) *Evaluator {
	return &Evaluator{
		cfg:         cfg.Fitness,
		trackLength: trackLength,
		maxSteps:    cfg.Physics.MaxSteps,
		stuckSteps:  cfg.Derived.StuckSteps,
	}
}

// Shaping is progress_scale·x − tilt_penalty·|angle|.
func (e *Evaluator) Shaping(x, angle float64) float64 {
	return e.cfg.ProgressScale*x - e.cfg.TiltPenalty*math.Abs(angle)
}

// Effort is Σ effort_coefficient·|cmd|, commands clamped to [-1, 1].
func (e *Evaluator) Effort(cmd []float64) float64 {
	sum := 0.0
	for _, a := range cmd {
		if math.IsNaN(a) {
			continue
		}
		sum += e.cfg.EffortCoefficient * math.Min(1, math.Abs(a))
	}
	return sum
}

// Start records the spawn state as the first previous shaping.
func (e *Evaluator) Start(x, angle float64) {
	e.startX, e.x = x, x
	e.anchorX = x
	e.prevShaping = e.Shaping(x, angle)
	e.startShape = e.prevShaping
}

// Step scores one step and reports whether the episode is over. The first
// matching termination wins; penalties replace that step's reward.
func (e *Evaluator) Step(s Sample, cmd []float64) (reward float64, done bool) {
	if e.reason != None {
		return 0, true
	}
	e.steps++

	if s.Diverged || !finite(s.X) || !finite(s.Angle) {
		e.reason = Diverged
		e.reward -= e.cfg.FallPenalty
		return -e.cfg.FallPenalty, true
	}

	e.x = s.X
	shaping := e.Shaping(s.X, s.Angle)
	effort := e.Effort(cmd)
	reward = shaping - e.prevShaping - effort
	e.prevShaping = shaping
	e.effort += effort

	switch {
	case s.HullContact:
		e.reason = Fall
		reward = -e.cfg.FallPenalty
	case s.X < 0:
		e.reason = FellOffStart
		reward = -e.cfg.FallPenalty
	case s.X > e.trackLength-e.cfg.SuccessMargin:
		e.reason = Success
	case e.steps >= e.maxSteps:
		e.reason = Timeout
	case e.stuck(s.X):
		e.reason = Stuck
		reward = -e.cfg.StuckPenalty
	}

	e.reward += reward
	return reward, e.reason != None
}

// stuck advances the progress anchor and reports whether the walker has
// not moved min_move past it for stuck_duration.
func (e *Evaluator) stuck(x float64) bool {
	if x >= e.anchorX+e.cfg.MinMove {
		e.anchorX = x
		e.anchorStep = e.steps
		return false
	}
	return e.steps-e.anchorStep >= e.stuckSteps
}

// Done reports whether a termination reason has been recorded.
func (e *Evaluator) Done() bool { return e.reason != None }

// Reason returns the termination reason, None while running.
func (e *Evaluator) Reason() Reason { return e.reason }

// Steps returns the number of scored steps.
func (e *Evaluator) Steps() int { return e.steps }

// Reward returns the accumulated reward.
func (e *Evaluator) Reward() float64 { return e.reward }

// TotalEffort returns the accumulated effort penalty.
func (e *Evaluator) TotalEffort() float64 { return e.effort }

// ShapingDelta returns the last finite shaping minus the spawn shaping.
func (e *Evaluator) ShapingDelta() float64 { return e.prevShaping - e.startShape }

// Distance returns the forward displacement from spawn.
func (e *Evaluator) Distance() float64 { return e.x - e.startX }

// Fitness returns the scalar the optimizer maximizes.
func (e *Evaluator) Fitness() float64 {
	if e.cfg.Metric == config.MetricDistance {
		return e.Distance()
	}
	return e.reward
}

// LogValue implements slog.LogValuer.
func (e *Evaluator) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("reason", e.reason.String()),
		slog.Int("steps", e.steps),
		slog.Float64("reward", e.reward),
		slog.Float64("effort", e.effort),
		slog.Float64("distance", e.Distance()),
	)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
