// Package episode runs one walker through one terrain: build the world,
// then step physics, observe, act and score until the evaluator stops it.
package episode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/strider/body"
	"github.com/pthm-cable/strider/config"
	"github.com/pthm-cable/strider/fitness"
	"github.com/pthm-cable/strider/genome"
	"github.com/pthm-cable/strider/history"
	"github.com/pthm-cable/strider/physics"
	"github.com/pthm-cable/strider/policy"
	"github.com/pthm-cable/strider/terrain"
)

// ErrReused is returned when Run is called on a driver that already ran.
var ErrReused = errors.New("episode driver already used")

// State is the driver lifecycle phase.
type State uint8

const (
	Building State = iota
	Running
	Terminated
)

// String returns the phase name.
func (s State) String() string {
	switch s {
	case Building:
		return "building"
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// Result summarizes one episode.
type Result struct {
	Distance     float64        `json:"distance"`
	Reward       float64        `json:"reward"`
	Effort       float64        `json:"effort"`
	ShapingDelta float64        `json:"shaping_delta"`
	Fitness      float64        `json:"fitness"`
	Reason       fitness.Reason `json:"reason"`
	Steps        int            `json:"steps"`
	Final        r2.Vec         `json:"final"`
	MaxTilt      float64        `json:"max_tilt"` // Largest absolute hull angle seen
}

// LogValue implements slog.LogValuer.
func (r Result) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("reason", r.Reason.String()),
		slog.Int("steps", r.Steps),
		slog.Float64("distance", r.Distance),
		slog.Float64("reward", r.Reward),
		slog.Float64("effort", r.Effort),
		slog.Float64("max_tilt", r.MaxTilt),
	)
}

// Option configures a Driver.
type Option func(*Driver)

// WithTimeline records every step's shapes onto the timeline.
func WithTimeline(t *history.Timeline) Option {
	return func(d *Driver) { d.timeline = t }
}

// WithLogger sets the logger used for episode-level diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// Driver runs a single episode. It is single-use.
type Driver struct {
	cfg   *config.Config
	ter   *terrain.Terrain
	morph body.Morphology
	pol   policy.Policy

	timeline *history.Timeline
	logger   *slog.Logger
	state    State
}

// New prepares an episode. A nil terrain is generated from cfg.Terrain at
// Run; a supplied terrain must already be generated and is only read.
func New(cfg *config.Config, ter *terrain.Terrain, morph body.Morphology, pol policy.Policy, opts ...Option) *Driver {
	d := &Driver{
		cfg:    cfg,
		ter:    ter,
		morph:  morph,
		pol:    pol,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FromGenome decodes g through the layout into a morphology and a fresh
// controller.
func FromGenome(cfg *config.Config, layout genome.Layout, g genome.Genome, ter *terrain.Terrain, opts ...Option) (*Driver, error) {
	morph, err := layout.Morphology(g)
	if err != nil {
		return nil, err
	}
	pol, err := layout.Controller(g)
	if err != nil {
		return nil, err
	}
	return New(cfg, ter, morph, pol, opts...), nil
}

// State returns the lifecycle phase.
func (d *Driver) State() State {
	return d.state
}

// Run builds a fresh physics world and steps it until termination. The
// step cap bounds every episode. Errors are returned for setup failures
// and cancellation only; numerical blow-ups end the episode as Diverged.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	if d.state != Building {
		return Result{}, ErrReused
	}
	defer func() { d.state = Terminated }()

	ter := d.ter
	if ter == nil {
		var err error
		if ter, err = terrain.Generate(d.cfg.Terrain); err != nil {
			return Result{}, err
		}
	}
	spawn, err := ter.SpawnPosition()
	if err != nil {
		return Result{}, err
	}

	world := physics.NewWorld(d.cfg.Physics)
	if _, err := world.AddGround(ter.Shapes(), ter.Friction()); err != nil {
		return Result{}, fmt.Errorf("adding ground: %w", err)
	}
	walker, err := body.Build(world, d.cfg.Body, d.morph, spawn)
	if err != nil {
		return Result{}, fmt.Errorf("building walker: %w", err)
	}

	contacts := fitness.NewContactTracker()
	eval := fitness.NewEvaluator(d.cfg, ter.Length())
	start := walker.Tracker()
	eval.Start(start.X, walker.HullAngle())
	d.pol.Reset()
	d.record(walker)

	d.state = Running
	last := start
	var maxTilt float64
	for !eval.Done() {
		if err := ctx.Err(); err != nil {
			return d.result(eval, last, maxTilt), err
		}

		var sample fitness.Sample
		switch err := world.Advance(); {
		case errors.Is(err, physics.ErrDiverged):
			sample.Diverged = true
		case err != nil:
			return d.result(eval, last, maxTilt), fmt.Errorf("step %d: %w", world.Steps(), err)
		}
		contacts.Apply(world.DrainEvents())

		var cmd []float64
		if !sample.Diverged {
			obs := walker.Observe(contacts)
			cmd = d.pol.Act(obs.Slice())
			if err := walker.Apply(cmd); err != nil {
				return d.result(eval, last, maxTilt), err
			}
			last = walker.Tracker()
			sample.X = last.X
			sample.Angle = walker.HullAngle()
			maxTilt = math.Max(maxTilt, math.Abs(sample.Angle))
			sample.HullContact = contacts.Touching(walker.HullID())
		}
		eval.Step(sample, cmd)
		if !sample.Diverged {
			d.record(walker)
		}
	}

	res := d.result(eval, last, maxTilt)
	d.logger.Debug("episode finished", "result", res)
	return res, nil
}

func (d *Driver) record(walker *body.Biped) {
	if d.timeline != nil {
		d.timeline.RecordStep(walker.Shapes(), walker.Tracker())
	}
}

func (d *Driver) result(eval *fitness.Evaluator, final r2.Vec, maxTilt float64) Result {
	return Result{
		Distance:     eval.Distance(),
		Reward:       eval.Reward(),
		Effort:       eval.TotalEffort(),
		ShapingDelta: eval.ShapingDelta(),
		Fitness:      eval.Fitness(),
		Reason:       eval.Reason(),
		Steps:        eval.Steps(),
		Final:        final,
		MaxTilt:      maxTilt,
	}
}
