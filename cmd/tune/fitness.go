package main

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/pthm-cable/strider/body"
	"github.com/pthm-cable/strider/config"
	"github.com/pthm-cable/strider/episode"
	"github.com/pthm-cable/strider/fitness"
	"github.com/pthm-cable/strider/policy"
	"github.com/pthm-cable/strider/terrain"
)

// Evaluator scores a gain vector by running the state-machine walker over
// a fixed set of terrains.
type Evaluator struct {
	params   *ParamVector
	cfg      *config.Config
	morph    body.Morphology
	terrains []*terrain.Terrain

	mu           sync.Mutex
	bestFitness  float64
	bestDistance float64
	lastDistance float64
	lastFalls    int
}

// seedResult holds the result from one terrain.
type seedResult struct {
	fitness  float64
	distance float64
	fell     bool
}

// NewEvaluator generates one terrain per seed from cfg.Terrain.
func NewEvaluator(params *ParamVector, cfg *config.Config, seeds []int64) (*Evaluator, error) {
	if len(seeds) == 0 {
		return nil, fmt.Errorf("%w: no terrain seeds", config.ErrInvalidConfiguration)
	}
	e := &Evaluator{
		params:      params,
		cfg:         cfg,
		morph:       body.NominalMorphology(cfg.Body),
		bestFitness: math.Inf(1),
	}
	for _, seed := range seeds {
		tc := cfg.Terrain
		tc.Seed = seed
		ter, err := terrain.Generate(tc)
		if err != nil {
			return nil, fmt.Errorf("terrain seed %d: %w", seed, err)
		}
		e.terrains = append(e.terrains, ter)
	}
	return e, nil
}

// Evaluate returns the negated mean episode fitness over all terrains, so
// lower is better.
func (e *Evaluator) Evaluate(ctx context.Context, x []float64) (float64, error) {
	gains := e.params.Apply(e.cfg.Policy.StateMachine, x)

	results := make([]seedResult, len(e.terrains))
	p := pool.New().WithContext(ctx).WithCancelOnError()
	for i, ter := range e.terrains {
		p.Go(func(ctx context.Context) error {
			d := episode.New(e.cfg, ter, e.morph, policy.NewStateMachine(gains))
			res, err := d.Run(ctx)
			if err != nil {
				return err
			}
			results[i] = seedResult{
				fitness:  res.Fitness,
				distance: res.Distance,
				fell:     res.Reason == fitness.Fall || res.Reason == fitness.FellOffStart,
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return math.Inf(1), err
	}

	var totalFitness, totalDistance float64
	falls := 0
	for _, r := range results {
		f := r.fitness
		if math.IsNaN(f) {
			f = -e.cfg.Fitness.FallPenalty
		}
		totalFitness += f
		totalDistance += r.distance
		if r.fell {
			falls++
		}
	}
	n := float64(len(results))
	score := -totalFitness / n

	e.mu.Lock()
	e.lastDistance = totalDistance / n
	e.lastFalls = falls
	if score < e.bestFitness {
		e.bestFitness = score
		e.bestDistance = e.lastDistance
	}
	e.mu.Unlock()
	return score, nil
}

// Last returns the mean distance and fall count of the most recent
// evaluation.
func (e *Evaluator) Last() (distance float64, falls int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastDistance, e.lastFalls
}

// Best returns the lowest score seen and its mean distance.
func (e *Evaluator) Best() (score, distance float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bestFitness, e.bestDistance
}
