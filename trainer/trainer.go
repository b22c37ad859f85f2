// Package trainer evaluates whole generations: one shared terrain, one
// episode per chromosome run in parallel, then fitness assignment and
// ranking once every episode has finished.
package trainer

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/pthm-cable/strider/config"
	"github.com/pthm-cable/strider/episode"
	"github.com/pthm-cable/strider/evolve"
	"github.com/pthm-cable/strider/genome"
	"github.com/pthm-cable/strider/history"
	"github.com/pthm-cable/strider/telemetry"
	"github.com/pthm-cable/strider/terrain"
)

// Report is the outcome of one generation.
type Report struct {
	Generation int
	// Records are the episode records, best first.
	Records []telemetry.EpisodeRecord
	Stats   telemetry.GenerationStats
	// Best is the top chromosome after fitness assignment.
	Best evolve.Chromosome
	// History holds one timeline per chromosome ID when recording is on.
	History *history.History
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers bounds concurrent episodes. 0 uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(r *Runner) { r.workers = n }
}

// WithHistory records every episode's frames into the report.
func WithHistory(record bool) Option {
	return func(r *Runner) { r.recordHistory = record }
}

// WithLogger sets the logger for generation and episode diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithPerf times the terrain and episode phases of each generation.
func WithPerf(p *telemetry.PerfCollector) Option {
	return func(r *Runner) { r.perf = p }
}

// Runner runs generations for one configuration and genome layout.
type Runner struct {
	cfg       *config.Config
	layout    genome.Layout
	collector *telemetry.Collector

	workers       int
	recordHistory bool
	logger        *slog.Logger
	perf          *telemetry.PerfCollector
}

// NewRunner creates a generation runner.
func NewRunner(cfg *config.Config, layout genome.Layout, opts ...Option) *Runner {
	r := &Runner{
		cfg:       cfg,
		layout:    layout,
		collector: telemetry.NewCollector(cfg.Evolution.PopulationSize),
		workers:   cfg.Evolution.Workers,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers <= 0 {
		r.workers = runtime.GOMAXPROCS(0)
	}
	return r
}

// Workers returns the concurrency bound.
func (r *Runner) Workers() int {
	return r.workers
}

// Collector returns the run-wide episode collector.
func (r *Runner) Collector() *telemetry.Collector {
	return r.collector
}

// RunGeneration generates one terrain from terrainCfg, evaluates every
// chromosome of pop on it and assigns each fitness exactly once. The
// population is sorted on return. If any episode fails, no fitness is
// assigned.
func (r *Runner) RunGeneration(ctx context.Context, pop *evolve.Population, terrainCfg config.TerrainConfig) (Report, error) {
	start := time.Now()
	gen := pop.Generation()

	r.phase(telemetry.PhaseTerrain)
	ter, err := terrain.Generate(terrainCfg)
	if err != nil {
		return Report{}, fmt.Errorf("generation %d: %w", gen, err)
	}

	// Snapshot: chromosomes and timelines are fixed before workers start.
	cs := pop.Chromosomes()
	var hist *history.History
	timelines := make([]*history.Timeline, len(cs))
	if r.recordHistory {
		hist = history.New()
		hist.SetTerrain(ter.Shapes())
		for i, c := range cs {
			timelines[i] = hist.NewTimeline(c.ID.String())
		}
	}

	// Compute: each task owns its episode and writes only its own slot.
	r.phase(telemetry.PhaseEpisodes)
	results := make([]episode.Result, len(cs))
	p := pool.New().WithContext(ctx).WithMaxGoroutines(r.workers).WithCancelOnError()
	for i, c := range cs {
		p.Go(func(ctx context.Context) error {
			opts := []episode.Option{episode.WithLogger(r.logger)}
			if timelines[i] != nil {
				opts = append(opts, episode.WithTimeline(timelines[i]))
			}
			d, err := episode.FromGenome(r.cfg, r.layout, c.Genome, ter, opts...)
			if err != nil {
				return fmt.Errorf("chromosome %s: %w", c.ID, err)
			}
			res, err := d.Run(ctx)
			if err != nil {
				return fmt.Errorf("chromosome %s: %w", c.ID, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return Report{}, fmt.Errorf("generation %d: %w", gen, err)
	}

	// Apply: single-threaded after the barrier.
	for i, c := range cs {
		res := results[i]
		if err := pop.SetFitness(c.ID, res.Fitness); err != nil {
			return Report{}, err
		}
		r.collector.Record(telemetry.NewEpisodeRecord(gen, c.ID.String(),
			res.Fitness, res.Reward, res.Distance, res.Effort, res.Steps, res.Reason))
		r.logger.Debug("episode", "generation", gen, "id", c.ID, "result", res)
	}
	pop.Sort()

	stats, records := r.collector.Flush(gen, time.Since(start))
	best, _ := pop.Best()
	return Report{
		Generation: gen,
		Records:    records,
		Stats:      stats,
		Best:       best,
		History:    hist,
	}, nil
}

func (r *Runner) phase(name string) {
	if r.perf != nil {
		r.perf.StartPhase(name)
	}
}
