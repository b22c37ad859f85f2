// Package experiment drives a whole evolution run: it owns the
// population, runs one generation at a time through the trainer, feeds
// telemetry and persists the run's artifacts.
package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pthm-cable/strider/config"
	"github.com/pthm-cable/strider/evolve"
	"github.com/pthm-cable/strider/genome"
	"github.com/pthm-cable/strider/history"
	"github.com/pthm-cable/strider/telemetry"
	"github.com/pthm-cable/strider/trainer"
)

// Options holds run parameters that are not part of the configuration.
type Options struct {
	LogStats  bool
	OutputDir string // empty disables file output

	// ResumePath restores the population from a snapshot file.
	ResumePath string
	// SeedFromPath seeds the initial population from a hall_of_fame.json.
	SeedFromPath string

	// Registerer receives the run's Prometheus metrics; nil disables them.
	Registerer prometheus.Registerer

	// StatsCallback is called after every generation.
	StatsCallback func(telemetry.GenerationStats)
}

// Experiment is one evolution run.
type Experiment struct {
	cfg    *config.Config
	layout genome.Layout
	rng    *rand.Rand
	seed   int64
	pop    *evolve.Population
	runner *trainer.Runner

	output     *telemetry.OutputManager
	metrics    *telemetry.Metrics
	hallOfFame *telemetry.HallOfFame
	bookmarks  *telemetry.BookmarkDetector
	perf       *telemetry.PerfCollector

	stats       []telemetry.GenerationStats
	lastHistory *history.History

	logStats      bool
	statsCallback func(telemetry.GenerationStats)
}

// New validates cfg, builds the initial population and opens the outputs.
func New(cfg *config.Config, opts Options) (*Experiment, error) {
	if err := cfg.Refresh(); err != nil {
		return nil, err
	}
	layout, err := genome.NewLayout(cfg)
	if err != nil {
		return nil, err
	}

	e := &Experiment{
		cfg:           cfg,
		layout:        layout,
		seed:          cfg.Evolution.Seed,
		hallOfFame:    telemetry.NewHallOfFame(cfg.Telemetry.HallOfFameSize),
		bookmarks:     telemetry.NewBookmarkDetector(cfg.Telemetry.BookmarkHistory),
		perf:          telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		logStats:      opts.LogStats,
		statsCallback: opts.StatsCallback,
	}

	if err := e.initPopulation(opts); err != nil {
		return nil, err
	}

	e.runner = trainer.NewRunner(cfg, layout,
		trainer.WithWorkers(cfg.Evolution.Workers),
		trainer.WithHistory(cfg.Telemetry.RecordHistory),
		trainer.WithPerf(e.perf),
	)

	if opts.Registerer != nil {
		if e.metrics, err = telemetry.NewMetrics(opts.Registerer); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}

	if e.output, err = telemetry.NewOutputManager(opts.OutputDir); err != nil {
		return nil, err
	}
	if err := e.output.WriteConfig(cfg); err != nil {
		e.output.Close()
		return nil, err
	}

	slog.Info("experiment ready",
		"policy", layout.PolicyKind(),
		"genome_length", layout.Len(),
		"population", e.pop.Len(),
		"elites", e.pop.EliteCount(),
		"generation", e.pop.Generation(),
		"workers", e.runner.Workers(),
		"seed", e.seed,
	)
	return e, nil
}

// Step evaluates the current generation, records its telemetry and
// breeds the next one.
func (e *Experiment) Step(ctx context.Context) (trainer.Report, error) {
	e.perf.StartGeneration()

	report, err := e.runner.RunGeneration(ctx, e.pop, e.cfg.Terrain)
	if err != nil {
		return trainer.Report{}, err
	}
	if report.History != nil {
		e.lastHistory = report.History
	}

	e.perf.StartPhase(telemetry.PhaseTelemetry)
	bookmarks := e.flushTelemetry(report)

	e.perf.StartPhase(telemetry.PhaseEvolve)
	if err := e.pop.Evolve(); err != nil {
		return report, fmt.Errorf("evolving generation %d: %w", report.Generation, err)
	}
	e.perf.EndGeneration(len(report.Records))
	e.flushPerf(report.Generation)

	e.snapshotIfDue(bookmarks)
	return report, nil
}

// Run steps until the configured number of generations has run or ctx is
// cancelled, then writes the final artifacts.
func (e *Experiment) Run(ctx context.Context) error {
	for e.pop.Generation() < e.cfg.Evolution.Generations {
		if err := ctx.Err(); err != nil {
			e.finish()
			return err
		}
		if _, err := e.Step(ctx); err != nil {
			e.finish()
			return err
		}
	}
	e.finish()
	return nil
}

// Population returns the live population.
func (e *Experiment) Population() *evolve.Population {
	return e.pop
}

// HallOfFame returns the run's best chromosomes.
func (e *Experiment) HallOfFame() *telemetry.HallOfFame {
	return e.hallOfFame
}

// Stats returns every completed generation's stats in order.
func (e *Experiment) Stats() []telemetry.GenerationStats {
	out := make([]telemetry.GenerationStats, len(e.stats))
	copy(out, e.stats)
	return out
}

// LastHistory returns the most recent generation's recording, or nil when
// telemetry.record_history is off.
func (e *Experiment) LastHistory() *history.History {
	return e.lastHistory
}

// Close closes the output files.
func (e *Experiment) Close() error {
	return e.output.Close()
}
