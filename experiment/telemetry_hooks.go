package experiment

import (
	"log/slog"

	"github.com/pthm-cable/strider/telemetry"
	"github.com/pthm-cable/strider/trainer"
)

// flushTelemetry records one evaluated generation and returns the
// bookmarks it triggered.
func (e *Experiment) flushTelemetry(report trainer.Report) []telemetry.Bookmark {
	stats := report.Stats
	e.stats = append(e.stats, stats)

	if e.statsCallback != nil {
		e.statsCallback(stats)
	}
	if e.logStats {
		stats.LogStats()
	}

	if err := e.output.WriteGeneration(stats); err != nil {
		slog.Error("failed to write generation", "error", err)
	}
	if err := e.output.WriteEpisodes(report.Records); err != nil {
		slog.Error("failed to write episodes", "error", err)
	}
	e.metrics.ObserveGeneration(stats)

	if added := e.hallOfFame.ConsiderReport(report.Generation, e.pop.Chromosomes(), report.Records); added > 0 {
		e.metrics.SetHallOfFameTop(e.hallOfFame.TopFitness())
	}

	bookmarks := e.bookmarks.Check(stats)
	for _, bm := range bookmarks {
		if e.logStats {
			bm.LogBookmark()
		}
		if err := e.output.WriteBookmark(bm); err != nil {
			slog.Error("failed to write bookmark", "error", err)
		}
		e.metrics.ObserveBookmark(bm)
	}
	return bookmarks
}

// flushPerf logs and writes the rolling performance window.
func (e *Experiment) flushPerf(generation int) {
	perfStats := e.perf.Stats()
	if e.logStats {
		perfStats.LogStats()
	}
	if err := e.output.WritePerf(perfStats, generation); err != nil {
		slog.Error("failed to write perf", "error", err)
	}
}

// snapshotIfDue saves the freshly bred population on bookmarks and every
// telemetry.snapshot_every generations.
func (e *Experiment) snapshotIfDue(bookmarks []telemetry.Bookmark) {
	if e.output == nil {
		return
	}
	every := e.cfg.Telemetry.SnapshotEvery
	if len(bookmarks) > 0 {
		e.saveSnapshot(&bookmarks[0])
		return
	}
	if every > 0 && e.pop.Generation()%every == 0 {
		e.saveSnapshot(nil)
	}
}

// saveSnapshot creates and saves a snapshot to disk.
func (e *Experiment) saveSnapshot(bookmark *telemetry.Bookmark) {
	path, err := e.output.WriteSnapshot(e.createSnapshot(bookmark))
	if err != nil {
		slog.Error("failed to save snapshot", "error", err)
		return
	}
	slog.Info("snapshot saved", "path", path, "generation", e.pop.Generation())
}

// createSnapshot builds a snapshot from the current population.
func (e *Experiment) createSnapshot(bookmark *telemetry.Bookmark) *telemetry.Snapshot {
	return &telemetry.Snapshot{
		Version:      telemetry.SnapshotVersion,
		RNGSeed:      e.seed,
		PolicyKind:   e.layout.PolicyKind(),
		GenomeLength: e.layout.Len(),
		Generation:   e.pop.Generation(),
		Chromosomes:  e.pop.Chromosomes(),
		Bookmark:     bookmark,
	}
}

// finish writes the end-of-run artifacts.
func (e *Experiment) finish() {
	if err := e.output.WriteHallOfFame(e.hallOfFame); err != nil {
		slog.Error("failed to write hall of fame", "error", err)
	}
	if e.cfg.Telemetry.Plot {
		if err := e.output.WriteFitnessPlot(e.stats); err != nil {
			slog.Error("failed to write fitness plot", "error", err)
		}
	}

	gens, episodes, steps := e.runner.Collector().Totals()
	attrs := []any{
		"generations", gens,
		"episodes", episodes,
		"physics_steps", steps,
		"hall_of_fame_top", e.hallOfFame.TopFitness(),
	}
	if g, ok := e.runner.Collector().FirstSuccess(); ok {
		attrs = append(attrs, "first_success_generation", g)
	}
	slog.Info("experiment finished", attrs...)
}
