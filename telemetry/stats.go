// Package telemetry aggregates per-generation statistics and writes the
// run's CSV, JSON and PNG outputs and Prometheus metrics.
package telemetry

import (
	"log/slog"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/strider/fitness"
)

// EpisodeRecord is one individual's evaluation, one row of episodes.csv.
type EpisodeRecord struct {
	Generation int     `csv:"generation" json:"generation"`
	ID         string  `csv:"id" json:"id"`
	Fitness    float64 `csv:"fitness" json:"fitness"`
	Reward     float64 `csv:"reward" json:"reward"`
	Distance   float64 `csv:"distance" json:"distance"`
	Effort     float64 `csv:"effort" json:"effort"`
	Steps      int     `csv:"steps" json:"steps"`
	Reason     string  `csv:"reason" json:"reason"`
}

// GenerationStats summarizes one generation, one row of generations.csv.
type GenerationStats struct {
	Generation  int `csv:"generation"`
	Individuals int `csv:"individuals"`

	// Fitness distribution
	BestFitness   float64 `csv:"best_fitness"`
	MeanFitness   float64 `csv:"mean_fitness"`
	StdFitness    float64 `csv:"std_fitness"`
	WorstFitness  float64 `csv:"worst_fitness"`
	FitnessP10    float64 `csv:"fitness_p10"`
	FitnessP50    float64 `csv:"fitness_p50"`
	FitnessP90    float64 `csv:"fitness_p90"`
	BestDistance  float64 `csv:"best_distance"`
	MeanDistance  float64 `csv:"mean_distance"`
	MeanSteps     float64 `csv:"mean_steps"`
	TotalSteps    int     `csv:"total_steps"`
	BestID        string  `csv:"best_id"`
	ElapsedMillis int64   `csv:"elapsed_ms"`

	// Termination reasons
	Falls        int `csv:"falls"`
	FellOffStart int `csv:"fell_off_start"`
	Successes    int `csv:"successes"`
	Timeouts     int `csv:"timeouts"`
	Stuck        int `csv:"stuck"`
	Diverged     int `csv:"diverged"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeFitnessStats returns mean, population standard deviation and
// the 10/50/90 percentiles.
func ComputeFitnessStats(values []float64) (mean, std, p10, p50, p90 float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0, 0
	}
	mean, std = stat.PopMeanStdDev(values, nil)

	sorted := slices.Clone(values)
	slices.Sort(sorted)
	p10 = Percentile(sorted, 0.10)
	p50 = Percentile(sorted, 0.50)
	p90 = Percentile(sorted, 0.90)
	return mean, std, p10, p50, p90
}

// ComputeStats aggregates one generation's episode records.
func ComputeStats(generation int, records []EpisodeRecord) GenerationStats {
	s := GenerationStats{Generation: generation, Individuals: len(records)}
	if len(records) == 0 {
		return s
	}

	fitness := make([]float64, len(records))
	distance := make([]float64, len(records))
	steps := make([]float64, len(records))
	for i, r := range records {
		fitness[i] = r.Fitness
		distance[i] = r.Distance
		steps[i] = float64(r.Steps)
		s.TotalSteps += r.Steps
		s.countReason(r.Reason)
	}

	s.MeanFitness, s.StdFitness, s.FitnessP10, s.FitnessP50, s.FitnessP90 = ComputeFitnessStats(fitness)
	best := floats.MaxIdx(fitness)
	s.BestFitness = fitness[best]
	s.BestID = records[best].ID
	s.WorstFitness = floats.Min(fitness)
	s.BestDistance = floats.Max(distance)
	s.MeanDistance = stat.Mean(distance, nil)
	s.MeanSteps = stat.Mean(steps, nil)
	return s
}

func (s *GenerationStats) countReason(reason string) {
	switch reason {
	case fitness.Fall.String():
		s.Falls++
	case fitness.FellOffStart.String():
		s.FellOffStart++
	case fitness.Success.String():
		s.Successes++
	case fitness.Timeout.String():
		s.Timeouts++
	case fitness.Stuck.String():
		s.Stuck++
	case fitness.Diverged.String():
		s.Diverged++
	}
}

// FallRate returns the share of episodes ending in a fall of any kind.
func (s GenerationStats) FallRate() float64 {
	if s.Individuals == 0 {
		return 0
	}
	return float64(s.Falls+s.FellOffStart) / float64(s.Individuals)
}

// LogValue implements slog.LogValuer for structured logging.
func (s GenerationStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("generation", s.Generation),
		slog.Int("individuals", s.Individuals),
		slog.Float64("best_fitness", s.BestFitness),
		slog.Float64("mean_fitness", s.MeanFitness),
		slog.Float64("std_fitness", s.StdFitness),
		slog.Float64("worst_fitness", s.WorstFitness),
		slog.Float64("fitness_p50", s.FitnessP50),
		slog.Float64("best_distance", s.BestDistance),
		slog.Float64("mean_distance", s.MeanDistance),
		slog.Float64("mean_steps", s.MeanSteps),
		slog.String("best_id", s.BestID),
		slog.Int("falls", s.Falls),
		slog.Int("fell_off_start", s.FellOffStart),
		slog.Int("successes", s.Successes),
		slog.Int("timeouts", s.Timeouts),
		slog.Int("stuck", s.Stuck),
		slog.Int("diverged", s.Diverged),
	)
}

// LogStats logs the generation stats using slog.
func (s GenerationStats) LogStats() {
	slog.Info("generation",
		"generation", s.Generation,
		"best_fitness", s.BestFitness,
		"mean_fitness", s.MeanFitness,
		"std_fitness", s.StdFitness,
		"best_distance", s.BestDistance,
		"mean_steps", s.MeanSteps,
		"falls", s.Falls,
		"successes", s.Successes,
		"timeouts", s.Timeouts,
		"stuck", s.Stuck,
		"elapsed_ms", s.ElapsedMillis,
	)
}
