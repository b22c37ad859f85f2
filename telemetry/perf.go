package telemetry

import (
	"log/slog"
	"time"
)

// Phase names for one generation.
const (
	PhaseTerrain   = "terrain"
	PhaseEpisodes  = "episodes"
	PhaseEvolve    = "evolve"
	PhaseTelemetry = "telemetry"
)

// Phases lists the generation phases in execution order.
var Phases = []string{PhaseTerrain, PhaseEpisodes, PhaseEvolve, PhaseTelemetry}

// PerfSample holds timing data for a single generation.
type PerfSample struct {
	Duration time.Duration
	Episodes int
	Phases   map[string]time.Duration
}

// PerfCollector tracks performance metrics over a rolling window of
// generations.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentPhases map[string]time.Duration
	start         time.Time
	phaseStart    time.Time
	lastPhase     string
}

// NewPerfCollector creates a new performance collector averaging over
// windowSize generations.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 10
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartGeneration begins timing a new generation.
func (p *PerfCollector) StartGeneration() {
	p.start = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.lastPhase = ""
}

// StartPhase begins timing a specific phase, ending the previous one.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndGeneration finishes timing the generation and records the sample.
// episodes is how many episodes the generation ran.
func (p *PerfCollector) EndGeneration(episodes int) {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	p.samples[p.writeIndex] = PerfSample{
		Duration: now.Sub(p.start),
		Episodes: episodes,
		Phases:   p.currentPhases,
	}
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	AvgDuration time.Duration
	MinDuration time.Duration
	MaxDuration time.Duration

	// Phase breakdown (average durations)
	PhaseAvg map[string]time.Duration

	// Phase percentages of total generation time
	PhasePct map[string]float64

	// Throughput
	EpisodesPerSecond float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p.sampleCount == 0 {
		return PerfStats{
			PhaseAvg: make(map[string]time.Duration),
			PhasePct: make(map[string]float64),
		}
	}

	var total time.Duration
	var minDur, maxDur time.Duration
	var episodes int
	phaseSum := make(map[string]time.Duration)

	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		total += s.Duration
		episodes += s.Episodes

		if i == 0 || s.Duration < minDur {
			minDur = s.Duration
		}
		if s.Duration > maxDur {
			maxDur = s.Duration
		}
		for phase, dur := range s.Phases {
			phaseSum[phase] += dur
		}
	}

	avg := total / time.Duration(p.sampleCount)

	phaseAvg := make(map[string]time.Duration)
	phasePct := make(map[string]float64)
	for phase, sum := range phaseSum {
		phaseAvg[phase] = sum / time.Duration(p.sampleCount)
		if avg > 0 {
			phasePct[phase] = float64(phaseAvg[phase]) / float64(avg) * 100
		}
	}

	var perSec float64
	if total > 0 {
		perSec = float64(episodes) / total.Seconds()
	}

	return PerfStats{
		AvgDuration:       avg,
		MinDuration:       minDur,
		MaxDuration:       maxDur,
		PhaseAvg:          phaseAvg,
		PhasePct:          phasePct,
		EpisodesPerSecond: perSec,
	}
}

// LogStats logs performance statistics.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_generation_ms", s.AvgDuration.Milliseconds(),
		"min_generation_ms", s.MinDuration.Milliseconds(),
		"max_generation_ms", s.MaxDuration.Milliseconds(),
		"episodes_per_sec", int(s.EpisodesPerSecond),
	}
	for _, phase := range Phases {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, phase+"_pct", int(pct*10)/10.0)
		}
	}
	slog.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_generation_ms", s.AvgDuration.Milliseconds()),
		slog.Int64("min_generation_ms", s.MinDuration.Milliseconds()),
		slog.Int64("max_generation_ms", s.MaxDuration.Milliseconds()),
		slog.Float64("episodes_per_sec", s.EpisodesPerSecond),
	}
	for phase, pct := range s.PhasePct {
		attrs = append(attrs, slog.Float64(phase+"_pct", pct))
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	Generation      int     `csv:"generation"`
	AvgGenerationMS int64   `csv:"avg_generation_ms"`
	MinGenerationMS int64   `csv:"min_generation_ms"`
	MaxGenerationMS int64   `csv:"max_generation_ms"`
	EpisodesPerSec  float64 `csv:"episodes_per_sec"`
	TerrainPct      float64 `csv:"terrain_pct"`
	EpisodesPct     float64 `csv:"episodes_pct"`
	EvolvePct       float64 `csv:"evolve_pct"`
	TelemetryPct    float64 `csv:"telemetry_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(generation int) PerfStatsCSV {
	return PerfStatsCSV{
		Generation:      generation,
		AvgGenerationMS: s.AvgDuration.Milliseconds(),
		MinGenerationMS: s.MinDuration.Milliseconds(),
		MaxGenerationMS: s.MaxDuration.Milliseconds(),
		EpisodesPerSec:  s.EpisodesPerSecond,
		TerrainPct:      s.PhasePct[PhaseTerrain],
		EpisodesPct:     s.PhasePct[PhaseEpisodes],
		EvolvePct:       s.PhasePct[PhaseEvolve],
		TelemetryPct:    s.PhasePct[PhaseTelemetry],
	}
}
