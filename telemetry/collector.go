package telemetry

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/pthm-cable/strider/fitness"
)

// Collector accumulates episode records for the current generation and
// produces GenerationStats. It also keeps running totals for the run.
type Collector struct {
	records []EpisodeRecord

	// Run totals
	generations   int
	totalEpisodes int
	totalSteps    int
	firstSuccess  int // generation of the first success, -1 until then
}

// NewCollector creates a new stats collector.
func NewCollector(populationSize int) *Collector {
	return &Collector{
		records:      make([]EpisodeRecord, 0, populationSize),
		firstSuccess: -1,
	}
}

// Record adds one episode to the current generation.
func (c *Collector) Record(r EpisodeRecord) {
	c.records = append(c.records, r)
}

// Pending returns how many episodes are waiting for Flush.
func (c *Collector) Pending() int {
	return len(c.records)
}

// Flush produces the generation's stats and its records ordered best
// first (ties by ID), and resets for the next generation.
func (c *Collector) Flush(generation int, elapsed time.Duration) (GenerationStats, []EpisodeRecord) {
	records := c.records
	c.records = make([]EpisodeRecord, 0, cap(records))

	slices.SortStableFunc(records, func(a, b EpisodeRecord) int {
		fa, fb := rankFitness(a.Fitness), rankFitness(b.Fitness)
		switch {
		case fa > fb:
			return -1
		case fa < fb:
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})

	stats := ComputeStats(generation, records)
	stats.ElapsedMillis = elapsed.Milliseconds()

	c.generations++
	c.totalEpisodes += len(records)
	c.totalSteps += stats.TotalSteps
	if c.firstSuccess < 0 && stats.Successes > 0 {
		c.firstSuccess = generation
	}
	return stats, records
}

func rankFitness(f float64) float64 {
	if math.IsNaN(f) {
		return math.Inf(-1)
	}
	return f
}

// Totals returns the run's generation, episode and step counts.
func (c *Collector) Totals() (generations, episodes, steps int) {
	return c.generations, c.totalEpisodes, c.totalSteps
}

// FirstSuccess returns the first generation with a successful episode.
func (c *Collector) FirstSuccess() (generation int, ok bool) {
	return c.firstSuccess, c.firstSuccess >= 0
}

// NewEpisodeRecord builds a record from an episode outcome.
func NewEpisodeRecord(generation int, id string, fit, reward, distance, effort float64, steps int, reason fitness.Reason) EpisodeRecord {
	return EpisodeRecord{
		Generation: generation,
		ID:         id,
		Fitness:    fit,
		Reward:     reward,
		Distance:   distance,
		Effort:     effort,
		Steps:      steps,
		Reason:     reason.String(),
	}
}
