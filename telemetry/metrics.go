package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pthm-cable/strider/fitness"
)

// Metrics exports run progress to Prometheus.
type Metrics struct {
	generation   prometheus.Gauge
	bestFitness  prometheus.Gauge
	meanFitness  prometheus.Gauge
	bestDistance prometheus.Gauge
	hallTop      prometheus.Gauge
	episodes     *prometheus.CounterVec
	steps        prometheus.Counter
	bookmarks    *prometheus.CounterVec
	duration     prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "strider_generation",
			Help: "Last completed generation.",
		}),
		bestFitness: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "strider_best_fitness",
			Help: "Best fitness of the last generation.",
		}),
		meanFitness: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "strider_mean_fitness",
			Help: "Mean fitness of the last generation.",
		}),
		bestDistance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "strider_best_distance",
			Help: "Furthest hull travel of the last generation.",
		}),
		hallTop: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "strider_hall_of_fame_top_fitness",
			Help: "Best fitness seen during the run.",
		}),
		episodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strider_episodes_total",
			Help: "Episodes run, by termination reason.",
		}, []string{"reason"}),
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strider_physics_steps_total",
			Help: "Physics steps simulated.",
		}),
		bookmarks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strider_bookmarks_total",
			Help: "Bookmarks triggered, by type.",
		}, []string{"type"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "strider_generation_seconds",
			Help:    "Wall time per generation.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}

	for _, c := range []prometheus.Collector{
		m.generation, m.bestFitness, m.meanFitness, m.bestDistance, m.hallTop,
		m.episodes, m.steps, m.bookmarks, m.duration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	// Expose every reason at zero from the start.
	for _, r := range fitness.Reasons {
		m.episodes.WithLabelValues(r.String())
	}
	return m, nil
}

// ObserveGeneration records one generation's stats.
func (m *Metrics) ObserveGeneration(s GenerationStats) {
	if m == nil {
		return
	}
	m.generation.Set(float64(s.Generation))
	m.bestFitness.Set(s.BestFitness)
	m.meanFitness.Set(s.MeanFitness)
	m.bestDistance.Set(s.BestDistance)
	m.steps.Add(float64(s.TotalSteps))
	m.duration.Observe(float64(s.ElapsedMillis) / 1000)

	counts := map[fitness.Reason]int{
		fitness.Fall:         s.Falls,
		fitness.FellOffStart: s.FellOffStart,
		fitness.Success:      s.Successes,
		fitness.Timeout:      s.Timeouts,
		fitness.Stuck:        s.Stuck,
		fitness.Diverged:     s.Diverged,
	}
	for r, n := range counts {
		m.episodes.WithLabelValues(r.String()).Add(float64(n))
	}
}

// ObserveBookmark counts a triggered bookmark.
func (m *Metrics) ObserveBookmark(b Bookmark) {
	if m == nil {
		return
	}
	m.bookmarks.WithLabelValues(string(b.Type)).Inc()
}

// SetHallOfFameTop records the hall of fame's best fitness.
func (m *Metrics) SetHallOfFameTop(f float64) {
	if m == nil {
		return
	}
	m.hallTop.Set(f)
}
