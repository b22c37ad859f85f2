package body

import (
	"math"

	"github.com/pthm-cable/strider/config"
)

// Morphology is the evolvable leg geometry. Both legs share it.
type Morphology struct {
	ThighLength float64 `json:"thigh_length"`
	ThighWidth  float64 `json:"thigh_width"`
	ShinLength  float64 `json:"shin_length"`
	ShinWidth   float64 `json:"shin_width"`
}

// NominalMorphology returns the configured fixed morphology.
func NominalMorphology(cfg config.BodyConfig) Morphology {
	return Morphology{
		ThighLength: cfg.ThighLength,
		ThighWidth:  cfg.ThighWidth,
		ShinLength:  cfg.ShinLength,
		ShinWidth:   cfg.ShinWidth,
	}
}

// Clamped limits lengths to [MinLength, MaxLength] and widths to
// [MinWidth, MaxWidth]. NaN falls to the minimum. Degenerate genes are
// clamped, never rejected, so the search space stays unconstrained.
func (m Morphology) Clamped(cfg config.BodyConfig) Morphology {
	return Morphology{
		ThighLength: clampExtent(m.ThighLength, cfg.MinLength, cfg.MaxLength),
		ThighWidth:  clampExtent(m.ThighWidth, cfg.MinWidth, cfg.MaxWidth),
		ShinLength:  clampExtent(m.ShinLength, cfg.MinLength, cfg.MaxLength),
		ShinWidth:   clampExtent(m.ShinWidth, cfg.MinWidth, cfg.MaxWidth),
	}
}

func clampExtent(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
