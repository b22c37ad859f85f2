package policy

import (
	"math"

	"github.com/pthm-cable/strider/body"
	"github.com/pthm-cable/strider/config"
)

const oscillatorParams = 9

// OscillatorParams are the decoded gait parameters.
type OscillatorParams struct {
	Frequency     float64 `json:"frequency"`
	HipAmplitude  float64 `json:"hip_amplitude"`
	HipOffset     float64 `json:"hip_offset"`
	KneeAmplitude float64 `json:"knee_amplitude"`
	KneeOffset    float64 `json:"knee_offset"`
	KneePhase     float64 `json:"knee_phase"`
	HipKp         float64 `json:"hip_kp"`
	KneeKp        float64 `json:"knee_kp"`
	Balance       float64 `json:"balance"`
}

func ranges(cfg config.OscillatorConfig) [oscillatorParams]config.Range {
	return [oscillatorParams]config.Range{
		cfg.Frequency, cfg.HipAmplitude, cfg.HipOffset,
		cfg.KneeAmplitude, cfg.KneeOffset, cfg.KneePhase,
		cfg.HipKp, cfg.KneeKp, cfg.Balance,
	}
}

// DecodeOscillator maps genes onto the configured ranges, clamping each.
func DecodeOscillator(cfg config.OscillatorConfig, genes []float64) OscillatorParams {
	rs := ranges(cfg)
	var v [oscillatorParams]float64
	for i, r := range rs {
		g := 1.0
		if i < len(genes) && !math.IsNaN(genes[i]) {
			g = genes[i]
		}
		v[i] = r.Clamp(r.Decode(g))
	}
	return OscillatorParams{
		Frequency: v[0], HipAmplitude: v[1], HipOffset: v[2],
		KneeAmplitude: v[3], KneeOffset: v[4], KneePhase: v[5],
		HipKp: v[6], KneeKp: v[7], Balance: v[8],
	}
}

// EncodeOscillator is the inverse of DecodeOscillator for in-range values.
func EncodeOscillator(cfg config.OscillatorConfig, p OscillatorParams) []float64 {
	rs := ranges(cfg)
	v := []float64{
		p.Frequency, p.HipAmplitude, p.HipOffset,
		p.KneeAmplitude, p.KneeOffset, p.KneePhase,
		p.HipKp, p.KneeKp, p.Balance,
	}
	for i, r := range rs {
		v[i] = r.Encode(v[i])
	}
	return v
}

// Oscillator drives both legs along sinusoidal joint targets in anti-phase
// and tracks them with a PD law.
type Oscillator struct {
	params  OscillatorParams
	damping float64
	dt      float64
	phase   float64
}

// NewOscillator decodes genes into an oscillator advancing dt per Act.
func NewOscillator(cfg config.OscillatorConfig, dt float64, genes []float64) *Oscillator {
	return &Oscillator{
		params:  DecodeOscillator(cfg, genes),
		damping: cfg.Damping,
		dt:      dt,
	}
}

// Params returns the decoded parameters.
func (o *Oscillator) Params() OscillatorParams {
	return o.params
}

// Phase returns the current phase in radians.
func (o *Oscillator) Phase() float64 {
	return o.phase
}

// Reset rewinds the phase.
func (o *Oscillator) Reset() {
	o.phase = 0
}

// Targets returns hip and knee joint angle targets for a leg at the
// current phase.
func (o *Oscillator) Targets(leg int) (hip, knee float64) {
	p := o.params
	phi := o.phase + float64(leg)*math.Pi
	hip = p.HipOffset + p.HipAmplitude*math.Sin(phi)
	knee = p.KneeOffset + p.KneeAmplitude*math.Sin(phi-p.KneePhase)
	return hip, knee
}

// Act returns commands for the current phase and advances it.
func (o *Oscillator) Act(obs []float64) []float64 {
	p := o.params
	balance := p.Balance * (at(obs, obsHullAngle) + at(obs, obsHullRate))

	out := make([]float64, body.NumJoints)
	for leg := range 2 {
		hipT, kneeT := o.Targets(leg)
		hipAngle := at(obs, legIndex(leg, offHip))
		kneeAngle := at(obs, legIndex(leg, offKnee)) - 1

		out[2*leg] = unit(p.HipKp*(hipT-hipAngle) - o.damping*at(obs, legIndex(leg, offHipSpeed)) + balance)
		out[2*leg+1] = unit(p.KneeKp*(kneeT-kneeAngle) - o.damping*at(obs, legIndex(leg, offKneeSpeed)))
	}

	o.phase = math.Mod(o.phase+2*math.Pi*p.Frequency*o.dt, 2*math.Pi)
	return out
}
