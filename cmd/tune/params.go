package main

import (
	"github.com/pthm-cable/strider/config"
)

// ParamSpec defines a single tunable gain.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64
}

// ParamVector holds the tunable state-machine gains.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the parameter set with defaults taken from base.
func NewParamVector(base config.StateMachineConfig) *ParamVector {
	pv := &ParamVector{
		Specs: []ParamSpec{
			{Name: "hip_kp", Path: "policy.state_machine.hip_kp", Min: 0.1, Max: 4.0},
			{Name: "hip_kd", Path: "policy.state_machine.hip_kd", Min: 0.0, Max: 1.5},
			{Name: "knee_kp", Path: "policy.state_machine.knee_kp", Min: 0.5, Max: 10.0},
			{Name: "knee_kd", Path: "policy.state_machine.knee_kd", Min: 0.0, Max: 1.5},
			{Name: "balance_angle", Path: "policy.state_machine.balance_angle", Min: 0.0, Max: 3.0},
			{Name: "balance_rate", Path: "policy.state_machine.balance_rate", Min: 0.0, Max: 5.0},
			{Name: "vertical_damping", Path: "policy.state_machine.vertical_damping", Min: 0.0, Max: 40.0},
			{Name: "target_speed", Path: "policy.state_machine.target_speed", Min: 0.0, Max: 1.0},
			{Name: "support_knee_angle", Path: "policy.state_machine.support_knee_angle", Min: -0.5, Max: 0.5},
			{Name: "hip_trail_threshold", Path: "policy.state_machine.hip_trail_threshold", Min: -0.5, Max: 0.8},
			{Name: "knee_push_threshold", Path: "policy.state_machine.knee_push_threshold", Min: 0.2, Max: 1.0},
		},
	}
	defaults := pv.Extract(base)
	for i := range pv.Specs {
		pv.Specs[i].Default = defaults[i]
	}
	return pv
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(spec.Max, max(spec.Min, v[i]))
	}
	return clamped
}

// Apply returns the gains with the clamped values written over base.
// Order must match Specs order.
func (pv *ParamVector) Apply(base config.StateMachineConfig, values []float64) config.StateMachineConfig {
	c := pv.Clamp(values)
	out := base
	out.HipKp = c[0]
	out.HipKd = c[1]
	out.KneeKp = c[2]
	out.KneeKd = c[3]
	out.BalanceAngle = c[4]
	out.BalanceRate = c[5]
	out.VerticalDamping = c[6]
	out.TargetSpeed = c[7]
	out.SupportKneeAngle = c[8]
	out.HipTrailThreshold = c[9]
	out.KneePushThreshold = c[10]
	return out
}

// Extract reads the gains in Specs order.
func (pv *ParamVector) Extract(sm config.StateMachineConfig) []float64 {
	return []float64{
		sm.HipKp,
		sm.HipKd,
		sm.KneeKp,
		sm.KneeKd,
		sm.BalanceAngle,
		sm.BalanceRate,
		sm.VerticalDamping,
		sm.TargetSpeed,
		sm.SupportKneeAngle,
		sm.HipTrailThreshold,
		sm.KneePushThreshold,
	}
}
