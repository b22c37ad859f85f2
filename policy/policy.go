// Package policy maps walker observations to joint motor commands.
package policy

import (
	"fmt"
	"math"

	"github.com/pthm-cable/strider/body"
	"github.com/pthm-cable/strider/config"
)

// Policy converts one observation into NumJoints commands in [-1, 1].
// Implementations keep only their own internal state between calls.
type Policy interface {
	Act(obs []float64) []float64
	Reset()
}

// Observation indices.
const (
	obsHullAngle = 0
	obsHullRate  = 1
	obsVelX      = 2
	obsVelY      = 3
	legStride    = 5 // per-leg block: hip angle, hip speed, knee, knee speed, contact
	legBase      = 4
	offHip       = 0
	offHipSpeed  = 1
	offKnee      = 2
	offKneeSpeed = 3
	offContact   = 4
)

func legIndex(leg, offset int) int {
	return legBase + legStride*leg + offset
}

// ParamCount returns the number of genes the policy kind consumes.
func ParamCount(kind string) (int, error) {
	switch kind {
	case config.PolicyStateMachine:
		return 0, nil
	case config.PolicyOscillator:
		return oscillatorParams, nil
	case config.PolicyLinear:
		return body.NumJoints*body.ObservationSize + body.NumJoints, nil
	}
	return 0, fmt.Errorf("%w: unknown policy kind %q", config.ErrInvalidConfiguration, kind)
}

// New builds the configured policy from its controller genes.
func New(cfg config.PolicyConfig, dt float64, params []float64) (Policy, error) {
	n, err := ParamCount(cfg.Kind)
	if err != nil {
		return nil, err
	}
	if len(params) != n {
		return nil, fmt.Errorf("%s policy needs %d params, got %d", cfg.Kind, n, len(params))
	}
	switch cfg.Kind {
	case config.PolicyStateMachine:
		return NewStateMachine(cfg.StateMachine), nil
	case config.PolicyOscillator:
		return NewOscillator(cfg.Oscillator, dt, params), nil
	default:
		return NewLinear(cfg.Linear, params), nil
	}
}

// unit clamps v to [-1, 1]; NaN becomes 0.
func unit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}

// at reads obs[i], treating a short observation as zeros.
func at(obs []float64, i int) float64 {
	if i < len(obs) {
		return obs[i]
	}
	return 0
}
