package policy

import (
	"github.com/pthm-cable/strider/body"
	"github.com/pthm-cable/strider/config"
)

// State is a phase of the alternating-leg gait.
type State uint8

const (
	StayOnOneLeg State = iota
	PutOtherDown
	PushOff
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StayOnOneLeg:
		return "stay_on_one_leg"
	case PutOtherDown:
		return "put_other_down"
	case PushOff:
		return "push_off"
	}
	return "unknown"
}

// Joint targets used by the gait phases. Knee targets are in observation
// units (knee angle + 1).
const (
	swingHip    = 1.1
	swingKnee   = -0.6
	placeHip    = 0.1
	pushKnee    = 1.0
	kneeRecover = 0.03
)

// gaitMemory is the state carried between steps besides the phase.
type gaitMemory struct {
	moving      int // leg in the air or being placed
	supportKnee float64
}

func (m gaitMemory) supporting() int {
	return 1 - m.moving
}

// targets holds per-leg hip and knee goals. Unset goals produce no PD term.
type targets struct {
	hip, knee       [2]float64
	hipSet, kneeSet [2]bool
}

func (t *targets) setHip(leg int, v float64) {
	t.hip[leg], t.hipSet[leg] = v, true
}

func (t *targets) setKnee(leg int, v float64) {
	t.knee[leg], t.kneeSet[leg] = v, true
}

// transition describes one phase: its pure target function, its exit
// condition, the memory update on exit and the phase that follows.
type transition struct {
	targets func(cfg config.StateMachineConfig, mem gaitMemory, obs []float64, t *targets) gaitMemory
	exit    func(cfg config.StateMachineConfig, mem gaitMemory, obs []float64) bool
	onExit  func(cfg config.StateMachineConfig, mem gaitMemory, obs []float64) gaitMemory
	next    State
}

var gaitTable = map[State]transition{
	StayOnOneLeg: {
		targets: func(cfg config.StateMachineConfig, mem gaitMemory, obs []float64, t *targets) gaitMemory {
			t.setHip(mem.moving, swingHip)
			t.setKnee(mem.moving, swingKnee)
			mem.supportKnee += kneeRecover
			if at(obs, obsVelX) > cfg.TargetSpeed {
				mem.supportKnee += kneeRecover
			}
			mem.supportKnee = min(mem.supportKnee, cfg.SupportKneeAngle)
			t.setKnee(mem.supporting(), mem.supportKnee)
			return mem
		},
		exit: func(cfg config.StateMachineConfig, mem gaitMemory, obs []float64) bool {
			// supporting leg trails behind
			return at(obs, legIndex(mem.supporting(), offHip)) < cfg.HipTrailThreshold
		},
		onExit: keepMemory,
		next:   PutOtherDown,
	},
	PutOtherDown: {
		targets: func(cfg config.StateMachineConfig, mem gaitMemory, obs []float64, t *targets) gaitMemory {
			t.setHip(mem.moving, placeHip)
			t.setKnee(mem.moving, cfg.SupportKneeAngle)
			t.setKnee(mem.supporting(), mem.supportKnee)
			return mem
		},
		exit: func(cfg config.StateMachineConfig, mem gaitMemory, obs []float64) bool {
			return at(obs, legIndex(mem.moving, offContact)) > 0
		},
		onExit: func(cfg config.StateMachineConfig, mem gaitMemory, obs []float64) gaitMemory {
			mem.supportKnee = min(at(obs, legIndex(mem.moving, offKnee)), cfg.SupportKneeAngle)
			return mem
		},
		next: PushOff,
	},
	PushOff: {
		targets: func(cfg config.StateMachineConfig, mem gaitMemory, obs []float64, t *targets) gaitMemory {
			t.setKnee(mem.moving, mem.supportKnee)
			t.setKnee(mem.supporting(), pushKnee)
			return mem
		},
		exit: func(cfg config.StateMachineConfig, mem gaitMemory, obs []float64) bool {
			return at(obs, legIndex(mem.supporting(), offKnee)) > cfg.KneePushThreshold ||
				at(obs, obsVelX) > 1.2*cfg.TargetSpeed
		},
		onExit: func(cfg config.StateMachineConfig, mem gaitMemory, obs []float64) gaitMemory {
			mem.moving = 1 - mem.moving
			return mem
		},
		next: StayOnOneLeg,
	},
}

func keepMemory(_ config.StateMachineConfig, mem gaitMemory, _ []float64) gaitMemory {
	return mem
}

// StateMachine is the fixed hand-written gait. It is not parameterized by
// genes; only morphology evolves under it.
type StateMachine struct {
	cfg   config.StateMachineConfig
	state State
	mem   gaitMemory
}

// NewStateMachine returns a gait starting on leg 1 with leg 0 swinging.
func NewStateMachine(cfg config.StateMachineConfig) *StateMachine {
	m := &StateMachine{cfg: cfg}
	m.Reset()
	return m
}

// Reset returns to the initial phase.
func (m *StateMachine) Reset() {
	m.state = StayOnOneLeg
	m.mem = gaitMemory{moving: 0, supportKnee: m.cfg.SupportKneeAngle}
}

// State returns the current phase.
func (m *StateMachine) State() State {
	return m.state
}

// MovingLeg returns the leg currently swinging.
func (m *StateMachine) MovingLeg() int {
	return m.mem.moving
}

// Act advances the phase machine and returns motor commands. Phases are
// evaluated in order within one call, so a phase that exits hands over to
// the next in the same step until the cycle wraps.
func (m *StateMachine) Act(obs []float64) []float64 {
	var t targets
	for {
		tr := gaitTable[m.state]
		m.mem = tr.targets(m.cfg, m.mem, obs, &t)
		if !tr.exit(m.cfg, m.mem, obs) {
			break
		}
		m.mem = tr.onExit(m.cfg, m.mem, obs)
		m.state = tr.next
		if tr.next == StayOnOneLeg {
			break
		}
	}
	return m.commands(t, obs)
}

// commands applies the PD law with hull balance on the hips and vertical
// damping on the knees.
func (m *StateMachine) commands(t targets, obs []float64) []float64 {
	cfg := m.cfg
	balance := cfg.BalanceAngle*at(obs, obsHullAngle) + cfg.BalanceRate*at(obs, obsHullRate)
	damping := cfg.VerticalDamping * at(obs, obsVelY)

	out := make([]float64, body.NumJoints)
	for leg := range 2 {
		hip, knee := 0.0, 0.0
		if t.hipSet[leg] {
			hip = cfg.HipKp*(t.hip[leg]-at(obs, legIndex(leg, offHip))) - cfg.HipKd*at(obs, legIndex(leg, offHipSpeed))
		}
		if t.kneeSet[leg] {
			knee = cfg.KneeKp*(t.knee[leg]-at(obs, legIndex(leg, offKnee))) - cfg.KneeKd*at(obs, legIndex(leg, offKneeSpeed))
		}
		out[2*leg] = 0.5 * unit(hip+balance)
		out[2*leg+1] = 0.5 * unit(knee-damping)
	}
	return out
}
