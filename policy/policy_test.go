package policy

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pthm-cable/strider/body"
	"github.com/pthm-cable/strider/config"
)

func TestParamCount(t *testing.T) {
	tests := []struct {
		kind    string
		want    int
		wantErr bool
	}{
		{config.PolicyStateMachine, 0, false},
		{config.PolicyOscillator, 9, false},
		{config.PolicyLinear, 60, false},
		{"neat", 0, true},
	}
	for _, tt := range tests {
		got, err := ParamCount(tt.kind)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParamCount(%q) error = %v", tt.kind, err)
		}
		if got != tt.want {
			t.Errorf("ParamCount(%q) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestNewChecksParamLength(t *testing.T) {
	cfg := config.Default().Policy
	cfg.Kind = config.PolicyOscillator
	if _, err := New(cfg, 0.02, make([]float64, 3)); err == nil {
		t.Error("expected error for wrong gene count")
	}
	p, err := New(cfg, 0.02, make([]float64, 9))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*Oscillator); !ok {
		t.Errorf("New returned %T", p)
	}
}

func TestCommandsInRange(t *testing.T) {
	cfg := config.Default().Policy
	rng := rand.New(rand.NewSource(7))
	genes := func(n int) []float64 {
		g := make([]float64, n)
		for i := range g {
			g[i] = rng.Float64()*4 - 1 // includes out-of-range genes
		}
		return g
	}
	policies := map[string]Policy{
		"state machine": NewStateMachine(cfg.StateMachine),
		"oscillator":    NewOscillator(cfg.Oscillator, 0.02, genes(9)),
		"linear":        NewLinear(cfg.Linear, genes(60)),
	}

	for name, p := range policies {
		t.Run(name, func(t *testing.T) {
			for step := 0; step < 200; step++ {
				obs := make([]float64, body.ObservationSize)
				for i := range obs {
					obs[i] = rng.NormFloat64() * 3
				}
				if step == 50 {
					obs[3] = math.NaN()
				}
				out := p.Act(obs)
				if len(out) != body.NumJoints {
					t.Fatalf("Act returned %d values", len(out))
				}
				for i, v := range out {
					if math.IsNaN(v) || v < -1 || v > 1 {
						t.Fatalf("step %d: command %d = %v", step, i, v)
					}
				}
			}
		})
	}
}

func TestStateMachineTransitions(t *testing.T) {
	m := NewStateMachine(config.Default().Policy.StateMachine)
	if m.State() != StayOnOneLeg || m.MovingLeg() != 0 {
		t.Fatalf("initial state %v moving %d", m.State(), m.MovingLeg())
	}

	// supporting hip (leg 1) trails behind
	obs := make([]float64, body.ObservationSize)
	m.Act(obs)
	if m.State() != PutOtherDown {
		t.Fatalf("state = %v, want put_other_down", m.State())
	}

	// moving foot touches down; push-off follows in the same step
	obs[legIndex(0, offContact)] = 1
	obs[legIndex(0, offKnee)] = 0.4
	m.Act(obs)
	if m.State() != PushOff {
		t.Fatalf("state = %v, want push_off", m.State())
	}

	// supporting knee extends past the threshold: legs swap
	obs[legIndex(1, offKnee)] = 0.9
	m.Act(obs)
	if m.State() != StayOnOneLeg || m.MovingLeg() != 1 {
		t.Fatalf("state = %v moving %d, want stay_on_one_leg moving 1", m.State(), m.MovingLeg())
	}

	m.Reset()
	if m.State() != StayOnOneLeg || m.MovingLeg() != 0 {
		t.Errorf("Reset left state %v moving %d", m.State(), m.MovingLeg())
	}
}

func TestStateMachineSpeedPushOff(t *testing.T) {
	cfg := config.Default().Policy.StateMachine
	m := NewStateMachine(cfg)
	obs := make([]float64, body.ObservationSize)
	m.Act(obs)
	obs[legIndex(0, offContact)] = 1
	obs[obsVelX] = 1.3 * cfg.TargetSpeed
	m.Act(obs)
	// fast forward velocity ends push-off immediately
	if m.State() != StayOnOneLeg || m.MovingLeg() != 1 {
		t.Errorf("state = %v moving %d", m.State(), m.MovingLeg())
	}
}

func TestStateMachineCommandLaw(t *testing.T) {
	cfg := config.Default().Policy.StateMachine
	m := NewStateMachine(cfg)
	obs := make([]float64, body.ObservationSize)
	obs[obsHullAngle] = 0.1
	obs[legIndex(0, offHip)] = 0.9
	obs[legIndex(1, offHip)] = 0.5 // supporting leg ahead, no transition
	obs[legIndex(1, offKnee)] = 0.05

	got := m.Act(obs)
	if m.State() != StayOnOneLeg {
		t.Fatalf("unexpected transition to %v", m.State())
	}
	balance := cfg.BalanceAngle * 0.1
	want := []float64{
		0.5 * (cfg.HipKp*(1.1-0.9) + balance),              // swing hip plus balance
		0.5 * -1,                                           // swing knee saturates
		0.5 * balance,                                      // supporting hip has no target, balance only
		0.5 * (cfg.KneeKp * (cfg.SupportKneeAngle - 0.05)), // supporting knee holds support angle
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("command %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestOscillatorDecode(t *testing.T) {
	cfg := config.Default().Policy.Oscillator
	p := OscillatorParams{
		Frequency: 1.2, HipAmplitude: 0.4, HipOffset: 0.1,
		KneeAmplitude: 0.3, KneeOffset: -0.7, KneePhase: 1,
		HipKp: 2, KneeKp: 3, Balance: 0.5,
	}
	got := DecodeOscillator(cfg, EncodeOscillator(cfg, p))
	if math.Abs(got.Frequency-p.Frequency) > 1e-9 || math.Abs(got.KneeOffset-p.KneeOffset) > 1e-9 ||
		math.Abs(got.Balance-p.Balance) > 1e-9 {
		t.Errorf("round trip = %+v, want %+v", got, p)
	}

	clamped := DecodeOscillator(cfg, []float64{10, -10, 1, 1, 1, 1, 1, 1, 1})
	if clamped.Frequency != cfg.Frequency[1] || clamped.HipAmplitude != cfg.HipAmplitude[0] {
		t.Errorf("out-of-range genes not clamped: %+v", clamped)
	}
}

func TestOscillatorPhase(t *testing.T) {
	cfg := config.Default().Policy.Oscillator
	p := OscillatorParams{
		Frequency: 1, HipAmplitude: 0.5, HipOffset: 0.1,
		KneeAmplitude: 0.3, KneeOffset: -0.7, KneePhase: 0.5,
		HipKp: 2, KneeKp: 3,
	}
	o := NewOscillator(cfg, 0.02, EncodeOscillator(cfg, p))

	obs := make([]float64, body.ObservationSize)
	for i := 0; i < 10; i++ {
		o.Act(obs)
	}
	want := 2 * math.Pi * 0.2
	if math.Abs(o.Phase()-want) > 1e-9 {
		t.Errorf("phase = %v, want %v", o.Phase(), want)
	}

	h0, _ := o.Targets(0)
	h1, _ := o.Targets(1)
	if math.Abs((h0-0.1)+(h1-0.1)) > 1e-9 {
		t.Errorf("legs not in anti-phase: %v, %v", h0, h1)
	}

	o.Reset()
	if o.Phase() != 0 {
		t.Errorf("Reset left phase %v", o.Phase())
	}
}

func TestLinear(t *testing.T) {
	cfg := config.Default().Policy.Linear
	genes := make([]float64, 60)
	for i := range genes {
		genes[i] = 1.5
	}
	l := NewLinear(cfg, genes)
	obs := make([]float64, body.ObservationSize)
	for i := range obs {
		obs[i] = float64(i)
	}
	for i, v := range l.Act(obs) {
		if v != 0 {
			t.Errorf("zero weights gave command %d = %v", i, v)
		}
	}

	genes[56] = 2                          // bias of joint 0
	genes[0*body.ObservationSize+1] = 1.75 // joint 0 weight on obs[1]
	l = NewLinear(cfg, genes)
	got := l.Act(obs)
	if want := math.Tanh(1 + 0.5*1); math.Abs(got[0]-want) > 1e-12 {
		t.Errorf("command 0 = %v, want %v", got[0], want)
	}
	if r, c := l.Weights().Dims(); r != body.NumJoints || c != body.ObservationSize {
		t.Errorf("weights dims = %dx%d", r, c)
	}
}
