package genome

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/pthm-cable/strider/body"
	"github.com/pthm-cable/strider/config"
	"github.com/pthm-cable/strider/policy"
)

func TestGenomeIsImmutable(t *testing.T) {
	src := []float64{1, 2, 3}
	g := New(src)
	src[0] = 99
	if g.At(0) != 1 {
		t.Error("New aliases its input")
	}
	genes := g.Genes()
	genes[1] = 99
	if g.At(1) != 2 {
		t.Error("Genes aliases internal storage")
	}
	h := g.With(2, 7)
	if g.At(2) != 3 || h.At(2) != 7 {
		t.Errorf("With changed the original: %v -> %v", g.Genes(), h.Genes())
	}
}

func TestSplice(t *testing.T) {
	a := New([]float64{1, 2, 3, 4})
	b := New([]float64{5, 6, 7, 8})
	tests := []struct {
		p    int
		want []float64
	}{
		{0, []float64{5, 6, 7, 8}},
		{2, []float64{1, 2, 7, 8}},
		{4, []float64{1, 2, 3, 4}},
	}
	for _, tt := range tests {
		if got := Splice(a, b, tt.p); !got.Equal(New(tt.want)) {
			t.Errorf("Splice(p=%d) = %v, want %v", tt.p, got.Genes(), tt.want)
		}
	}
}

func TestGenomeJSON(t *testing.T) {
	g := New([]float64{1.5, 2.25})
	data, err := json.Marshal(g)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[1.5,2.25]" {
		t.Errorf("json = %s", data)
	}
	var back Genome
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !back.Equal(g) {
		t.Errorf("decoded %v", back.Genes())
	}
}

func TestLayoutLength(t *testing.T) {
	tests := []struct {
		kind    string
		morph   bool
		want    int
		wantErr bool
	}{
		{config.PolicyOscillator, true, 13, false},
		{config.PolicyOscillator, false, 9, false},
		{config.PolicyLinear, true, 64, false},
		{config.PolicyStateMachine, true, 4, false},
		{config.PolicyStateMachine, false, 0, true},
		{"cpg", true, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			cfg := config.Default()
			cfg.Policy.Kind = tt.kind
			cfg.Genome.EvolveMorphology = tt.morph
			l, err := NewLayout(cfg)
			if tt.wantErr {
				if !errors.Is(err, config.ErrInvalidConfiguration) {
					t.Errorf("err = %v, want ErrInvalidConfiguration", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if l.Len() != tt.want {
				t.Errorf("Len() = %d, want %d", l.Len(), tt.want)
			}
		})
	}
}

func TestRandomWithinInitRange(t *testing.T) {
	cfg := config.Default()
	l, err := NewLayout(cfg)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 50; i++ {
		g := l.Random(rng)
		if g.Len() != l.Len() {
			t.Fatalf("len = %d", g.Len())
		}
		for _, v := range g.Genes() {
			if v < cfg.Genome.InitMin || v > cfg.Genome.InitMax {
				t.Fatalf("gene %v outside [%v, %v]", v, cfg.Genome.InitMin, cfg.Genome.InitMax)
			}
		}
	}
}

func TestMorphologyDecoding(t *testing.T) {
	cfg := config.Default()
	l, err := NewLayout(cfg)
	if err != nil {
		t.Fatal(err)
	}
	want := body.Morphology{ThighLength: 1.2, ThighWidth: 0.3, ShinLength: 0.9, ShinWidth: 0.2}
	g, err := l.Encode(want, make([]float64, l.ControllerLen()))
	if err != nil {
		t.Fatal(err)
	}
	got, err := l.Morphology(g)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got.ThighLength-want.ThighLength) > 1e-12 || math.Abs(got.ShinWidth-want.ShinWidth) > 1e-12 {
		t.Errorf("Morphology = %+v, want %+v", got, want)
	}

	if _, err := l.Morphology(New([]float64{1})); !errors.Is(err, ErrLength) {
		t.Errorf("short genome err = %v", err)
	}

	cfg.Genome.EvolveMorphology = false
	fixed, err := NewLayout(cfg)
	if err != nil {
		t.Fatal(err)
	}
	m, err := fixed.Morphology(fixed.Random(rand.New(rand.NewSource(1))))
	if err != nil {
		t.Fatal(err)
	}
	if m != body.NominalMorphology(cfg.Body) {
		t.Errorf("fixed morphology = %+v", m)
	}
}

func TestController(t *testing.T) {
	cfg := config.Default()
	l, err := NewLayout(cfg)
	if err != nil {
		t.Fatal(err)
	}
	p, err := l.Controller(l.Random(rand.New(rand.NewSource(1))))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*policy.Oscillator); !ok {
		t.Errorf("Controller returned %T", p)
	}

	cfg.Policy.Kind = config.PolicyStateMachine
	l, err = NewLayout(cfg)
	if err != nil {
		t.Fatal(err)
	}
	p, err = l.Controller(l.Random(rand.New(rand.NewSource(1))))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*policy.StateMachine); !ok {
		t.Errorf("Controller returned %T", p)
	}
}
