package genome

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/pthm-cable/strider/body"
	"github.com/pthm-cable/strider/config"
	"github.com/pthm-cable/strider/policy"
)

// ErrLength is returned when a genome does not fit the layout.
var ErrLength = errors.New("genome length does not match layout")

// MorphologyGenes is the size of the morphology block.
const MorphologyGenes = 4

// Layout is [morphology block | controller block]. The morphology block
// is absent when morphology is fixed.
type Layout struct {
	morph      int
	controller int

	body    config.BodyConfig
	policy  config.PolicyConfig
	dt      float64
	initMin float64
	initMax float64
}

// NewLayout derives the gene layout from the configuration.
func NewLayout(cfg *config.Config) (Layout, error) {
	n, err := policy.ParamCount(cfg.Policy.Kind)
	if err != nil {
		return Layout{}, err
	}
	l := Layout{
		controller: n,
		body:       cfg.Body,
		policy:     cfg.Policy,
		dt:         cfg.Physics.DT,
		initMin:    cfg.Genome.InitMin,
		initMax:    cfg.Genome.InitMax,
	}
	if cfg.Genome.EvolveMorphology {
		l.morph = MorphologyGenes
	}
	if l.Len() == 0 {
		return Layout{}, fmt.Errorf("%w: %s policy with fixed morphology has nothing to evolve",
			config.ErrInvalidConfiguration, cfg.Policy.Kind)
	}
	return l, nil
}

// Len returns the genome length.
func (l Layout) Len() int {
	return l.morph + l.controller
}

// MorphologyLen returns the size of the morphology block (0 or 4).
func (l Layout) MorphologyLen() int {
	return l.morph
}

// ControllerLen returns the size of the controller block.
func (l Layout) ControllerLen() int {
	return l.controller
}

// PolicyKind returns the controller kind the layout decodes to.
func (l Layout) PolicyKind() string {
	return l.policy.Kind
}

// Check returns ErrLength if g does not fit.
func (l Layout) Check(g Genome) error {
	if g.Len() != l.Len() {
		return fmt.Errorf("%w: got %d genes, want %d", ErrLength, g.Len(), l.Len())
	}
	return nil
}

// Random draws every gene uniformly in [init_min, init_max].
func (l Layout) Random(rng *rand.Rand) Genome {
	genes := make([]float64, l.Len())
	for i := range genes {
		genes[i] = l.initMin + rng.Float64()*(l.initMax-l.initMin)
	}
	return Genome{genes: genes}
}

// Morphology decodes the morphology block, each gene scaled by its
// gene_scale. With a fixed morphology the configured nominal one is
// returned. The result is not clamped; body.Build does that.
func (l Layout) Morphology(g Genome) (body.Morphology, error) {
	if err := l.Check(g); err != nil {
		return body.Morphology{}, err
	}
	if l.morph == 0 {
		return body.NominalMorphology(l.body), nil
	}
	s := l.body.GeneScale
	return body.Morphology{
		ThighLength: g.At(0) * s.ThighLength,
		ThighWidth:  g.At(1) * s.ThighWidth,
		ShinLength:  g.At(2) * s.ShinLength,
		ShinWidth:   g.At(3) * s.ShinWidth,
	}, nil
}

// Controller builds a fresh policy from the controller block.
func (l Layout) Controller(g Genome) (policy.Policy, error) {
	if err := l.Check(g); err != nil {
		return nil, err
	}
	return policy.New(l.policy, l.dt, g.Slice(l.morph, l.Len()))
}

// Encode assembles a genome from a morphology and controller genes. With
// a fixed morphology m is ignored.
func (l Layout) Encode(m body.Morphology, controller []float64) (Genome, error) {
	if len(controller) != l.controller {
		return Genome{}, fmt.Errorf("%w: got %d controller genes, want %d", ErrLength, len(controller), l.controller)
	}
	genes := make([]float64, 0, l.Len())
	if l.morph > 0 {
		s := l.body.GeneScale
		genes = append(genes,
			m.ThighLength/s.ThighLength,
			m.ThighWidth/s.ThighWidth,
			m.ShinLength/s.ShinLength,
			m.ShinWidth/s.ShinWidth,
		)
	}
	genes = append(genes, controller...)
	return Genome{genes: genes}, nil
}
