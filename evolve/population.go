package evolve

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"

	"github.com/google/uuid"

	"github.com/pthm-cable/strider/config"
	"github.com/pthm-cable/strider/genome"
)

var (
	// ErrNotEvaluated is returned by Evolve while some fitness is missing.
	ErrNotEvaluated = errors.New("population has unevaluated chromosomes")
	// ErrUnknownChromosome is returned by SetFitness for a foreign ID.
	ErrUnknownChromosome = errors.New("unknown chromosome")
	// ErrAlreadyScored is returned when a chromosome is scored twice in
	// one generation.
	ErrAlreadyScored = errors.New("chromosome already scored this generation")
)

// Population is a fixed-size set of chromosomes kept sorted best first,
// with unevaluated chromosomes after all evaluated ones.
type Population struct {
	cfg         config.EvolutionConfig
	eliteCount  int
	rng         *rand.Rand
	chromosomes []Chromosome
	index       map[uuid.UUID]int
	scored      map[uuid.UUID]bool
	generation  int
}

// NewPopulation draws population_size random genomes from the layout.
func NewPopulation(cfg config.EvolutionConfig, layout genome.Layout, rng *rand.Rand) (*Population, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cs := make([]Chromosome, cfg.PopulationSize)
	for i := range cs {
		cs[i] = NewChromosome(layout.Random(rng), rng)
	}
	return newPopulation(cfg, rng, cs), nil
}

// FromChromosomes builds a population from existing chromosomes, for
// example a saved hall of fame. The count must match population_size and
// all genomes must share one length.
func FromChromosomes(cfg config.EvolutionConfig, rng *rand.Rand, cs []Chromosome) (*Population, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cs) != cfg.PopulationSize {
		return nil, fmt.Errorf("%w: %d chromosomes for population_size %d",
			config.ErrInvalidConfiguration, len(cs), cfg.PopulationSize)
	}
	for _, c := range cs[1:] {
		if c.Len() != cs[0].Len() {
			return nil, fmt.Errorf("%w: %d vs %d", ErrGenomeMismatch, c.Len(), cs[0].Len())
		}
	}
	seen := make(map[uuid.UUID]bool, len(cs))
	for _, c := range cs {
		if seen[c.ID] {
			return nil, fmt.Errorf("duplicate chromosome id %s", c.ID)
		}
		seen[c.ID] = true
	}
	return newPopulation(cfg, rng, slices.Clone(cs)), nil
}

func newPopulation(cfg config.EvolutionConfig, rng *rand.Rand, cs []Chromosome) *Population {
	p := &Population{
		cfg:         cfg,
		eliteCount:  cfg.EliteCount(),
		rng:         rng,
		chromosomes: cs,
		scored:      make(map[uuid.UUID]bool),
	}
	p.Sort()
	return p
}

// Len returns the population size.
func (p *Population) Len() int {
	return len(p.chromosomes)
}

// Generation returns how many times Evolve has run.
func (p *Population) Generation() int {
	return p.generation
}

// SetGeneration sets the generation counter, for a population restored
// from a snapshot.
func (p *Population) SetGeneration(n int) {
	p.generation = n
}

// EliteCount returns how many chromosomes survive each Evolve unchanged.
func (p *Population) EliteCount() int {
	return p.eliteCount
}

// Chromosomes returns the chromosomes in rank order.
func (p *Population) Chromosomes() []Chromosome {
	return slices.Clone(p.chromosomes)
}

// Best returns the top chromosome; ok is false until one is evaluated.
func (p *Population) Best() (c Chromosome, ok bool) {
	if len(p.chromosomes) == 0 || !p.chromosomes[0].Evaluated {
		return Chromosome{}, false
	}
	return p.chromosomes[0], true
}

// Elites returns the chromosomes Evolve would carry forward.
func (p *Population) Elites() []Chromosome {
	return slices.Clone(p.chromosomes[:p.eliteCount])
}

// SetFitness records the fitness of chromosome id for this generation.
// Ranks are not updated until Sort.
func (p *Population) SetFitness(id uuid.UUID, fitness float64) error {
	i, ok := p.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChromosome, id)
	}
	if p.scored[id] {
		return fmt.Errorf("%w: %s", ErrAlreadyScored, id)
	}
	p.scored[id] = true
	p.chromosomes[i].Fitness = fitness
	p.chromosomes[i].Evaluated = true
	return nil
}

// Sort orders chromosomes best first. Ties keep their current order.
func (p *Population) Sort() {
	slices.SortStableFunc(p.chromosomes, func(a, b Chromosome) int {
		switch {
		case better(a, b):
			return -1
		case better(b, a):
			return 1
		}
		return 0
	})
	p.reindex()
}

func (p *Population) reindex() {
	p.index = make(map[uuid.UUID]int, len(p.chromosomes))
	for i, c := range p.chromosomes {
		p.index[c.ID] = i
	}
}

// Evolve replaces the population with the next generation: elites carried
// unchanged, the rest bred from tournament winners by crossover or
// copying, each child mutated with mutation_rate. The result is sorted;
// elites keep their fitness and everything else awaits evaluation.
func (p *Population) Evolve() error {
	for _, c := range p.chromosomes {
		if !c.Evaluated {
			return fmt.Errorf("%w: %s", ErrNotEvaluated, c.ID)
		}
	}
	p.Sort()

	size := len(p.chromosomes)
	next := make([]Chromosome, 0, size+1)
	next = append(next, p.chromosomes[:p.eliteCount]...)

	for len(next) < size {
		a, b := p.tournament(), p.tournament()
		if p.rng.Float64() < p.cfg.CrossoverRate {
			c1, c2, err := a.Mate(b, p.rng)
			if err != nil {
				return err
			}
			next = append(next, p.maybeMutate(c1), p.maybeMutate(c2))
			continue
		}
		next = append(next, p.maybeMutate(a.copyForward(p.rng)))
	}

	p.chromosomes = next[:size]
	p.generation++
	clear(p.scored)
	p.Sort()
	return nil
}

func (p *Population) maybeMutate(c Chromosome) Chromosome {
	if p.rng.Float64() < p.cfg.MutationRate {
		return c.perturb(p.rng)
	}
	return c
}

// tournament draws tournament_size+1 chromosomes with replacement and
// returns the best.
func (p *Population) tournament() Chromosome {
	best := p.chromosomes[p.rng.Intn(len(p.chromosomes))]
	for range p.cfg.TournamentSize {
		c := p.chromosomes[p.rng.Intn(len(p.chromosomes))]
		if better(c, best) {
			best = c
		}
	}
	return best
}
