// Package evolve is the generational optimizer: fixed-length real-valued
// chromosomes, single-point crossover, one-gene mutation, tournament
// selection and elitism. Higher fitness is better.
package evolve

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"

	"github.com/google/uuid"

	"github.com/pthm-cable/strider/genome"
)

// ErrGenomeMismatch is returned when crossing genomes of different length.
var ErrGenomeMismatch = errors.New("genome length mismatch")

// Chromosome is a genome with its fitness and lineage. Operators return
// new chromosomes and never change their receivers.
type Chromosome struct {
	ID        uuid.UUID     `json:"id"`
	Genome    genome.Genome `json:"genome"`
	Fitness   float64       `json:"fitness"`
	Evaluated bool          `json:"evaluated"`
	Parents   []uuid.UUID   `json:"parents,omitempty"`
}

// NewChromosome wraps g with an ID drawn from rng.
func NewChromosome(g genome.Genome, rng *rand.Rand) Chromosome {
	return Chromosome{ID: newID(rng), Genome: g}
}

// newID draws a version 4 UUID from the run's seeded source so lineage
// is reproducible.
func newID(rng *rand.Rand) uuid.UUID {
	return uuid.Must(uuid.NewRandomFromReader(rng))
}

// Len returns the genome length.
func (c Chromosome) Len() int {
	return c.Genome.Len()
}

// Mate performs single-point crossover at a pivot p drawn uniformly from
// [0, len-1] and returns (c[:p]+other[p:], other[:p]+c[p:]).
func (c Chromosome) Mate(other Chromosome, rng *rand.Rand) (Chromosome, Chromosome, error) {
	n := c.Len()
	if n != other.Len() {
		return Chromosome{}, Chromosome{}, fmt.Errorf("%w: %d vs %d", ErrGenomeMismatch, n, other.Len())
	}
	if n == 0 {
		return Chromosome{}, Chromosome{}, fmt.Errorf("%w: empty genomes", ErrGenomeMismatch)
	}
	p := rng.Intn(n)
	parents := []uuid.UUID{c.ID, other.ID}
	a := Chromosome{ID: newID(rng), Genome: genome.Splice(c.Genome, other.Genome, p), Parents: parents}
	b := Chromosome{ID: newID(rng), Genome: genome.Splice(other.Genome, c.Genome, p), Parents: slices.Clone(parents)}
	return a, b, nil
}

// Mutate perturbs one uniformly chosen gene g by a delta drawn uniformly
// from [-|g|/2, |g|/2]. The result descends from c.
func (c Chromosome) Mutate(rng *rand.Rand) Chromosome {
	out := c.perturb(rng)
	out.Parents = []uuid.UUID{c.ID}
	return out
}

// perturb is Mutate keeping c's parents, for children mutated right
// after crossover.
func (c Chromosome) perturb(rng *rand.Rand) Chromosome {
	out := Chromosome{ID: newID(rng), Genome: c.Genome, Parents: slices.Clone(c.Parents)}
	if c.Len() == 0 {
		return out
	}
	i := rng.Intn(c.Len())
	old := c.Genome.At(i)
	delta := (rng.Float64()*2 - 1) * math.Abs(old) / 2
	out.Genome = c.Genome.With(i, old+delta)
	return out
}

// copyForward is an unevaluated copy of c with a fresh ID.
func (c Chromosome) copyForward(rng *rand.Rand) Chromosome {
	return Chromosome{ID: newID(rng), Genome: c.Genome, Parents: []uuid.UUID{c.ID}}
}

// better reports whether a ranks above b.
func better(a, b Chromosome) bool {
	if a.Evaluated != b.Evaluated {
		return a.Evaluated
	}
	return rank(a.Fitness) > rank(b.Fitness)
}

func rank(f float64) float64 {
	if math.IsNaN(f) {
		return math.Inf(-1)
	}
	return f
}
