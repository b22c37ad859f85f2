// Package genome holds the real-valued gene vector and the layout that
// decodes it into a walker morphology and a controller.
package genome

import (
	"encoding/json"
	"slices"
)

// Genome is an immutable, fixed-length gene sequence. Every method that
// hands genes out or takes them in copies.
type Genome struct {
	genes []float64
}

// New copies genes into a Genome.
func New(genes []float64) Genome {
	return Genome{genes: slices.Clone(genes)}
}

// Len returns the number of genes.
func (g Genome) Len() int {
	return len(g.genes)
}

// At returns gene i.
func (g Genome) At(i int) float64 {
	return g.genes[i]
}

// Genes returns a copy of the genes.
func (g Genome) Genes() []float64 {
	return slices.Clone(g.genes)
}

// Slice returns a copy of genes [from, to).
func (g Genome) Slice(from, to int) []float64 {
	return slices.Clone(g.genes[from:to])
}

// With returns a copy with gene i replaced.
func (g Genome) With(i int, v float64) Genome {
	out := g.Genes()
	out[i] = v
	return Genome{genes: out}
}

// Splice returns a[:p] followed by b[p:]. Both must have the same length.
func Splice(a, b Genome, p int) Genome {
	out := make([]float64, 0, len(a.genes))
	out = append(out, a.genes[:p]...)
	out = append(out, b.genes[p:]...)
	return Genome{genes: out}
}

// Equal reports whether both genomes hold identical genes.
func (g Genome) Equal(o Genome) bool {
	return slices.Equal(g.genes, o.genes)
}

// MarshalJSON encodes the genes as a plain array.
func (g Genome) MarshalJSON() ([]byte, error) {
	if g.genes == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(g.genes)
}

// UnmarshalJSON decodes a plain array.
func (g *Genome) UnmarshalJSON(data []byte) error {
	var genes []float64
	if err := json.Unmarshal(data, &genes); err != nil {
		return err
	}
	g.genes = genes
	return nil
}
