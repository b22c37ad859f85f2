package policy

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/pthm-cable/strider/body"
	"github.com/pthm-cable/strider/config"
)

// Linear is a single-layer controller: u = tanh(W obs + b).
type Linear struct {
	w   *mat.Dense
	b   *mat.VecDense
	obs *mat.VecDense
	out mat.VecDense
}

// NewLinear decodes genes row-major into W (NumJoints x ObservationSize)
// followed by b. Gene 1.5 maps to a zero weight.
func NewLinear(cfg config.LinearConfig, genes []float64) *Linear {
	rows, cols := body.NumJoints, body.ObservationSize
	weights := make([]float64, rows*cols)
	bias := make([]float64, rows)
	for i := range weights {
		weights[i] = decodeWeight(cfg, genes, i)
	}
	for i := range bias {
		bias[i] = decodeWeight(cfg, genes, rows*cols+i)
	}
	return &Linear{
		w:   mat.NewDense(rows, cols, weights),
		b:   mat.NewVecDense(rows, bias),
		obs: mat.NewVecDense(cols, nil),
	}
}

func decodeWeight(cfg config.LinearConfig, genes []float64, i int) float64 {
	if i >= len(genes) || math.IsNaN(genes[i]) {
		return 0
	}
	return (genes[i] - 1.5) * 2 * cfg.WeightScale
}

// Weights returns a copy of the weight matrix.
func (l *Linear) Weights() *mat.Dense {
	return mat.DenseCopyOf(l.w)
}

// Reset is a no-op; the controller is stateless.
func (l *Linear) Reset() {}

// Act evaluates the controller.
func (l *Linear) Act(obs []float64) []float64 {
	for i := 0; i < body.ObservationSize; i++ {
		l.obs.SetVec(i, at(obs, i))
	}
	l.out.MulVec(l.w, l.obs)
	l.out.AddVec(&l.out, l.b)

	out := make([]float64, body.NumJoints)
	for i := range out {
		out[i] = unit(math.Tanh(l.out.AtVec(i)))
	}
	return out
}
