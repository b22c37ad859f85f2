package telemetry

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// WriteFitnessPlot draws best and mean fitness per generation to a PNG,
// SVG or PDF file chosen by the path's extension. Generations with a
// non-finite value are left out of that line.
func WriteFitnessPlot(path string, history []GenerationStats) error {
	if len(history) == 0 {
		return fmt.Errorf("fitness plot: no generations")
	}

	p := plot.New()
	p.Title.Text = "Fitness"
	p.X.Label.Text = "Generation"
	p.Y.Label.Text = "Fitness"

	best := make(plotter.XYs, 0, len(history))
	mean := make(plotter.XYs, 0, len(history))
	for _, s := range history {
		x := float64(s.Generation)
		if finite(s.BestFitness) {
			best = append(best, plotter.XY{X: x, Y: s.BestFitness})
		}
		if finite(s.MeanFitness) {
			mean = append(mean, plotter.XY{X: x, Y: s.MeanFitness})
		}
	}

	if len(best) == 0 || len(mean) == 0 {
		return fmt.Errorf("fitness plot: no finite fitness values")
	}

	bestLine, err := plotter.NewLine(best)
	if err != nil {
		return fmt.Errorf("fitness plot: %w", err)
	}
	bestLine.Color = color.RGBA{R: 200, G: 40, B: 40, A: 255}

	meanLine, err := plotter.NewLine(mean)
	if err != nil {
		return fmt.Errorf("fitness plot: %w", err)
	}
	meanLine.Color = color.RGBA{R: 40, G: 80, B: 200, A: 255}
	meanLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(plotter.NewGrid(), bestLine, meanLine)
	p.Legend.Add("best", bestLine)
	p.Legend.Add("mean", meanLine)
	p.Legend.Top = true
	p.Legend.Left = true

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("saving fitness plot: %w", err)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
