// Command tune runs CMA-ES over the state-machine gait gains, scoring each
// candidate on several terrain seeds with the nominal morphology.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/strider/config"
)

// formatDuration formats a duration as HHhMMmSSs or MMmSSs for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

// logRow is one line of tune_log.csv.
type logRow struct {
	Eval              int     `csv:"eval"`
	Score             float64 `csv:"score"`
	MeanDistance      float64 `csv:"mean_distance"`
	Falls             int     `csv:"falls"`
	HipKp             float64 `csv:"hip_kp"`
	HipKd             float64 `csv:"hip_kd"`
	KneeKp            float64 `csv:"knee_kp"`
	KneeKd            float64 `csv:"knee_kd"`
	BalanceAngle      float64 `csv:"balance_angle"`
	BalanceRate       float64 `csv:"balance_rate"`
	VerticalDamping   float64 `csv:"vertical_damping"`
	TargetSpeed       float64 `csv:"target_speed"`
	SupportKneeAngle  float64 `csv:"support_knee_angle"`
	HipTrailThreshold float64 `csv:"hip_trail_threshold"`
	KneePushThreshold float64 `csv:"knee_push_threshold"`
}

func newLogRow(eval int, score, distance float64, falls int, sm config.StateMachineConfig) logRow {
	return logRow{
		Eval:              eval,
		Score:             score,
		MeanDistance:      distance,
		Falls:             falls,
		HipKp:             sm.HipKp,
		HipKd:             sm.HipKd,
		KneeKp:            sm.KneeKp,
		KneeKd:            sm.KneeKd,
		BalanceAngle:      sm.BalanceAngle,
		BalanceRate:       sm.BalanceRate,
		VerticalDamping:   sm.VerticalDamping,
		TargetSpeed:       sm.TargetSpeed,
		SupportKneeAngle:  sm.SupportKneeAngle,
		HipTrailThreshold: sm.HipTrailThreshold,
		KneePushThreshold: sm.KneePushThreshold,
	}
}

// logWriter appends rows to tune_log.csv, writing the header once.
type logWriter struct {
	f           *os.File
	wroteHeader bool
}

func (w *logWriter) write(row logRow) error {
	rows := []logRow{row}
	if !w.wroteHeader {
		w.wroteHeader = true
		return gocsv.Marshal(rows, w.f)
	}
	return gocsv.MarshalWithoutHeaders(rows, w.f)
}

func main() {
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	maxSteps := flag.Int("max-steps", 0, "Episode step cap (0 = config)")
	seeds := flag.Int("seeds", 3, "Number of terrain seeds per evaluation")
	maxEvals := flag.Int("max-evals", 200, "Maximum number of evaluations")
	population := flag.Int("population", 0, "CMA-ES population size (0 = auto)")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if *outputDir == "" {
		slog.Error("--output is required")
		os.Exit(1)
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		slog.Error("failed to create output directory", "error", err)
		os.Exit(1)
	}

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg().Clone()
	cfg.Policy.Kind = config.PolicyStateMachine
	if *maxSteps > 0 {
		cfg.Physics.MaxSteps = *maxSteps
	}
	if err := cfg.Refresh(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	params := NewParamVector(cfg.Policy.StateMachine)

	evalSeeds := make([]int64, *seeds)
	for i := range evalSeeds {
		evalSeeds[i] = cfg.Terrain.Seed + int64(i*1000)
	}
	evaluator, err := NewEvaluator(params, cfg, evalSeeds)
	if err != nil {
		slog.Error("failed to build evaluator", "error", err)
		os.Exit(1)
	}

	dim := params.Dim()
	popSize := *population
	if popSize == 0 {
		popSize = 4 + int(3.0*float64(dim)/2.0)
	}
	method := &optimize.CmaEsChol{
		InitStepSize: 0.3,
		Population:   popSize,
	}
	settings := &optimize.Settings{
		FuncEvaluations: *maxEvals,
		Concurrent:      0, // Seeds already run in parallel
	}

	logPath := filepath.Join(*outputDir, "tune_log.csv")
	logFile, err := os.Create(logPath)
	if err != nil {
		slog.Error("failed to create log file", "error", err)
		os.Exit(1)
	}
	defer logFile.Close()
	log := &logWriter{f: logFile}

	evalCount := 0
	bestScore := 1e9
	var bestGains []float64
	var runErr error
	startTime := time.Now()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			raw := params.Clamp(params.Denormalize(x))
			score, err := evaluator.Evaluate(ctx, raw)
			if err != nil {
				if runErr == nil {
					runErr = err
				}
				return score
			}
			evalCount++
			if score < bestScore {
				bestScore = score
				bestGains = raw
			}

			distance, falls := evaluator.Last()
			row := newLogRow(evalCount, score, distance, falls, params.Apply(cfg.Policy.StateMachine, raw))
			if err := log.write(row); err != nil {
				slog.Warn("failed to write log row", "error", err)
			}

			elapsed := time.Since(startTime)
			avgPerEval := elapsed / time.Duration(evalCount)
			remaining := time.Duration(*maxEvals-evalCount) * avgPerEval
			fmt.Printf("Eval %d/%d: score=%.3f distance=%.2f falls=%d (best=%.3f) | elapsed: %s, ETA: %s\n",
				evalCount, *maxEvals, score, distance, falls, bestScore,
				formatDuration(elapsed), formatDuration(remaining))
			return score
		},
	}

	fmt.Printf("Starting CMA-ES with %d parameters, population=%d, max_evals=%d\n", dim, popSize, *maxEvals)
	fmt.Printf("Terrain seeds per evaluation: %d, max steps: %d\n", *seeds, cfg.Physics.MaxSteps)

	initX := params.Normalize(params.DefaultVector())
	result, err := optimize.Minimize(problem, initX, settings, method)
	if err != nil {
		slog.Warn("optimization ended", "error", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("evaluation failed", "error", runErr)
		os.Exit(1)
	}

	if bestGains == nil {
		if result == nil {
			slog.Error("no evaluation completed")
			os.Exit(1)
		}
		bestGains = params.Clamp(params.Denormalize(result.X))
	}

	fmt.Printf("\nTuning complete after %d evaluations in %s\n", evalCount, formatDuration(time.Since(startTime)))
	_, bestDistance := evaluator.Best()
	fmt.Printf("Best score: %.3f (mean distance %.2f)\n", bestScore, bestDistance)
	fmt.Println("\nBest gains:")
	for i, spec := range params.Specs {
		fmt.Printf("  %s: %.6f\n", spec.Path, bestGains[i])
	}

	bestCfg := cfg.Clone()
	bestCfg.Policy.StateMachine = params.Apply(cfg.Policy.StateMachine, bestGains)
	configOutPath := filepath.Join(*outputDir, "best_config.yaml")
	if err := bestCfg.WriteYAML(configOutPath); err != nil {
		slog.Error("failed to write best config", "error", err)
		os.Exit(1)
	}
	fmt.Printf("\nBest config saved to: %s\n", configOutPath)
}
