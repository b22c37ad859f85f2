package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pthm-cable/strider/config"
	"github.com/pthm-cable/strider/experiment"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	seed := flag.Int64("seed", 0, "Evolution RNG seed (0 = use config)")
	terrainSeed := flag.Int64("terrain-seed", 0, "Terrain seed (0 = use config)")
	generations := flag.Int("generations", 0, "Generations to run (0 = use config)")
	workers := flag.Int("workers", -1, "Concurrent episodes (-1 = use config, 0 = GOMAXPROCS)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, plots and config snapshot")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (empty = disabled)")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	resume := flag.String("resume", "", "Resume from a population snapshot file")
	seedFrom := flag.String("seed-from", "", "Seed the first generation from a hall_of_fame.json")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	if *seed != 0 {
		cfg.Evolution.Seed = *seed
	}
	if *terrainSeed != 0 {
		cfg.Terrain.Seed = *terrainSeed
	}
	if *generations > 0 {
		cfg.Evolution.Generations = *generations
	}
	if *workers >= 0 {
		cfg.Evolution.Workers = *workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := experiment.Options{
		LogStats:     *logStats,
		OutputDir:    *outputDir,
		ResumePath:   *resume,
		SeedFromPath: *seedFrom,
	}

	var srv *http.Server
	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts.Registerer = reg

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv = &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "error", err)
			}
		}()
		slog.Info("serving metrics", "addr", *metricsAddr)
	}

	exp, err := experiment.New(cfg, opts)
	if err != nil {
		slog.Error("failed to start experiment", "error", err)
		os.Exit(1)
	}

	slog.Info("starting evolution",
		"generations", cfg.Evolution.Generations,
		"population", cfg.Evolution.PopulationSize,
		"seed", cfg.Evolution.Seed,
		"terrain_seed", cfg.Terrain.Seed,
		"output_dir", *outputDir,
	)

	runErr := exp.Run(ctx)
	if err := exp.Close(); err != nil {
		slog.Error("failed to close outputs", "error", err)
	}
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics server shutdown", "error", err)
		}
		cancel()
	}

	switch {
	case errors.Is(runErr, context.Canceled):
		slog.Info("interrupted", "generation", exp.Population().Generation())
	case runErr != nil:
		slog.Error("evolution failed", "error", runErr)
		os.Exit(1)
	default:
		if hof := exp.HallOfFame(); hof.Len() > 0 {
			best := hof.Entries()[0]
			slog.Info("best walker",
				"id", best.Chromosome.ID,
				"fitness", best.Chromosome.Fitness,
				"distance", best.Distance,
				"generation", best.Generation,
			)
		}
	}
}
