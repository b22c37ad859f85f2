package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}

	if cfg.Terrain.Length != 600 {
		t.Errorf("terrain.length = %v, want 600", cfg.Terrain.Length)
	}
	if cfg.Physics.VelocityIterations != 6 || cfg.Physics.PositionIterations != 2 {
		t.Errorf("iterations = %d/%d, want 6/2", cfg.Physics.VelocityIterations, cfg.Physics.PositionIterations)
	}
	if cfg.Body.HipLimits != (JointLimits{-0.8, 1.1}) {
		t.Errorf("hip limits = %v", cfg.Body.HipLimits)
	}
	if cfg.Policy.Oscillator.KneePhase[1] < 3.14 {
		t.Errorf("knee phase range = %v", cfg.Policy.Oscillator.KneePhase)
	}
	if math.Abs(cfg.Derived.FPS-50) > 1e-9 {
		t.Errorf("derived fps = %v, want 50", cfg.Derived.FPS)
	}
	if cfg.Derived.StuckSteps != 100 {
		t.Errorf("derived stuck steps = %d, want 100", cfg.Derived.StuckSteps)
	}
	if cfg.Derived.EliteCount != 3 {
		t.Errorf("derived elite count = %d, want 3", cfg.Derived.EliteCount)
	}
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "override.yaml")
	data := []byte("terrain:\n  roughness: 2.5\nevolution:\n  population_size: 8\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Terrain.Roughness != 2.5 {
		t.Errorf("roughness = %v, want 2.5", cfg.Terrain.Roughness)
	}
	if cfg.Evolution.PopulationSize != 8 {
		t.Errorf("population_size = %d, want 8", cfg.Evolution.PopulationSize)
	}
	// Untouched values keep their defaults
	if cfg.Terrain.Length != 600 {
		t.Errorf("length = %v, want default 600", cfg.Terrain.Length)
	}
	if cfg.Derived.EliteCount != 1 {
		t.Errorf("elite count = %d, want 1", cfg.Derived.EliteCount)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero length", func(c *Config) { c.Terrain.Length = 0 }},
		{"negative length", func(c *Config) { c.Terrain.Length = -10 }},
		{"NaN length", func(c *Config) { c.Terrain.Length = math.NaN() }},
		{"negative roughness", func(c *Config) { c.Terrain.Roughness = -1 }},
		{"spawn past end", func(c *Config) { c.Terrain.SpawnX = c.Terrain.Length }},
		{"unknown style", func(c *Config) { c.Terrain.Style = "cliffs" }},
		{"zero dt", func(c *Config) { c.Physics.DT = 0 }},
		{"NaN dt", func(c *Config) { c.Physics.DT = math.NaN() }},
		{"zero max steps", func(c *Config) { c.Physics.MaxSteps = 0 }},
		{"zero population", func(c *Config) { c.Evolution.PopulationSize = 0 }},
		{"elitism above one", func(c *Config) { c.Evolution.ElitismFraction = 1.5 }},
		{"negative crossover", func(c *Config) { c.Evolution.CrossoverRate = -0.1 }},
		{"mutation above one", func(c *Config) { c.Evolution.MutationRate = 2 }},
		{"unknown policy", func(c *Config) { c.Policy.Kind = "neat" }},
		{"unknown metric", func(c *Config) { c.Fitness.Metric = "speed" }},
		{"inverted hip limits", func(c *Config) { c.Body.HipLimits = JointLimits{1, -1} }},
		{"zero init range", func(c *Config) { c.Genome.InitMin = 0 }},
		{"empty hall of fame", func(c *Config) { c.Telemetry.HallOfFameSize = 0 }},
		{"negative snapshot interval", func(c *Config) { c.Telemetry.SnapshotEvery = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfiguration) {
				t.Errorf("Validate() = %v, want ErrInvalidConfiguration", err)
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestEliteCount(t *testing.T) {
	tests := []struct {
		size     int
		fraction float64
		want     int
	}{
		{10, 0, 0},
		{10, 0.1, 1},
		{10, 0.25, 3},
		{10, 1, 10},
		{3, 0.5, 2},
		{1, 0.4, 0},
	}

	for _, tt := range tests {
		e := EvolutionConfig{PopulationSize: tt.size, ElitismFraction: tt.fraction}
		if got := e.EliteCount(); got != tt.want {
			t.Errorf("EliteCount(size=%d, e=%v) = %d, want %d", tt.size, tt.fraction, got, tt.want)
		}
	}
}

func TestRangeDecode(t *testing.T) {
	r := Range{0.5, 2.0}
	if got := r.Decode(1); got != 0.5 {
		t.Errorf("Decode(1) = %v, want 0.5", got)
	}
	if got := r.Decode(2); got != 2.0 {
		t.Errorf("Decode(2) = %v, want 2", got)
	}
	if got := r.Decode(r.Encode(1.25)); math.Abs(got-1.25) > 1e-12 {
		t.Errorf("Decode(Encode(1.25)) = %v", got)
	}
	if got := r.Clamp(r.Decode(3)); got != 2.0 {
		t.Errorf("Clamp(Decode(3)) = %v, want 2", got)
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Terrain.Seed = 99
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Terrain.Seed != 99 {
		t.Errorf("seed = %d, want 99", loaded.Terrain.Seed)
	}
	if loaded.Policy.Oscillator != cfg.Policy.Oscillator {
		t.Errorf("oscillator ranges changed across write/load")
	}
}
