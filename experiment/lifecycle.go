package experiment

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/google/uuid"

	"github.com/pthm-cable/strider/evolve"
	"github.com/pthm-cable/strider/telemetry"
)

// initPopulation builds the first population: restored from a snapshot,
// seeded from a hall of fame, or drawn at random.
func (e *Experiment) initPopulation(opts Options) error {
	switch {
	case opts.ResumePath != "":
		return e.resume(opts.ResumePath)
	case opts.SeedFromPath != "":
		e.rng = rand.New(rand.NewSource(e.seed))
		return e.seedFromHall(opts.SeedFromPath)
	}

	e.rng = rand.New(rand.NewSource(e.seed))
	pop, err := evolve.NewPopulation(e.cfg.Evolution, e.layout, e.rng)
	if err != nil {
		return err
	}
	e.pop = pop
	return nil
}

// resume restores a snapshot. The evolution RNG is reseeded from the
// snapshot seed and generation, so a resumed run is reproducible but does
// not replay the draws of the original run.
func (e *Experiment) resume(path string) error {
	snap, err := telemetry.LoadSnapshot(path)
	if err != nil {
		return err
	}
	if snap.PolicyKind != e.layout.PolicyKind() || snap.GenomeLength != e.layout.Len() {
		return fmt.Errorf("snapshot %s is for %s/%d genes, configuration is %s/%d genes",
			path, snap.PolicyKind, snap.GenomeLength, e.layout.PolicyKind(), e.layout.Len())
	}

	e.seed = snap.RNGSeed
	e.rng = rand.New(rand.NewSource(snap.RNGSeed + int64(snap.Generation)))
	pop, err := evolve.FromChromosomes(e.cfg.Evolution, e.rng, snap.Chromosomes)
	if err != nil {
		return fmt.Errorf("restoring snapshot %s: %w", path, err)
	}
	pop.SetGeneration(snap.Generation)
	e.pop = pop

	slog.Info("resumed from snapshot", "path", path, "generation", snap.Generation)
	return nil
}

// seedFromHall starts from the hall's chromosomes, best first, filling
// the rest of the population at random. Seeds are re-evaluated on this
// run's terrain.
func (e *Experiment) seedFromHall(path string) error {
	hof, err := telemetry.LoadHallOfFameFromFile(path)
	if err != nil {
		return err
	}

	size := e.cfg.Evolution.PopulationSize
	cs := make([]evolve.Chromosome, 0, size)
	skipped := 0
	for _, c := range hof.Chromosomes() {
		if len(cs) == size {
			break
		}
		if err := e.layout.Check(c.Genome); err != nil {
			skipped++
			continue
		}
		c.Fitness, c.Evaluated = 0, false
		cs = append(cs, c)
	}
	seeded := len(cs)
	taken := make(map[uuid.UUID]bool, size)
	for _, c := range cs {
		taken[c.ID] = true
	}
	// The hall may come from a run with the same seed, whose draws would
	// repeat its IDs.
	for len(cs) < size {
		c := evolve.NewChromosome(e.layout.Random(e.rng), e.rng)
		if taken[c.ID] {
			continue
		}
		taken[c.ID] = true
		cs = append(cs, c)
	}

	pop, err := evolve.FromChromosomes(e.cfg.Evolution, e.rng, cs)
	if err != nil {
		return err
	}
	e.pop = pop

	if seeded == 0 {
		slog.Warn("hall_of_fame_empty_fallback",
			"path", path,
			"skipped", skipped,
			"message", "no usable chromosomes, starting from random genomes",
		)
		return nil
	}
	slog.Info("seeded from hall of fame", "path", path, "seeded", seeded, "skipped", skipped)
	return nil
}
