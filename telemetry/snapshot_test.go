package telemetry

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/pthm-cable/strider/evolve"
	"github.com/pthm-cable/strider/genome"
)

func TestSnapshotSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	rng := rand.New(rand.NewSource(1))

	elite := evolve.NewChromosome(genome.New([]float64{1.2, 1.4, 1.6}), rng)
	elite.Fitness, elite.Evaluated = 42.5, true
	child := evolve.NewChromosome(genome.New([]float64{1.1, 1.9, 1.3}), rng)

	snapshot := &Snapshot{
		Version:      SnapshotVersion,
		RNGSeed:      42,
		PolicyKind:   "oscillator",
		GenomeLength: 3,
		Generation:   12,
		Chromosomes:  []evolve.Chromosome{elite, child},
		Bookmark: &Bookmark{
			Type:        BookmarkNewBest,
			Generation:  12,
			Description: "Test bookmark",
		},
	}

	path, err := SaveSnapshot(snapshot, tmpDir)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("Snapshot file not created at %s", path)
	}

	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}

	if loaded.RNGSeed != snapshot.RNGSeed || loaded.Generation != snapshot.Generation {
		t.Errorf("header mismatch: got %+v", loaded)
	}
	if loaded.PolicyKind != "oscillator" || loaded.GenomeLength != 3 {
		t.Errorf("layout mismatch: %s/%d", loaded.PolicyKind, loaded.GenomeLength)
	}
	if len(loaded.Chromosomes) != 2 {
		t.Fatalf("Chromosomes count mismatch: got %d, want 2", len(loaded.Chromosomes))
	}
	got := loaded.Chromosomes[0]
	if got.ID != elite.ID || !got.Genome.Equal(elite.Genome) || got.Fitness != 42.5 || !got.Evaluated {
		t.Errorf("elite mismatch: %+v", got)
	}
	if loaded.Chromosomes[1].Evaluated {
		t.Error("unevaluated chromosome loaded as evaluated")
	}
	if loaded.Bookmark == nil {
		t.Error("Bookmark not loaded")
	} else if loaded.Bookmark.Type != snapshot.Bookmark.Type {
		t.Errorf("Bookmark type mismatch: got %s, want %s", loaded.Bookmark.Type, snapshot.Bookmark.Type)
	}
}

func TestSnapshotFilename(t *testing.T) {
	tmpDir := t.TempDir()

	snapshot := &Snapshot{
		Version:    SnapshotVersion,
		Generation: 50,
		Bookmark: &Bookmark{
			Type:       BookmarkFallCollapse,
			Generation: 50,
		},
	}
	path, err := SaveSnapshot(snapshot, tmpDir)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	expected := filepath.Join(tmpDir, "snapshot_gen50_fall_collapse.json")
	if path != expected {
		t.Errorf("Path mismatch: got %s, want %s", path, expected)
	}

	path, err = SaveSnapshot(&Snapshot{Version: SnapshotVersion, Generation: 30}, tmpDir)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	expected = filepath.Join(tmpDir, "snapshot_gen30.json")
	if path != expected {
		t.Errorf("Path mismatch: got %s, want %s", path, expected)
	}
}

func TestLoadSnapshotVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.json")
	if err := os.WriteFile(path, []byte(`{"version": 99}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSnapshot(path); err == nil {
		t.Error("expected an error for an unknown snapshot version")
	}
}
