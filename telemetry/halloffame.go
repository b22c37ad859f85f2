package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/google/uuid"

	"github.com/pthm-cable/strider/evolve"
)

// HallEntry is one of the best chromosomes seen during a run.
type HallEntry struct {
	Chromosome evolve.Chromosome `json:"chromosome"`
	Generation int               `json:"generation"`
	Distance   float64           `json:"distance"`
	Reason     string            `json:"reason"`
}

// HallOfFame keeps the top chromosomes of a run across generations,
// sorted best first. Elites seen again in later generations are kept once.
type HallOfFame struct {
	entries []HallEntry
	maxSize int
	seen    map[uuid.UUID]bool
}

// NewHallOfFame creates a hall of fame holding at most maxSize entries.
func NewHallOfFame(maxSize int) *HallOfFame {
	if maxSize < 1 {
		maxSize = 1
	}
	return &HallOfFame{
		entries: make([]HallEntry, 0, maxSize),
		maxSize: maxSize,
		seen:    make(map[uuid.UUID]bool),
	}
}

// Consider offers an evaluated chromosome to the hall.
// Returns true if it was added.
func (hof *HallOfFame) Consider(c evolve.Chromosome, generation int, distance float64, reason string) bool {
	if !c.Evaluated || math.IsNaN(c.Fitness) || hof.seen[c.ID] {
		return false
	}
	var added bool
	hof.entries, added = hof.insertEntry(hof.entries, HallEntry{
		Chromosome: c,
		Generation: generation,
		Distance:   distance,
		Reason:     reason,
	})
	if added {
		hof.seen[c.ID] = true
	}
	return added
}

// ConsiderReport offers a whole generation, matching chromosomes to their
// episode records by ID.
func (hof *HallOfFame) ConsiderReport(generation int, cs []evolve.Chromosome, records []EpisodeRecord) int {
	byID := make(map[string]EpisodeRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}
	added := 0
	for _, c := range cs {
		r := byID[c.ID.String()]
		if hof.Consider(c, generation, r.Distance, r.Reason) {
			added++
		}
	}
	return added
}

// insertEntry adds an entry, maintaining sorted order by fitness.
// If the hall is full, the lowest-fitness entry is removed.
func (hof *HallOfFame) insertEntry(hall []HallEntry, entry HallEntry) ([]HallEntry, bool) {
	// Find insertion point (sorted descending by fitness)
	idx := sort.Search(len(hall), func(i int) bool {
		return hall[i].Chromosome.Fitness < entry.Chromosome.Fitness
	})

	// If hall is full and entry would be last (lowest), skip it
	if len(hall) >= hof.maxSize && idx >= hof.maxSize {
		return hall, false
	}

	hall = append(hall, HallEntry{})
	copy(hall[idx+1:], hall[idx:])
	hall[idx] = entry

	if len(hall) > hof.maxSize {
		delete(hof.seen, hall[hof.maxSize].Chromosome.ID)
		hall = hall[:hof.maxSize]
	}
	return hall, true
}

// Len returns the number of entries.
func (hof *HallOfFame) Len() int {
	return len(hof.entries)
}

// Entries returns a copy of the entries, best first.
func (hof *HallOfFame) Entries() []HallEntry {
	out := make([]HallEntry, len(hof.entries))
	copy(out, hof.entries)
	return out
}

// Chromosomes returns the entries' chromosomes, best first.
func (hof *HallOfFame) Chromosomes() []evolve.Chromosome {
	out := make([]evolve.Chromosome, len(hof.entries))
	for i, e := range hof.entries {
		out[i] = e.Chromosome
	}
	return out
}

// TopFitness returns the highest fitness in the hall, 0 when empty.
func (hof *HallOfFame) TopFitness() float64 {
	if len(hof.entries) == 0 {
		return 0
	}
	return hof.entries[0].Chromosome.Fitness
}

type hallOfFameJSON struct {
	MaxSize int         `json:"max_size"`
	Entries []HallEntry `json:"entries"`
}

// MarshalJSON serializes the hall of fame to indented JSON.
func (hof *HallOfFame) MarshalJSON() ([]byte, error) {
	return json.MarshalIndent(hallOfFameJSON{MaxSize: hof.maxSize, Entries: hof.entries}, "", "  ")
}

// LoadHallOfFameFromFile reads a hall of fame JSON file. Entries are
// re-inserted so the result is sorted and bounded even if the file was
// edited by hand.
func LoadHallOfFameFromFile(path string) (*HallOfFame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hall of fame: %w", err)
	}

	var raw hallOfFameJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing hall of fame JSON: %w", err)
	}

	size := max(raw.MaxSize, len(raw.Entries))
	hof := NewHallOfFame(size)
	for _, e := range raw.Entries {
		if hof.seen[e.Chromosome.ID] {
			continue
		}
		var added bool
		hof.entries, added = hof.insertEntry(hof.entries, e)
		if added {
			hof.seen[e.Chromosome.ID] = true
		}
	}
	return hof, nil
}
