package telemetry

import (
	"fmt"
	"log/slog"
	"math"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkNewBest      BookmarkType = "new_best"
	BookmarkFirstSuccess BookmarkType = "first_success"
	BookmarkStagnation   BookmarkType = "stagnation"
	BookmarkFallCollapse BookmarkType = "fall_collapse"
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `csv:"type" json:"type"`
	Generation  int          `csv:"generation" json:"generation"`
	Description string       `csv:"description" json:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"generation", b.Generation,
		"description", b.Description,
	)
}

// BookmarkDetector detects interesting moments in a run.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []GenerationStats
	historySize int
	historyIdx  int
	historyFull bool

	// State tracking
	bestFitness   float64
	haveBest      bool
	sinceImproved int // generations since bestFitness last rose
	sawSuccess    bool
}

// NewBookmarkDetector creates a detector with the given history size.
// The history size is also the stagnation window.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 3 {
		historySize = 3
	}
	return &BookmarkDetector{
		history:     make([]GenerationStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats GenerationStats) []Bookmark {
	var bookmarks []Bookmark

	if b := bd.checkNewBest(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkFirstSuccess(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkStagnation(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkFallCollapse(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}

	bd.addToHistory(stats)
	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats GenerationStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []GenerationStats {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

// checkNewBest fires when the all-time best rises by more than 10% of its
// magnitude, or by 1 when it is near zero. The first generation only
// establishes the baseline.
func (bd *BookmarkDetector) checkNewBest(stats GenerationStats) *Bookmark {
	if math.IsNaN(stats.BestFitness) {
		bd.sinceImproved++
		return nil
	}
	if !bd.haveBest {
		bd.bestFitness, bd.haveBest = stats.BestFitness, true
		return nil
	}
	if stats.BestFitness <= bd.bestFitness {
		bd.sinceImproved++
		return nil
	}

	old := bd.bestFitness
	bd.bestFitness = stats.BestFitness
	bd.sinceImproved = 0

	margin := max(1, 0.1*math.Abs(old))
	if stats.BestFitness-old < margin {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkNewBest,
		Generation:  stats.Generation,
		Description: fmt.Sprintf("Best fitness rose from %.2f to %.2f (%s)", old, stats.BestFitness, stats.BestID),
	}
}

func (bd *BookmarkDetector) checkFirstSuccess(stats GenerationStats) *Bookmark {
	if bd.sawSuccess || stats.Successes == 0 {
		return nil
	}
	bd.sawSuccess = true
	return &Bookmark{
		Type:        BookmarkFirstSuccess,
		Generation:  stats.Generation,
		Description: fmt.Sprintf("%d of %d walkers reached the end of the track", stats.Successes, stats.Individuals),
	}
}

// checkStagnation fires once each time the best has not improved for a
// full history window.
func (bd *BookmarkDetector) checkStagnation(stats GenerationStats) *Bookmark {
	if bd.sinceImproved == 0 || bd.sinceImproved%bd.historySize != 0 {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkStagnation,
		Generation:  stats.Generation,
		Description: fmt.Sprintf("Best fitness %.2f unchanged for %d generations", bd.bestFitness, bd.sinceImproved),
	}
}

// checkFallCollapse fires when the fall rate doubles over its rolling
// average and at least half the population falls.
func (bd *BookmarkDetector) checkFallCollapse(stats GenerationStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}

	var total float64
	for _, h := range history {
		total += h.FallRate()
	}
	avg := total / float64(len(history))

	rate := stats.FallRate()
	if rate >= 0.5 && rate > avg*2.0 {
		return &Bookmark{
			Type:        BookmarkFallCollapse,
			Generation:  stats.Generation,
			Description: fmt.Sprintf("Fall rate %.2f is %.1fx average (%.2f)", rate, rate/math.Max(avg, 1e-9), avg),
		}
	}
	return nil
}
