package telemetry

import (
	"math"
	"testing"
	"time"

	"github.com/pthm-cable/strider/fitness"
)

func TestCollectorFlush(t *testing.T) {
	c := NewCollector(4)
	c.Record(NewEpisodeRecord(0, "b", 5, 5, 2, 0.1, 40, fitness.Fall))
	c.Record(NewEpisodeRecord(0, "a", 5, 5, 3, 0.1, 60, fitness.Timeout))
	c.Record(NewEpisodeRecord(0, "c", math.NaN(), 0, 0, 0, 1, fitness.Diverged))
	c.Record(NewEpisodeRecord(0, "d", 9, 9, 6, 0.2, 80, fitness.Success))

	if c.Pending() != 4 {
		t.Fatalf("Pending() = %d", c.Pending())
	}

	stats, records := c.Flush(0, 1500*time.Millisecond)
	wantOrder := []string{"d", "a", "b", "c"}
	for i, id := range wantOrder {
		if records[i].ID != id {
			t.Errorf("record %d = %s, want %s", i, records[i].ID, id)
		}
	}
	if stats.ElapsedMillis != 1500 || stats.Successes != 1 || stats.Diverged != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() after Flush = %d", c.Pending())
	}

	gens, episodes, steps := c.Totals()
	if gens != 1 || episodes != 4 || steps != 181 {
		t.Errorf("Totals() = %d, %d, %d", gens, episodes, steps)
	}
	if g, ok := c.FirstSuccess(); !ok || g != 0 {
		t.Errorf("FirstSuccess() = %d, %v", g, ok)
	}
}

func TestCollectorFirstSuccessUnset(t *testing.T) {
	c := NewCollector(1)
	c.Record(NewEpisodeRecord(0, "a", 1, 1, 1, 0, 10, fitness.Stuck))
	c.Flush(0, 0)
	if _, ok := c.FirstSuccess(); ok {
		t.Error("FirstSuccess reported without a success")
	}
	if rec := NewEpisodeRecord(2, "x", 0, 0, 0, 0, 0, fitness.FellOffStart); rec.Reason != "fell_off_start" {
		t.Errorf("reason = %q", rec.Reason)
	}
}
