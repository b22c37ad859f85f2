// Package history records per-step body geometry on named timelines so a
// renderer can replay episodes frame by frame.
package history

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/strider/components"
)

var (
	// ErrUnknownTimeline is returned for a timeline id never created.
	ErrUnknownTimeline = errors.New("unknown timeline")
	// ErrFrameOutOfRange is returned for a frame index past the recording.
	ErrFrameOutOfRange = errors.New("frame out of range")
)

// Frame is one recorded step: world-space shapes and the tracked point.
type Frame struct {
	Shapes  []components.Shape `json:"shapes"`
	Tracker r2.Vec             `json:"tracker"`
}

// Timeline is the recording of one episode. A timeline is written by a
// single episode; reads may happen concurrently.
type Timeline struct {
	id     string
	mu     sync.RWMutex
	frames []Frame
}

// ID returns the timeline name.
func (t *Timeline) ID() string {
	return t.id
}

// RecordStep appends a frame. Shapes are copied.
func (t *Timeline) RecordStep(shapes []components.Shape, tracker r2.Vec) {
	frame := Frame{Shapes: make([]components.Shape, len(shapes)), Tracker: tracker}
	for i, s := range shapes {
		frame.Shapes[i] = s.Clone()
	}
	t.mu.Lock()
	t.frames = append(t.frames, frame)
	t.mu.Unlock()
}

// Len returns the number of recorded frames.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.frames)
}

// Frame returns frame i.
func (t *Timeline) Frame(i int) (Frame, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i < 0 || i >= len(t.frames) {
		return Frame{}, fmt.Errorf("%w: %s[%d] of %d", ErrFrameOutOfRange, t.id, i, len(t.frames))
	}
	return t.frames[i], nil
}

// History holds the static terrain and any number of timelines.
type History struct {
	mu        sync.RWMutex
	terrain   []components.Shape
	timelines map[string]*Timeline
	order     []string
}

// New returns an empty history.
func New() *History {
	return &History{timelines: make(map[string]*Timeline)}
}

// SetTerrain stores the ground geometry shared by all timelines.
func (h *History) SetTerrain(shapes []components.Shape) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.terrain = slices.Clone(shapes)
}

// Terrain returns the stored ground geometry.
func (h *History) Terrain() []components.Shape {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.terrain)
}

// NewTimeline creates an empty timeline, replacing any with the same id.
func (h *History) NewTimeline(id string) *Timeline {
	t := &Timeline{id: id}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.timelines[id]; !ok {
		h.order = append(h.order, id)
	}
	h.timelines[id] = t
	return t
}

// Timeline returns a timeline by id.
func (h *History) Timeline(id string) (*Timeline, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t, ok := h.timelines[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimeline, id)
	}
	return t, nil
}

// Timelines returns timeline ids in creation order.
func (h *History) Timelines() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.order)
}

// MaxRecordedLength returns the longest timeline's frame count, which is
// the replay length for a renderer showing all timelines together.
func (h *History) MaxRecordedLength() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, t := range h.timelines {
		n = max(n, t.Len())
	}
	return n
}

// Frame returns frame index of timeline id.
func (h *History) Frame(id string, index int) (Frame, error) {
	t, err := h.Timeline(id)
	if err != nil {
		return Frame{}, err
	}
	return t.Frame(index)
}
