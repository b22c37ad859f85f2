// Package terrain generates static ground profiles for the walker to cross.
package terrain

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/ojrac/opensimplex-go"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/strider/components"
	"github.com/pthm-cable/strider/config"
)

// ErrNotGenerated is returned when terrain data is requested before Generate.
var ErrNotGenerated = errors.New("terrain not generated")

// Segment is one straight piece of ground.
type Segment struct {
	Start    r2.Vec
	End      r2.Vec
	Angle    float64 // radians from horizontal
	Friction float64
}

// Terrain is an ordered, contiguous ground profile spanning [0, length]
// horizontally. It is immutable once generated and safe to share read-only.
type Terrain struct {
	cfg       config.TerrainConfig
	segments  []Segment
	generated bool
}

// New validates cfg and returns an ungenerated terrain.
func New(cfg config.TerrainConfig) (*Terrain, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Terrain{cfg: cfg}, nil
}

// Generate is New followed by Generate.
func Generate(cfg config.TerrainConfig) (*Terrain, error) {
	t, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := t.Generate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Generate builds the segment list. Generation is deterministic in the
// configuration, so calling it again yields the same segments.
func (t *Terrain) Generate() error {
	var segs []Segment
	switch t.cfg.Style {
	case config.StyleHeightfield:
		segs = t.heightfield()
	default:
		switch {
		case t.cfg.Roughness == 0:
			segs = t.flat()
		case t.cfg.Roughness == 1:
			segs = t.slopes()
		default:
			segs = t.rough(t.cfg.Roughness - 1)
		}
	}
	if len(segs) == 0 {
		return fmt.Errorf("%w: terrain produced no segments", config.ErrInvalidConfiguration)
	}
	t.segments = segs
	t.generated = true
	return nil
}

// Generated reports whether Generate has completed.
func (t *Terrain) Generated() bool {
	return t.generated
}

// Config returns the configuration the terrain was built from.
func (t *Terrain) Config() config.TerrainConfig {
	return t.cfg
}

// Length returns the horizontal extent of the track.
func (t *Terrain) Length() float64 {
	return t.cfg.Length
}

// Segments returns a copy of the segment list.
func (t *Terrain) Segments() []Segment {
	out := make([]Segment, len(t.segments))
	copy(out, t.segments)
	return out
}

// SpawnPosition returns the point the walker's feet are placed on.
func (t *Terrain) SpawnPosition() (r2.Vec, error) {
	if !t.generated {
		return r2.Vec{}, ErrNotGenerated
	}
	x := t.cfg.SpawnX
	return r2.Vec{X: x, Y: t.HeightAt(x) + t.cfg.SpawnClearance}, nil
}

// HeightAt returns the ground height at x. Points outside the track take the
// height of the nearest end.
func (t *Terrain) HeightAt(x float64) float64 {
	if len(t.segments) == 0 {
		return t.cfg.BaseHeight
	}
	i := sort.Search(len(t.segments), func(i int) bool { return t.segments[i].End.X >= x })
	if i == len(t.segments) {
		return t.segments[len(t.segments)-1].End.Y
	}
	s := t.segments[i]
	if x <= s.Start.X {
		return s.Start.Y
	}
	f := (x - s.Start.X) / (s.End.X - s.Start.X)
	return s.Start.Y + f*(s.End.Y-s.Start.Y)
}

// Shapes returns the ground as world-space edge shapes.
func (t *Terrain) Shapes() []components.Shape {
	out := make([]components.Shape, len(t.segments))
	for i, s := range t.segments {
		out[i] = components.Edge(s.Start, s.End)
	}
	return out
}

// Friction returns the ground friction coefficient.
func (t *Terrain) Friction() float64 {
	return t.cfg.Friction
}

func (t *Terrain) flat() []Segment {
	y := t.cfg.BaseHeight
	return []Segment{{
		Start:    r2.Vec{X: 0, Y: y},
		End:      r2.Vec{X: t.cfg.Length, Y: y},
		Friction: t.cfg.Friction,
	}}
}

// slopes alternates up and down slopes of the configured angle so the
// profile stays within one segment's rise of the base height.
func (t *Terrain) slopes() []Segment {
	angle := t.cfg.SlopeAngle
	return t.walk(t.cfg.SlopeSegmentLength, func(i int) float64 {
		if i%2 == 0 {
			return angle
		}
		return -angle
	})
}

// rough draws each segment angle uniformly from ±0.1 rad scaled by roughness.
func (t *Terrain) rough(roughness float64) []Segment {
	rng := rand.New(rand.NewSource(t.cfg.Seed))
	return t.walk(t.cfg.SegmentLength, func(int) float64 {
		return (rng.Float64()*0.2 - 0.1) * roughness
	})
}

// walk lays segments of horizontal extent step from x=0, shortening the last
// one to end exactly at the track length.
func (t *Terrain) walk(step float64, angleFor func(i int) float64) []Segment {
	length := t.cfg.Length
	n := int(math.Ceil(length / step))
	segs := make([]Segment, 0, n)
	pos := r2.Vec{X: 0, Y: t.cfg.BaseHeight}
	for i := 0; i < n; i++ {
		angle := angleFor(i)
		dx := math.Min(step, length-pos.X)
		if dx <= 0 {
			break
		}
		end := r2.Vec{X: pos.X + dx, Y: pos.Y + dx*math.Tan(angle)}
		if i == n-1 {
			end.X = length
		}
		segs = append(segs, Segment{Start: pos, End: end, Angle: angle, Friction: t.cfg.Friction})
		pos = end
	}
	return segs
}

// heightfield samples simplex noise at fixed spacing after a flat run-up.
func (t *Terrain) heightfield() []Segment {
	noise := opensimplex.New(t.cfg.Seed)
	base := t.cfg.BaseHeight
	amp := t.cfg.Roughness * t.cfg.NoiseAmplitude
	scale := t.cfg.NoiseScale
	origin := noise.Eval2(t.cfg.FlatStart*scale, 0)

	height := func(x float64) float64 {
		if x <= t.cfg.FlatStart {
			return base
		}
		return base + amp*(noise.Eval2(x*scale, 0)-origin)
	}

	step := t.cfg.HeightfieldStep
	length := t.cfg.Length
	n := int(math.Ceil(length / step))
	segs := make([]Segment, 0, n)
	prev := r2.Vec{X: 0, Y: height(0)}
	for i := 1; i <= n; i++ {
		x := math.Min(float64(i)*step, length)
		if i == n {
			x = length
		}
		if x <= prev.X {
			break
		}
		p := r2.Vec{X: x, Y: height(x)}
		segs = append(segs, Segment{
			Start:    prev,
			End:      p,
			Angle:    math.Atan2(p.Y-prev.Y, p.X-prev.X),
			Friction: t.cfg.Friction,
		})
		prev = p
	}
	return segs
}
