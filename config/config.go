// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalidConfiguration is returned when a configuration value is outside
// its legal range. Validation fails fast; values are never silently clamped.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Config holds all simulation configuration parameters.
type Config struct {
	Terrain   TerrainConfig   `yaml:"terrain"`
	Physics   PhysicsConfig   `yaml:"physics"`
	Body      BodyConfig      `yaml:"body"`
	Policy    PolicyConfig    `yaml:"policy"`
	Genome    GenomeConfig    `yaml:"genome"`
	Fitness   FitnessConfig   `yaml:"fitness"`
	Evolution EvolutionConfig `yaml:"evolution"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// Terrain styles.
const (
	StyleSegments    = "segments"
	StyleHeightfield = "heightfield"
)

// TerrainConfig holds ground generation parameters.
type TerrainConfig struct {
	Length             float64 `yaml:"length"`               // Horizontal extent of the track
	Roughness          float64 `yaml:"roughness"`            // 0 flat, 1 slopes, >1 random walk of angles
	Seed               int64   `yaml:"seed"`                 // RNG seed for rough/heightfield generation
	Style              string  `yaml:"style"`                // segments | heightfield
	BaseHeight         float64 `yaml:"base_height"`          // Ground height at x=0
	SegmentLength      float64 `yaml:"segment_length"`       // Horizontal extent of rough segments
	SlopeSegmentLength float64 `yaml:"slope_segment_length"` // Horizontal extent of slope segments
	SlopeAngle         float64 `yaml:"slope_angle"`          // Angle of roughness=1 slopes (radians)
	Friction           float64 `yaml:"friction"`
	SpawnX             float64 `yaml:"spawn_x"`
	SpawnClearance     float64 `yaml:"spawn_clearance"` // Gap between feet and ground at spawn
	HeightfieldStep    float64 `yaml:"heightfield_step"`
	FlatStart          float64 `yaml:"flat_start"` // Flat run-up before heightfield noise starts
	NoiseScale         float64 `yaml:"noise_scale"`
	NoiseAmplitude     float64 `yaml:"noise_amplitude"`
}

// PhysicsConfig holds rigid-body stepping parameters.
type PhysicsConfig struct {
	DT                 float64 `yaml:"dt"`
	VelocityIterations int     `yaml:"velocity_iterations"`
	PositionIterations int     `yaml:"position_iterations"`
	MaxSteps           int     `yaml:"max_steps"`
	Gravity            float64 `yaml:"gravity"`
}

// JointLimits is a lower/upper angle pair in radians.
type JointLimits [2]float64

// Lower returns the lower angle limit.
func (l JointLimits) Lower() float64 { return l[0] }

// Upper returns the upper angle limit.
func (l JointLimits) Upper() float64 { return l[1] }

// BodyConfig holds biped morphology and motor parameters.
type BodyConfig struct {
	ThighLength float64 `yaml:"thigh_length"` // Used when morphology is not evolved
	ThighWidth  float64 `yaml:"thigh_width"`
	ShinLength  float64 `yaml:"shin_length"`
	ShinWidth   float64 `yaml:"shin_width"`

	// Gene -> morphology multipliers (gene 1.5 gives the nominal morphology)
	GeneScale GeneScaleConfig `yaml:"gene_scale"`

	MinLength float64 `yaml:"min_length"`
	MaxLength float64 `yaml:"max_length"`
	MinWidth  float64 `yaml:"min_width"`
	MaxWidth  float64 `yaml:"max_width"`

	HullScale    float64 `yaml:"hull_scale"` // Hull outline is specified in pixels and scaled by this
	HullDensity  float64 `yaml:"hull_density"`
	LegDensity   float64 `yaml:"leg_density"`
	HullFriction float64 `yaml:"hull_friction"`
	LegFriction  float64 `yaml:"leg_friction"`
	LegDown      float64 `yaml:"leg_down"` // Hip anchor offset below hull center

	HipLimits   JointLimits `yaml:"hip_limits"`
	KneeLimits  JointLimits `yaml:"knee_limits"`
	KneeRest    float64     `yaml:"knee_rest"` // Knee angle at spawn
	MotorTorque float64     `yaml:"motor_torque"`
	HipSpeed    float64     `yaml:"hip_speed"`
	KneeSpeed   float64     `yaml:"knee_speed"`

	Head       bool    `yaml:"head"`
	HeadRadius float64 `yaml:"head_radius"`
}

// GeneScaleConfig maps morphology genes to lengths.
type GeneScaleConfig struct {
	ThighLength float64 `yaml:"thigh_length"`
	ThighWidth  float64 `yaml:"thigh_width"`
	ShinLength  float64 `yaml:"shin_length"`
	ShinWidth   float64 `yaml:"shin_width"`
}

// Policy kinds.
const (
	PolicyStateMachine = "state_machine"
	PolicyOscillator   = "oscillator"
	PolicyLinear       = "linear"
)

// PolicyConfig selects and parameterizes the gait controller.
type PolicyConfig struct {
	Kind         string             `yaml:"kind"`
	StateMachine StateMachineConfig `yaml:"state_machine"`
	Oscillator   OscillatorConfig   `yaml:"oscillator"`
	Linear       LinearConfig       `yaml:"linear"`
}

// StateMachineConfig holds the fixed gains of the hand-written gait.
type StateMachineConfig struct {
	HipKp             float64 `yaml:"hip_kp"`
	HipKd             float64 `yaml:"hip_kd"`
	KneeKp            float64 `yaml:"knee_kp"`
	KneeKd            float64 `yaml:"knee_kd"`
	BalanceAngle      float64 `yaml:"balance_angle"`
	BalanceRate       float64 `yaml:"balance_rate"`
	VerticalDamping   float64 `yaml:"vertical_damping"`
	TargetSpeed       float64 `yaml:"target_speed"`
	SupportKneeAngle  float64 `yaml:"support_knee_angle"`
	HipTrailThreshold float64 `yaml:"hip_trail_threshold"`
	KneePushThreshold float64 `yaml:"knee_push_threshold"`
}

// Range maps a gene in [1, 2] onto [Range[0], Range[1]].
type Range [2]float64

// Decode maps a positively encoded gene onto the range, extrapolating
// linearly outside [1, 2].
func (r Range) Decode(gene float64) float64 {
	return r[0] + (gene-1)*(r[1]-r[0])
}

// Encode is the inverse of Decode.
func (r Range) Encode(v float64) float64 {
	if r[1] == r[0] {
		return 1
	}
	return 1 + (v-r[0])/(r[1]-r[0])
}

// Clamp limits v to the range.
func (r Range) Clamp(v float64) float64 {
	lo, hi := math.Min(r[0], r[1]), math.Max(r[0], r[1])
	return math.Max(lo, math.Min(hi, v))
}

// OscillatorConfig holds the decode ranges of the oscillator policy genes.
type OscillatorConfig struct {
	Frequency     Range   `yaml:"frequency"`
	HipAmplitude  Range   `yaml:"hip_amplitude"`
	HipOffset     Range   `yaml:"hip_offset"`
	KneeAmplitude Range   `yaml:"knee_amplitude"`
	KneeOffset    Range   `yaml:"knee_offset"`
	KneePhase     Range   `yaml:"knee_phase"`
	HipKp         Range   `yaml:"hip_kp"`
	KneeKp        Range   `yaml:"knee_kp"`
	Balance       Range   `yaml:"balance"`
	Damping       float64 `yaml:"damping"` // Fixed rate damping for both joints
}

// LinearConfig holds the linear policy parameters.
type LinearConfig struct {
	WeightScale float64 `yaml:"weight_scale"` // Gene range [1,2] maps to [-scale, scale]
}

// GenomeConfig controls the gene layout and initialization.
type GenomeConfig struct {
	EvolveMorphology bool    `yaml:"evolve_morphology"`
	InitMin          float64 `yaml:"init_min"`
	InitMax          float64 `yaml:"init_max"`
}

// Fitness metrics.
const (
	MetricReward   = "reward"
	MetricDistance = "distance"
)

// FitnessConfig holds reward shaping and termination parameters.
type FitnessConfig struct {
	ProgressScale     float64 `yaml:"progress_scale"`
	TiltPenalty       float64 `yaml:"tilt_penalty"`
	EffortCoefficient float64 `yaml:"effort_coefficient"`
	FallPenalty       float64 `yaml:"fall_penalty"`
	StuckPenalty      float64 `yaml:"stuck_penalty"`
	SuccessMargin     float64 `yaml:"success_margin"`
	MinMove           float64 `yaml:"min_move"`
	StuckDuration     float64 `yaml:"stuck_duration"` // Seconds
	Metric            string  `yaml:"metric"`         // reward | distance
}

// EvolutionConfig holds genetic algorithm parameters.
type EvolutionConfig struct {
	PopulationSize  int     `yaml:"population_size"`
	ElitismFraction float64 `yaml:"elitism_fraction"`
	CrossoverRate   float64 `yaml:"crossover_rate"`
	MutationRate    float64 `yaml:"mutation_rate"`
	TournamentSize  int     `yaml:"tournament_size"`
	Generations     int     `yaml:"generations"`
	Seed            int64   `yaml:"seed"`
	Workers         int     `yaml:"workers"` // 0 = GOMAXPROCS
}

// TelemetryConfig holds output parameters.
type TelemetryConfig struct {
	HallOfFameSize  int  `yaml:"hall_of_fame_size"`
	RecordHistory   bool `yaml:"record_history"` // Keep per-step shape timelines for the renderer
	Plot            bool `yaml:"plot"`
	BookmarkHistory int  `yaml:"bookmark_history"` // Generations of rolling history; also the stagnation window
	PerfWindow      int  `yaml:"perf_window"`      // Generations averaged in perf stats
	SnapshotEvery   int  `yaml:"snapshot_every"`   // 0 = only on bookmarks
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	FPS        float64 // 1 / Physics.DT
	StuckSteps int     // Fitness.StuckDuration in steps
	EliteCount int     // round(elitism * size), never above size
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns the embedded defaults. Panics if the embedded file is broken.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()

	return cfg, nil
}

// Parse builds a configuration from YAML bytes layered over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()
	return cfg, nil
}

// Refresh recomputes derived values after fields were changed in code.
// It validates first and leaves the derived values untouched on error.
func (c *Config) Refresh() error {
	if err := c.Validate(); err != nil {
		return err
	}
	c.computeDerived()
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

func unitInterval(v float64) bool {
	return v >= 0 && v <= 1
}

// Validate checks every section and returns the first violation.
func (c *Config) Validate() error {
	if err := c.Terrain.Validate(); err != nil {
		return err
	}
	if err := c.Physics.Validate(); err != nil {
		return err
	}
	if err := c.Evolution.Validate(); err != nil {
		return err
	}

	b := c.Body
	if b.MinLength <= 0 || b.MaxLength < b.MinLength {
		return invalid("body length bounds [%v, %v]", b.MinLength, b.MaxLength)
	}
	if b.MinWidth <= 0 || b.MaxWidth < b.MinWidth {
		return invalid("body width bounds [%v, %v]", b.MinWidth, b.MaxWidth)
	}
	if b.HipLimits.Lower() > b.HipLimits.Upper() || b.KneeLimits.Lower() > b.KneeLimits.Upper() {
		return invalid("joint limits must be ordered lower <= upper")
	}
	if b.MotorTorque <= 0 || b.HipSpeed <= 0 || b.KneeSpeed <= 0 {
		return invalid("motor torque and speeds must be positive")
	}

	switch c.Policy.Kind {
	case PolicyStateMachine, PolicyOscillator, PolicyLinear:
	default:
		return invalid("unknown policy kind %q", c.Policy.Kind)
	}
	if c.Genome.InitMin <= 0 || c.Genome.InitMax < c.Genome.InitMin {
		return invalid("genome init range [%v, %v] must be positive and ordered", c.Genome.InitMin, c.Genome.InitMax)
	}

	switch c.Fitness.Metric {
	case MetricReward, MetricDistance:
	default:
		return invalid("unknown fitness metric %q", c.Fitness.Metric)
	}
	if c.Fitness.StuckDuration <= 0 {
		return invalid("fitness.stuck_duration must be positive")
	}

	tl := c.Telemetry
	if tl.HallOfFameSize < 1 {
		return invalid("telemetry.hall_of_fame_size must be at least 1, got %d", tl.HallOfFameSize)
	}
	if tl.BookmarkHistory < 0 || tl.PerfWindow < 0 || tl.SnapshotEvery < 0 {
		return invalid("telemetry windows must be non-negative")
	}
	return nil
}

// Validate checks the terrain section.
func (t TerrainConfig) Validate() error {
	if !(t.Length > 0) {
		return invalid("terrain.length must be positive, got %v", t.Length)
	}
	if t.Roughness < 0 {
		return invalid("terrain.roughness must be non-negative, got %v", t.Roughness)
	}
	if t.SpawnX <= 0 || t.SpawnX >= t.Length {
		return invalid("terrain.spawn_x %v outside (0, %v)", t.SpawnX, t.Length)
	}
	switch t.Style {
	case StyleSegments:
		if t.SegmentLength <= 0 || t.SlopeSegmentLength <= 0 {
			return invalid("terrain segment lengths must be positive")
		}
	case StyleHeightfield:
		if t.HeightfieldStep <= 0 {
			return invalid("terrain.heightfield_step must be positive")
		}
	default:
		return invalid("unknown terrain style %q", t.Style)
	}
	return nil
}

// Validate checks the physics section.
func (p PhysicsConfig) Validate() error {
	if !(p.DT > 0) {
		return invalid("physics.dt must be positive, got %v", p.DT)
	}
	if p.VelocityIterations < 1 || p.PositionIterations < 0 {
		return invalid("physics iterations velocity=%d position=%d", p.VelocityIterations, p.PositionIterations)
	}
	if p.MaxSteps < 1 {
		return invalid("physics.max_steps must be at least 1, got %d", p.MaxSteps)
	}
	return nil
}

// Validate checks the evolution section.
func (e EvolutionConfig) Validate() error {
	if e.PopulationSize < 1 {
		return invalid("evolution.population_size must be at least 1, got %d", e.PopulationSize)
	}
	if !unitInterval(e.ElitismFraction) {
		return invalid("evolution.elitism_fraction %v outside [0,1]", e.ElitismFraction)
	}
	if !unitInterval(e.CrossoverRate) {
		return invalid("evolution.crossover_rate %v outside [0,1]", e.CrossoverRate)
	}
	if !unitInterval(e.MutationRate) {
		return invalid("evolution.mutation_rate %v outside [0,1]", e.MutationRate)
	}
	if e.TournamentSize < 0 {
		return invalid("evolution.tournament_size must be non-negative, got %d", e.TournamentSize)
	}
	if e.Workers < 0 {
		return invalid("evolution.workers must be non-negative, got %d", e.Workers)
	}
	return nil
}

// EliteCount returns round(elitism * size), never exceeding size.
func (e EvolutionConfig) EliteCount() int {
	n := int(math.Round(e.ElitismFraction * float64(e.PopulationSize)))
	return min(n, e.PopulationSize)
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.FPS = 1 / c.Physics.DT
	c.Derived.StuckSteps = max(1, int(math.Round(c.Fitness.StuckDuration/c.Physics.DT)))
	c.Derived.EliteCount = c.Evolution.EliteCount()
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
