package celltrack

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// MatchingAlgorithm is for algorithm type used by the continuation core of the solver
type MatchingAlgorithm string

const (
	// MatchingGreedy resolves unique mutual best matches until nothing changes
	MatchingGreedy MatchingAlgorithm = "greedy"
	// MatchingHungarian uses the Hungarian algorithm (Kuhn-Munkres) for optimal assignment over existing edges
	MatchingHungarian MatchingAlgorithm = "hungarian"
)

// GraphConfig holds candidate graph parameters.
type GraphConfig struct {
	// Minimal overlap fraction (relative to either side) for an edge to survive
	MinOverlapFraction float64 `toml:"min_overlap_fraction"`
	// Maximal centroid displacement in pixels for an edge to survive without overlap.
	// It also normalizes the distance term of the cost.
	MaxDisplacement float64 `toml:"max_displacement"`
	// Weight of (1 - IoU) in the edge cost
	OverlapWeight float64 `toml:"overlap_weight"`
	// Weight of normalized centroid distance in the edge cost
	DistanceWeight float64 `toml:"distance_weight"`
}

// SolverConfig holds event resolution parameters.
type SolverConfig struct {
	Matching MatchingAlgorithm `toml:"matching"`
	// Combined daughters overlap as fraction of mother area needed for division
	DivisionAreaShare float64 `toml:"division_area_share"`
	// Fraction of a daughter that must lie inside the mother
	DaughterMinInside float64 `toml:"daughter_min_inside"`
	// Maximal fraction of a daughter covered by any other previous instance
	DaughterExclusivity float64 `toml:"daughter_exclusivity"`
	// Smaller daughter area relative to the larger one
	MinDaughterAreaRatio float64 `toml:"min_daughter_area_ratio"`
	// Fraction of a previous instance that must lie inside a taken next instance to call it a merge
	MergeMinInside float64 `toml:"merge_min_inside"`
}

// ManagerConfig holds track manager parameters.
type ManagerConfig struct {
	// Use Kalman predicted centroids as anchors for the distance term
	MotionPrediction bool `toml:"motion_prediction"`
	// Number of transitions after a merge artifact during which a split of the
	// survivor is treated as the merge coming apart. Zero disables recovery.
	MergeRecoveryWindow int `toml:"merge_recovery_window"`
}

// RuntimeConfig holds execution parameters.
type RuntimeConfig struct {
	// Number of workers for per-frame extraction. Zero means GOMAXPROCS
	Workers int `toml:"workers"`
	// Index of the first frame of the sequence
	FirstFrame int `toml:"first_frame"`
}

// Config is the root tracking configuration.
type Config struct {
	Graph   GraphConfig   `toml:"graph"`
	Solver  SolverConfig  `toml:"solver"`
	Manager ManagerConfig `toml:"manager"`
	Runtime RuntimeConfig `toml:"runtime"`
}

// DefaultConfig returns configuration with documented defaults. These are
// method hyperparameters and usually need tuning per dataset.
func DefaultConfig() Config {
	return Config{
		Graph: GraphConfig{
			MinOverlapFraction: 0.1,
			MaxDisplacement:    15.0,
			OverlapWeight:      0.8,
			DistanceWeight:     0.2,
		},
		Solver: SolverConfig{
			Matching:             MatchingGreedy,
			DivisionAreaShare:    0.5,
			DaughterMinInside:    0.5,
			DaughterExclusivity:  0.2,
			MinDaughterAreaRatio: 0.25,
			MergeMinInside:       0.5,
		},
		Manager: ManagerConfig{
			MotionPrediction:    false,
			MergeRecoveryWindow: 3,
		},
		Runtime: RuntimeConfig{
			Workers:    0,
			FirstFrame: 0,
		},
	}
}

// LoadConfig reads TOML file on top of DefaultConfig. Keys omitted in the file keep defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	cleanPath := filepath.Clean(strings.TrimSpace(path))
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", cleanPath)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", cleanPath)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "config %s", cleanPath)
	}
	return cfg, nil
}

// EncodeTOML encodes configuration as TOML document
func (c Config) EncodeTOML() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "encode config")
	}
	return data, nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.Graph.validate(); err != nil {
		return err
	}
	if err := c.Solver.validate(); err != nil {
		return err
	}
	if c.Manager.MergeRecoveryWindow < 0 {
		return errors.New("manager.merge_recovery_window must be non-negative")
	}
	if c.Runtime.Workers < 0 {
		return errors.New("runtime.workers must be non-negative")
	}
	if c.Runtime.FirstFrame < 0 {
		return errors.New("runtime.first_frame must be non-negative")
	}
	return nil
}

func (c *GraphConfig) validate() error {
	if c.MinOverlapFraction < 0 || c.MinOverlapFraction > 1 {
		return errors.Errorf("graph.min_overlap_fraction must be between 0 and 1, got %f", c.MinOverlapFraction)
	}
	if c.MaxDisplacement < 0 {
		return errors.Errorf("graph.max_displacement must be non-negative, got %f", c.MaxDisplacement)
	}
	if c.OverlapWeight < 0 || c.DistanceWeight < 0 {
		return errors.New("graph weights must be non-negative")
	}
	if c.OverlapWeight+c.DistanceWeight == 0 {
		return errors.New("graph.overlap_weight and graph.distance_weight can not both be zero")
	}
	return nil
}

func (c *SolverConfig) validate() error {
	switch c.Matching {
	case MatchingGreedy, MatchingHungarian:
	default:
		return errors.Errorf("solver.matching: unsupported value %q", c.Matching)
	}
	fractions := []struct {
		name  string
		value float64
	}{
		{"solver.division_area_share", c.DivisionAreaShare},
		{"solver.daughter_min_inside", c.DaughterMinInside},
		{"solver.daughter_exclusivity", c.DaughterExclusivity},
		{"solver.min_daughter_area_ratio", c.MinDaughterAreaRatio},
		{"solver.merge_min_inside", c.MergeMinInside},
	}
	for _, f := range fractions {
		if f.value < 0 || f.value > 1 {
			return errors.Errorf("%s must be between 0 and 1, got %f", f.name, f.value)
		}
	}
	return nil
}
