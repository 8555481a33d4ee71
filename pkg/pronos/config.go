package pronos

import "fmt"

// Config contains all configurable parameters that influence feature
// computation, training and prediction outcomes.
// This centralizes all magic numbers and constants for easy adjustment.
// Instances are passed explicitly into the store, the feature engine and
// the pipelines, there is no process wide configuration.
type Config struct {
	// Storage
	DbPath    string // location of the sqlite database
	ModelPath string // location of the serialized model bundle
	CachePath string // directory for cached downloads used by sync

	// === FEATURE ENGINE PARAMETERS ===

	// Form calculation
	FormWindow   int  // matches considered for form (default: 5)
	WeightedForm bool // exponential recency weighting (default: true)

	// Head to head
	H2HWindow int // direct meetings considered, 0 means all (default: 0)

	// Fatigue calculation
	FatigueWindowDays  int     // trailing window in days (default: 30)
	FatigueMatchWeight float64 // weight of overall match count (default: 0.7)
	FatigueAwayWeight  float64 // weight of away match count (default: 0.3)
	FatigueMatchScale  float64 // match count that saturates the term (default: 10)
	FatigueAwayScale   float64 // away count that saturates the term (default: 5)

	// Congestion
	CongestionWindowDays int // continental match lookback in days (default: 7)

	// Weather normalization divisors
	TempNorm float64 // default: 30.0
	RainNorm float64 // default: 100.0
	WindNorm float64 // default: 50.0

	// === TRAINING PARAMETERS ===

	NumTrees     int     // boosting rounds per regressor (default: 150)
	LearningRate float64 // shrinkage (default: 0.05)
	MaxDepth     int     // tree depth (default: 4)
	Subsample    float64 // row subsampling fraction (default: 0.8)
	Seed         int64   // RNG seed for reproducible training (default: 42)

	TestFraction float64 // holdout fraction for the chronological split (default: 0.2)
	CVFolds      int     // cross validation folds (default: 5)

	// === PREDICTION PARAMETERS ===

	MinGoalsFloor float64 // clamp floor for predicted goals (default: 0.0)
	MaxGoalsCap   float64 // clamp cap for predicted goals (default: 5.0)
	DrawShare     float64 // fixed draw probability percentage (default: 25.0)
}

// DefaultConfig returns the default configuration with all standard values
func DefaultConfig() *Config {
	return &Config{
		DbPath:    ".pronos/pronos.db",
		ModelPath: ".pronos/model.json",
		CachePath: ".pronos/cache/",

		FormWindow:   5,
		WeightedForm: true,
		H2HWindow:    0,

		FatigueWindowDays:  30,
		FatigueMatchWeight: 0.7,
		FatigueAwayWeight:  0.3,
		FatigueMatchScale:  10.0,
		FatigueAwayScale:   5.0,

		CongestionWindowDays: 7,

		TempNorm: 30.0,
		RainNorm: 100.0,
		WindNorm: 50.0,

		NumTrees:     150,
		LearningRate: 0.05,
		MaxDepth:     4,
		Subsample:    0.8,
		Seed:         42,

		TestFraction: 0.2,
		CVFolds:      5,

		MinGoalsFloor: 0.0,
		MaxGoalsCap:   5.0,
		DrawShare:     25.0,
	}
}

// Validate ensures all configuration values are within reasonable ranges
func (c *Config) Validate() error {
	if c.FormWindow < 1 {
		return fmt.Errorf("FormWindow must be at least 1, got: %d", c.FormWindow)
	}

	if c.FatigueWindowDays < 1 {
		return fmt.Errorf("FatigueWindowDays must be at least 1, got: %d", c.FatigueWindowDays)
	}

	if c.FatigueMatchWeight < 0 || c.FatigueAwayWeight < 0 {
		return fmt.Errorf("fatigue weights must be non-negative, got: %f and %f", c.FatigueMatchWeight, c.FatigueAwayWeight)
	}

	if c.TempNorm <= 0 || c.RainNorm <= 0 || c.WindNorm <= 0 {
		return fmt.Errorf("weather normalization divisors must be positive")
	}

	if c.NumTrees < 1 {
		return fmt.Errorf("NumTrees must be at least 1, got: %d", c.NumTrees)
	}

	if c.LearningRate <= 0 || c.LearningRate > 1.0 {
		return fmt.Errorf("LearningRate must be in (0, 1], got: %f", c.LearningRate)
	}

	if c.MaxDepth < 1 {
		return fmt.Errorf("MaxDepth must be at least 1, got: %d", c.MaxDepth)
	}

	if c.Subsample <= 0 || c.Subsample > 1.0 {
		return fmt.Errorf("Subsample must be in (0, 1], got: %f", c.Subsample)
	}

	if c.TestFraction <= 0 || c.TestFraction >= 1.0 {
		return fmt.Errorf("TestFraction must be in (0, 1), got: %f", c.TestFraction)
	}

	if c.CVFolds < 2 {
		return fmt.Errorf("CVFolds must be at least 2, got: %d", c.CVFolds)
	}

	if c.MaxGoalsCap <= c.MinGoalsFloor {
		return fmt.Errorf("MaxGoalsCap must exceed MinGoalsFloor, got: %f and %f", c.MaxGoalsCap, c.MinGoalsFloor)
	}

	if c.DrawShare < 0 || c.DrawShare > 100 {
		return fmt.Errorf("DrawShare must be a percentage, got: %f", c.DrawShare)
	}

	return nil
}
