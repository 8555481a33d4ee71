package pronos

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"

	"github.com/pronos-app/pronos/internal/logger"
)

// PredictionPipeline scores unplayed fixtures with a trained bundle
type PredictionPipeline struct {
	cfg    *Config
	engine *FeatureEngine
	bundle *ModelBundle
}

// NewPredictionPipeline builds a pipeline around a loaded bundle.
// A nil bundle yields ErrModelNotFound before any work happens.
func NewPredictionPipeline(cfg *Config, engine *FeatureEngine, bundle *ModelBundle) (*PredictionPipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if engine == nil {
		return nil, fmt.Errorf("must pass a feature engine")
	}
	if bundle == nil || bundle.HomeModel == nil || bundle.AwayModel == nil {
		return nil, ErrModelNotFound
	}

	// Restore the fitted thresholds so the indicator features line up
	// with what the models saw in training
	engine.SetHighFormMeans(bundle.HomeFormMean, bundle.AwayFormMean)

	return &PredictionPipeline{cfg: cfg, engine: engine, bundle: bundle}, nil
}

// Predict scores every unplayed fixture in upcoming against the given
// historical results. A fixture whose features cannot be fully computed
// still yields a prediction carrying the warnings, the batch never stops
// for one bad fixture. The result is ordered by date ascending.
func (p *PredictionPipeline) Predict(historical, upcoming []*Match) ([]*MatchPrediction, error) {
	played := PlayedMatches(historical)
	SortMatchesByDate(played)

	var predictions []*MatchPrediction

	for _, fixture := range upcoming {
		if fixture.Played() {
			continue
		}
		predictions = append(predictions, p.predictFixture(fixture, played))
	}

	sortPredictionsByDate(predictions)
	return predictions, nil
}

// PredictAndStore runs Predict and upserts the results keyed on fixture
// id. A storage failure still returns the in-memory predictions alongside
// the persistence error.
func (p *PredictionPipeline) PredictAndStore(store *Store, historical, upcoming []*Match) ([]*MatchPrediction, error) {
	predictions, err := p.Predict(historical, upcoming)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return predictions, nil
	}
	if err := store.SavePredictions(predictions); err != nil {
		return predictions, &PersistenceError{Op: "save predictions", Err: err}
	}
	return predictions, nil
}

// predictFixture scores one fixture. Feature failures degrade to warnings
// with the affected features zero filled.
func (p *PredictionPipeline) predictFixture(fixture *Match, played []*Match) *MatchPrediction {
	prediction := &MatchPrediction{
		MatchID:  fixture.ID,
		Date:     fixture.Date,
		HomeTeam: fixture.HomeTeam,
		AwayTeam: fixture.AwayTeam,
	}

	vec, err := p.engine.Features(fixture, played)
	if err != nil {
		logger.Warn("Feature computation failed for fixture", fixture.ID, err)
		vec = &FeatureVector{
			MatchID: fixture.ID,
			Names:   FeatureNames(),
			Values:  make([]float64, len(featureNames)),
		}
		vec.Warnings = append(vec.Warnings, fmt.Sprintf("feature computation failed: %v", err))
	}
	prediction.Warnings = vec.Warnings

	// Align the vector to the order the models were fitted against,
	// zero filling anything the bundle expects but the engine lacks
	values := make([]float64, len(p.bundle.FeatureNames))
	known := make(map[string]int, len(vec.Names))
	for i, name := range vec.Names {
		known[name] = i
	}
	for i, name := range p.bundle.FeatureNames {
		if idx, ok := known[name]; ok {
			values[i] = vec.Values[idx]
		} else {
			prediction.Warnings = append(prediction.Warnings,
				fmt.Sprintf("feature %s unavailable, using 0", name))
		}
	}

	aligned := &FeatureVector{MatchID: fixture.ID, Names: p.bundle.FeatureNames, Values: values}
	if err := Normalize(aligned, p.bundle.Means, p.bundle.Stds); err != nil {
		prediction.Warnings = append(prediction.Warnings,
			fmt.Sprintf("normalization skipped: %v", err))
	}

	rawHome := clamp(p.bundle.HomeModel.Predict(aligned.Values), p.cfg.MinGoalsFloor, p.cfg.MaxGoalsCap)
	rawAway := clamp(p.bundle.AwayModel.Predict(aligned.Values), p.cfg.MinGoalsFloor, p.cfg.MaxGoalsCap)

	prediction.PredictedHomeGoals = roundTo(rawHome, 2)
	prediction.PredictedAwayGoals = roundTo(rawAway, 2)

	prediction.DiscreteHomeGoals = p.discretize(rawHome, fixture.ID+"|home")
	prediction.DiscreteAwayGoals = p.discretize(rawAway, fixture.ID+"|away")

	home, draw, away := p.outcomeProbabilities(rawHome, rawAway)
	prediction.HomeWinProbability = home
	prediction.DrawProbability = draw
	prediction.AwayWinProbability = away

	return prediction
}

// discretize converts an expected goal count into a whole score with one
// Poisson draw seeded deterministically from the fixture, identical
// inputs reproduce identical scores across runs
func (p *PredictionPipeline) discretize(lambda float64, seedKey string) int {
	if lambda <= 0 {
		return 0
	}
	rng := rand.New(rand.NewSource(seedFor(seedKey)))
	goals := poissonRandom(lambda, rng)
	return int(clamp(float64(goals), p.cfg.MinGoalsFloor, p.cfg.MaxGoalsCap))
}

// seedFor hashes a fixture key into an RNG seed
func seedFor(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64())
}

// poissonRandom generates a single random number from a Poisson
// distribution using Knuth's algorithm
func poissonRandom(lambda float64, rng *rand.Rand) int {
	if lambda < 30 {
		L := math.Exp(-lambda)
		k := 0
		p := 1.0

		for p > L {
			k++
			p *= rng.Float64()
		}

		return k - 1
	}
	// Normal approximation for large lambda
	normal := rng.NormFloat64()
	return int(math.Round(lambda + math.Sqrt(lambda)*normal))
}

// outcomeProbabilities splits the non-draw probability mass between the
// sides in proportion to their expected goals. With both sides at zero
// the outcomes are equally likely. The three percentages sum to 100.
func (p *PredictionPipeline) outcomeProbabilities(rawHome, rawAway float64) (home, draw, away float64) {
	total := rawHome + rawAway
	if total == 0 {
		third := 100.0 / 3.0
		return third, third, third
	}

	draw = p.cfg.DrawShare
	remaining := 100.0 - draw
	home = remaining * (rawHome / total)
	away = remaining - home
	return home, draw, away
}

func sortPredictionsByDate(predictions []*MatchPrediction) {
	sort.SliceStable(predictions, func(i, j int) bool {
		if predictions[i].Date.Equal(predictions[j].Date) {
			return predictions[i].MatchID < predictions[j].MatchID
		}
		return predictions[i].Date.Before(predictions[j].Date)
	})
}

// roundTo rounds v to the given number of decimal places
func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
