package pronos

import (
	"fmt"
	"math"
	"sort"

	"github.com/pronos-app/pronos/internal/logger"
)

// TrainingPipeline fits the pair of goal regressors from historical
// results and persists the resulting bundle
type TrainingPipeline struct {
	cfg    *Config
	engine *FeatureEngine
}

// NewTrainingPipeline builds a pipeline around the given engine
func NewTrainingPipeline(cfg *Config, engine *FeatureEngine) (*TrainingPipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if engine == nil {
		return nil, fmt.Errorf("must pass a feature engine")
	}
	return &TrainingPipeline{cfg: cfg, engine: engine}, nil
}

// Train fits home and away goal models on the played matches in the given
// history and writes the bundle to the configured model path. Returns
// ErrInsufficientData when no usable training rows exist, in which case
// nothing is persisted.
func (p *TrainingPipeline) Train(historical []*Match) (*ModelBundle, error) {
	played := PlayedMatches(historical)
	SortMatchesByDate(played)

	if len(played) == 0 {
		return nil, ErrInsufficientData
	}

	logger.Info("Training on played matches", len(played))

	// The opening matches carry no meaningful form, skip them
	skip := p.cfg.FormWindow
	if skip >= len(played) {
		return nil, ErrInsufficientData
	}

	var vectors []*FeatureVector
	var yHome, yAway []float64

	for _, match := range played[skip:] {
		vec, err := p.engine.Features(match, played)
		if err != nil {
			return nil, fmt.Errorf("failed to compute features for %s: %w", match.ID, err)
		}
		vectors = append(vectors, vec)
		yHome = append(yHome, float64(match.HomeScore))
		yAway = append(yAway, float64(match.AwayScore))
	}

	if len(vectors) == 0 {
		return nil, ErrInsufficientData
	}

	// Chronological split, the holdout is always the most recent slice
	n := len(vectors)
	testCount := int(float64(n) * p.cfg.TestFraction)
	if testCount >= n {
		testCount = n - 1
	}
	trainCount := n - testCount

	// Fit the high form thresholds on the training slice and rewrite the
	// indicator features everywhere
	var homeFormSum, awayFormSum float64
	for _, vec := range vectors[:trainCount] {
		homeFormSum += vec.Value("home_team_form")
		awayFormSum += vec.Value("away_team_form")
	}
	homeFormMean := homeFormSum / float64(trainCount)
	awayFormMean := awayFormSum / float64(trainCount)
	p.engine.SetHighFormMeans(homeFormMean, awayFormMean)

	for _, vec := range vectors {
		vec.SetValue("home_high_form", boolToFloat(vec.Value("home_team_form") > homeFormMean))
		vec.SetValue("away_high_form", boolToFloat(vec.Value("away_team_form") > awayFormMean))
	}

	// Fit normalization on the training slice, apply everywhere
	means, stds := FitNormalization(vectors[:trainCount])
	for _, vec := range vectors {
		if err := Normalize(vec, means, stds); err != nil {
			return nil, err
		}
	}

	X := make([][]float64, n)
	for i, vec := range vectors {
		X[i] = vec.Values
	}

	homeModel := NewGBDTRegressor(p.cfg)
	if err := homeModel.Fit(X[:trainCount], yHome[:trainCount]); err != nil {
		return nil, fmt.Errorf("failed to fit home goals model: %w", err)
	}

	awayModel := NewGBDTRegressor(p.cfg)
	if err := awayModel.Fit(X[:trainCount], yAway[:trainCount]); err != nil {
		return nil, fmt.Errorf("failed to fit away goals model: %w", err)
	}

	bundle := NewModelBundle(p.cfg)
	bundle.Means = means
	bundle.Stds = stds
	bundle.HomeFormMean = homeFormMean
	bundle.AwayFormMean = awayFormMean
	bundle.HomeModel = homeModel
	bundle.AwayModel = awayModel

	bundle.Metrics = TrainingMetrics{
		TrainRows: trainCount,
		TestRows:  testCount,
		Home:      p.evaluate(homeModel, X, yHome, trainCount),
		Away:      p.evaluate(awayModel, X, yAway, trainCount),
	}

	bundle.HomeImportances = sortedImportances(homeModel.FeatureImportances())
	bundle.AwayImportances = sortedImportances(awayModel.FeatureImportances())

	logger.Highlight("Training complete",
		fmt.Sprintf("home RMSE %.4f MAE %.4f, away RMSE %.4f MAE %.4f",
			bundle.Metrics.Home.RMSE, bundle.Metrics.Home.MAE,
			bundle.Metrics.Away.RMSE, bundle.Metrics.Away.MAE))

	if err := SaveBundle(bundle, p.cfg.ModelPath); err != nil {
		return nil, &PersistenceError{Op: "save model bundle", Err: err}
	}

	return bundle, nil
}

// evaluate computes holdout and cross validation metrics for one side.
// With no holdout rows the headline metrics fall back to the training
// slice.
func (p *TrainingPipeline) evaluate(model *GBDTRegressor, X [][]float64, y []float64, trainCount int) SideMetrics {
	evalX := X[trainCount:]
	evalY := y[trainCount:]
	if len(evalX) == 0 {
		evalX = X[:trainCount]
		evalY = y[:trainCount]
	}

	predictions := make([]float64, len(evalX))
	for i, row := range evalX {
		predictions[i] = model.Predict(row)
	}

	return SideMetrics{
		RMSE:   rmse(predictions, evalY),
		MAE:    mae(predictions, evalY),
		CVRMSE: p.crossValidate(X[:trainCount], y[:trainCount]),
	}
}

// crossValidate runs k-fold cross validation over the training rows with
// contiguous chronological folds and returns the mean fold RMSE
func (p *TrainingPipeline) crossValidate(X [][]float64, y []float64) float64 {
	folds := p.cfg.CVFolds
	if folds > len(X) {
		folds = len(X)
	}
	if folds < 2 {
		return 0
	}

	foldSize := len(X) / folds
	var total float64
	var counted int

	for f := 0; f < folds; f++ {
		lo := f * foldSize
		hi := lo + foldSize
		if f == folds-1 {
			hi = len(X)
		}

		var trainX [][]float64
		var trainY []float64
		for i := range X {
			if i >= lo && i < hi {
				continue
			}
			trainX = append(trainX, X[i])
			trainY = append(trainY, y[i])
		}
		if len(trainX) == 0 || hi <= lo {
			continue
		}

		model := NewGBDTRegressor(p.cfg)
		if err := model.Fit(trainX, trainY); err != nil {
			logger.Warn("Cross validation fold failed", f, err)
			continue
		}

		predictions := make([]float64, hi-lo)
		for i := lo; i < hi; i++ {
			predictions[i-lo] = model.Predict(X[i])
		}
		total += rmse(predictions, y[lo:hi])
		counted++
	}

	if counted == 0 {
		return 0
	}
	return total / float64(counted)
}

// sortedImportances pairs the canonical feature names with their fitted
// weights, ordered by weight descending
func sortedImportances(weights []float64) []FeatureImportance {
	names := FeatureNames()
	importances := make([]FeatureImportance, 0, len(weights))
	for i, w := range weights {
		if i >= len(names) {
			break
		}
		importances = append(importances, FeatureImportance{Name: names[i], Weight: w})
	}
	sort.SliceStable(importances, func(i, j int) bool {
		return importances[i].Weight > importances[j].Weight
	})
	return importances
}

func rmse(predictions, actuals []float64) float64 {
	if len(predictions) == 0 {
		return 0
	}
	var sum float64
	for i := range predictions {
		d := predictions[i] - actuals[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(predictions)))
}

func mae(predictions, actuals []float64) float64 {
	if len(predictions) == 0 {
		return 0
	}
	var sum float64
	for i := range predictions {
		sum += math.Abs(predictions[i] - actuals[i])
	}
	return sum / float64(len(predictions))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
