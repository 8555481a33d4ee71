package pronos

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pronos-app/pronos/internal/logger"
)

// SideMetrics holds the evaluation metrics for one goal regressor
type SideMetrics struct {
	RMSE   float64 `json:"rmse"`
	MAE    float64 `json:"mae"`
	CVRMSE float64 `json:"cvRmse"`
}

// FeatureImportance pairs a feature with its fitted weight
type FeatureImportance struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// TrainingMetrics summarizes a training run
type TrainingMetrics struct {
	TrainRows int         `json:"trainRows"`
	TestRows  int         `json:"testRows"`
	Home      SideMetrics `json:"home"`
	Away      SideMetrics `json:"away"`
}

// ModelBundle is the complete artifact a training run produces. It carries
// everything prediction needs: both regressors, the feature order they
// were fitted against, the normalization parameters and the fitted form
// means behind the high form indicators.
type ModelBundle struct {
	ID        string    `json:"id"`
	TrainedAt time.Time `json:"trainedAt"`

	FeatureNames []string  `json:"featureNames"`
	Means        []float64 `json:"means"`
	Stds         []float64 `json:"stds"`
	HomeFormMean float64   `json:"homeFormMean"`
	AwayFormMean float64   `json:"awayFormMean"`

	HomeModel *GBDTRegressor `json:"homeModel"`
	AwayModel *GBDTRegressor `json:"awayModel"`

	Metrics         TrainingMetrics     `json:"metrics"`
	HomeImportances []FeatureImportance `json:"homeImportances"`
	AwayImportances []FeatureImportance `json:"awayImportances"`

	Config *Config `json:"config"`
}

// NewModelBundle creates an empty bundle with a fresh identity
func NewModelBundle(cfg *Config) *ModelBundle {
	return &ModelBundle{
		ID:           uuid.NewString(),
		TrainedAt:    time.Now().UTC(),
		FeatureNames: FeatureNames(),
		Config:       cfg,
	}
}

// SaveBundle writes the bundle to the given path atomically, the file
// appears complete or not at all
func SaveBundle(bundle *ModelBundle, path string) error {
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal model bundle: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create model directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".model-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write model bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close model bundle: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move model bundle into place: %w", err)
	}

	logger.Info("Saved model bundle", bundle.ID, "to", path)
	return nil
}

// LoadBundle reads a bundle back from disk. A missing or unreadable file
// yields ErrModelNotFound.
func LoadBundle(path string) (*ModelBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelNotFound, path, err)
	}

	var bundle ModelBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("%w: %s is not a valid bundle: %v", ErrModelNotFound, path, err)
	}

	if bundle.HomeModel == nil || bundle.AwayModel == nil || len(bundle.FeatureNames) == 0 {
		return nil, fmt.Errorf("%w: %s is missing fitted models", ErrModelNotFound, path)
	}

	return &bundle, nil
}
