package pronos

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBundleRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	matches := season([]string{"Lyon", "Metz", "Nice", "Lens"}, 2)
	bundle := trainedBundle(t, cfg, matches)

	loaded, err := LoadBundle(cfg.ModelPath)
	require.NoError(t, err, "The freshly written bundle should load back")

	assert.Equal(t, bundle.ID, loaded.ID)
	assert.Equal(t, bundle.FeatureNames, loaded.FeatureNames)
	assert.Equal(t, bundle.Means, loaded.Means)
	assert.Equal(t, bundle.Stds, loaded.Stds)
	assert.Equal(t, bundle.HomeFormMean, loaded.HomeFormMean)
	assert.Equal(t, bundle.Metrics, loaded.Metrics)

	// The reloaded models must score identically to the in-memory ones
	row := make([]float64, len(featureNames))
	for i := range row {
		row[i] = float64(i) * 0.1
	}
	assert.Equal(t, bundle.HomeModel.Predict(row), loaded.HomeModel.Predict(row))
	assert.Equal(t, bundle.AwayModel.Predict(row), loaded.AwayModel.Predict(row))
}

func TestLoadBundleMissing(t *testing.T) {
	_, err := LoadBundle(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestLoadBundleCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := LoadBundle(path)
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestLoadBundleWithoutModels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"x","featureNames":["a"]}`), 0644))

	_, err := LoadBundle(path)
	assert.ErrorIs(t, err, ErrModelNotFound, "A bundle without fitted models is unusable")
}

func TestSaveBundleLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")

	bundle := NewModelBundle(DefaultConfig())
	bundle.HomeModel = NewGBDTRegressor(DefaultConfig())
	bundle.AwayModel = NewGBDTRegressor(DefaultConfig())
	require.NoError(t, SaveBundle(bundle, path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "Only the final bundle should remain")
	assert.Equal(t, "model.json", entries[0].Name())
}
