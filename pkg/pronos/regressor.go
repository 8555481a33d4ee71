package pronos

// Regressor is the capability a trained goal model must provide.
// Fit consumes rows in canonical feature order, Predict scores one row.
type Regressor interface {
	Fit(X [][]float64, y []float64) error
	Predict(x []float64) float64
	FeatureImportances() []float64
}
