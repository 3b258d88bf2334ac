package core

// Regressor scores batches of feature rows. Predictions are in the model's
// target space (log1p of the monthly price); the prediction service converts
// them back to rubles.
type Regressor interface {
	// Predict scores one row per input. Every row must have NumFeatures
	// values in the canonical feature order.
	Predict(rows [][]float32) ([]float32, error)

	NumFeatures() int

	// Baseline returns the per-feature reference values used when a
	// feature is masked out during attribution.
	Baseline() []float32

	FeatureNames() []string

	Release()
}

type RegressorLoader func(modelDir string) (Regressor, error)
