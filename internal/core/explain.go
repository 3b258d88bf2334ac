package core

import (
	"math"
	"sort"

	"rentradar-backend/pkg/models"
)

const defaultTopContributions = 15

// Explain attributes a prediction to individual features by occlusion: each
// feature is replaced with its baseline value and the resulting price shift
// is reported as that feature's influence. Influences are in rubles, sorted
// by absolute impact, truncated to the topK strongest.
func Explain(model Regressor, row []float32, topK int) ([]models.FeatureContribution, error) {
	if topK <= 0 {
		topK = defaultTopContributions
	}

	n := model.NumFeatures()
	baseline := model.Baseline()
	names := model.FeatureNames()

	batch := make([][]float32, 0, n+1)
	batch = append(batch, row)
	for i := 0; i < n; i++ {
		if row[i] == baseline[i] {
			continue
		}
		occluded := make([]float32, n)
		copy(occluded, row)
		occluded[i] = baseline[i]
		batch = append(batch, occluded)
	}

	preds, err := model.Predict(batch)
	if err != nil {
		return nil, err
	}

	basePrice := TargetToPrice(preds[0])

	contributions := make([]models.FeatureContribution, 0, n)
	cursor := 1
	for i := 0; i < n; i++ {
		if row[i] == baseline[i] {
			continue
		}
		occludedPrice := TargetToPrice(preds[cursor])
		cursor++

		influence := basePrice - occludedPrice
		if influence == 0 {
			continue
		}
		contributions = append(contributions, models.FeatureContribution{
			FeatureName: names[i],
			Influence:   math.Round(influence*100) / 100,
		})
	}

	sort.Slice(contributions, func(i, j int) bool {
		return math.Abs(contributions[i].Influence) > math.Abs(contributions[j].Influence)
	})

	if len(contributions) > topK {
		contributions = contributions[:topK]
	}
	return contributions, nil
}
