package core

import (
	"errors"
	"fmt"
	"math"

	"rentradar-backend/internal/features"
	"rentradar-backend/pkg/models"
)

// ErrInvalidListing marks inputs rejected by the feature transform, as
// opposed to failures of the model runtime.
var ErrInvalidListing = errors.New("invalid listing")

const (
	// predictions above this in log space are runaway outputs, not prices
	maxLogPrice = 20

	DefaultPriceMargin = 0.15
)

// TargetToPrice converts a model output from log1p space to rubles.
func TargetToPrice(pred float32) float64 {
	return math.Expm1(math.Min(float64(pred), maxLogPrice))
}

// PredictionService turns raw listings into price estimates: it builds the
// feature rows, scores them and derives the price range, the undervaluation
// percentage and optionally the per-feature attribution.
type PredictionService struct {
	transformer *features.Transformer
	model       Regressor
	margin      float64
}

func NewPredictionService(model Regressor, margin float64) *PredictionService {
	if margin <= 0 {
		margin = DefaultPriceMargin
	}
	return &PredictionService{
		transformer: features.NewTransformer(),
		model:       model,
		margin:      margin,
	}
}

func (s *PredictionService) Predict(listings []models.RawListingInput, explain bool) (*models.PredictionResponse, error) {
	if len(listings) == 0 {
		return &models.PredictionResponse{Predictions: []models.PredictionResponseItem{}}, nil
	}

	rows := make([][]float32, len(listings))
	for i, listing := range listings {
		vector, err := s.transformer.Transform(listing)
		if err != nil {
			return nil, fmt.Errorf("%w %d: %v", ErrInvalidListing, i, err)
		}
		rows[i] = vector.Values()
	}

	preds, err := s.model.Predict(rows)
	if err != nil {
		return nil, fmt.Errorf("prediction failed: %w", err)
	}

	response := &models.PredictionResponse{
		Predictions: make([]models.PredictionResponseItem, len(listings)),
	}
	for i, pred := range preds {
		price := TargetToPrice(pred)

		item := models.PredictionResponseItem{
			PredictedPrice: int(price),
			PriceRangeLow:  int(price * (1 - s.margin)),
			PriceRangeHigh: int(price * (1 + s.margin)),
		}

		if real := listings[i].PricePerMonth; real > 0 && price > 0 {
			pct := math.Round((price-float64(real))/price*100*10) / 10
			item.UndervaluedPercent = &pct
		}

		if explain {
			contributions, err := Explain(s.model, rows[i], defaultTopContributions)
			if err != nil {
				return nil, fmt.Errorf("attribution failed for listing %d: %w", i, err)
			}
			item.FeatureContributions = contributions
		}

		response.Predictions[i] = item
	}

	return response, nil
}
