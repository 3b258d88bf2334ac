package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentradar-backend/pkg/api"
	"rentradar-backend/pkg/models"
)

func TestClientPredict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/predict", r.URL.Path)

		var req models.PredictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Listings, 1)
		assert.False(t, req.Explain)

		undervalued := 12.5
		resp := models.PredictionResponse{Predictions: []models.PredictionResponseItem{{
			PredictedPrice:     48000,
			PriceRangeLow:      40800,
			PriceRangeHigh:     55200,
			UndervaluedPercent: &undervalued,
		}}}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	client := api.NewClient(server.URL)
	resp, err := client.Predict(context.Background(), []models.RawListingInput{{
		Title:         "Квартира",
		PricePerMonth: 42000,
		Features:      models.ListingFeaturesInput{TotalArea: 54},
	}})
	require.NoError(t, err)
	require.Len(t, resp.Predictions, 1)

	assert.Equal(t, 48000, resp.Predictions[0].PredictedPrice)
	require.NotNil(t, resp.Predictions[0].UndervaluedPercent)
	assert.Equal(t, 12.5, *resp.Predictions[0].UndervaluedPercent)
}

func TestClientPredictWithExplanations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.PredictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Explain)

		resp := models.PredictionResponse{Predictions: []models.PredictionResponseItem{{
			PredictedPrice: 48000,
			FeatureContributions: []models.FeatureContribution{
				{FeatureName: "total_area", Influence: 5200.5},
			},
		}}}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	client := api.NewClient(server.URL)
	resp, err := client.PredictWithExplanations(context.Background(), []models.RawListingInput{{
		Features: models.ListingFeaturesInput{TotalArea: 54},
	}})
	require.NoError(t, err)
	require.Len(t, resp.Predictions, 1)
	require.Len(t, resp.Predictions[0].FeatureContributions, 1)
	assert.Equal(t, "total_area", resp.Predictions[0].FeatureContributions[0].FeatureName)
}

func TestClientPredictErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "prediction failed", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := api.NewClient(server.URL)
	_, err := client.Predict(context.Background(), []models.RawListingInput{{}})
	assert.ErrorContains(t, err, "422")
}

func TestClientHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := api.NewClient(server.URL)
	assert.NoError(t, client.Health(context.Background()))
}

func TestClientHealthUnreachable(t *testing.T) {
	client := api.NewClient("http://127.0.0.1:1")
	assert.Error(t, client.Health(context.Background()))
}
