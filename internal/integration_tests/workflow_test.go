package integrationtests

import (
	"context"
	"math"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	backend "rentradar-backend/internal/api"
	"rentradar-backend/internal/core"
	"rentradar-backend/internal/database"
	"rentradar-backend/internal/features"
	"rentradar-backend/pkg/api"
	"rentradar-backend/pkg/models"
)

type flatModel struct {
	price float64
}

func (m flatModel) Predict(rows [][]float32) ([]float32, error) {
	out := make([]float32, len(rows))
	for i := range rows {
		out[i] = float32(math.Log1p(m.price))
	}
	return out, nil
}

func (m flatModel) NumFeatures() int       { return features.NumFeatures() }
func (m flatModel) Baseline() []float32    { return make([]float32, features.NumFeatures()) }
func (m flatModel) FeatureNames() []string { return features.FeatureNames() }
func (m flatModel) Release()               {}

func TestPredictionWorkflow(t *testing.T) {
	db := createDB(t)

	predictor := core.NewPredictionService(flatModel{price: 40000}, core.DefaultPriceMargin)
	router := chi.NewRouter()
	router.Route("/api/v1", backend.NewBackendService(db, predictor).AddRoutes)

	server := httptest.NewServer(router)
	defer server.Close()

	client := api.NewClient(server.URL)
	ctx := context.Background()

	require.NoError(t, client.Health(ctx))

	resp, err := client.Predict(ctx, []models.RawListingInput{{
		Title:         "1-комн. квартира, 33 м²",
		PricePerMonth: 36000,
		Address:       "Санкт-Петербург, Невский район",
		Features: models.ListingFeaturesInput{
			TotalArea:   33,
			FloorNumber: 5,
		},
	}})
	require.NoError(t, err)
	require.Len(t, resp.Predictions, 1)

	pred := resp.Predictions[0]
	assert.InDelta(t, 40000, pred.PredictedPrice, 1)
	require.NotNil(t, pred.UndervaluedPercent)
	assert.InDelta(t, 10.0, *pred.UndervaluedPercent, 0.1)

	run := database.ScrapeRun{Id: uuid.New(), Status: database.RunCompleted, StartTime: time.Now().UTC()}
	require.NoError(t, db.Create(&run).Error)

	listing := database.Listing{
		Id:            uuid.New(),
		RunId:         run.Id,
		Url:           "https://spb.cian.ru/rent/flat/100/",
		Title:         "1-комн. квартира, 33 м²",
		PricePerMonth: 36000,
		ParsedAt:      time.Now().UTC(),
	}
	require.NoError(t, database.UpsertListing(context.Background(), db, &listing))

	listings, err := database.QueryListings(context.Background(), db, database.ListingFilter{})
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, listing.Url, listings[0].Url)
}
