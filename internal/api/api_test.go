package api_test

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	backend "rentradar-backend/internal/api"
	"rentradar-backend/internal/core"
	"rentradar-backend/internal/database"
	"rentradar-backend/internal/features"
	"rentradar-backend/pkg/models"
)

func createDB(t *testing.T, create ...any) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, database.GetMigrator(db).Migrate())

	for _, c := range create {
		require.NoError(t, db.Create(c).Error)
	}

	return db
}

// fixedModel always predicts the same price, in log1p target space.
type fixedModel struct {
	price float64
}

func (m *fixedModel) Predict(rows [][]float32) ([]float32, error) {
	out := make([]float32, len(rows))
	for i := range rows {
		out[i] = float32(math.Log1p(m.price))
	}
	return out, nil
}

func (m *fixedModel) NumFeatures() int       { return features.NumFeatures() }
func (m *fixedModel) Baseline() []float32    { return make([]float32, features.NumFeatures()) }
func (m *fixedModel) FeatureNames() []string { return features.FeatureNames() }
func (m *fixedModel) Release()               {}

func newRouter(t *testing.T, db *gorm.DB) chi.Router {
	t.Helper()

	service := backend.NewBackendService(db, core.NewPredictionService(&fixedModel{price: 40000}, 0.15))
	router := chi.NewRouter()
	service.AddRoutes(router)
	return router
}

func sampleListing(runId uuid.UUID, url string, price int) *database.Listing {
	return &database.Listing{
		Id:            uuid.New(),
		RunId:         runId,
		Url:           url,
		Title:         "2-комн. квартира",
		PricePerMonth: price,
		PriceCurrency: "RUB",
		Address:       "Санкт-Петербург, Московский район",
		TotalArea:     "54 м²",
		Floor:         "3/9",
		ParsedAt:      time.Now().UTC(),
	}
}

func TestHealth(t *testing.T) {
	router := newRouter(t, createDB(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPredict(t *testing.T) {
	router := newRouter(t, createDB(t))

	reqBody := models.PredictRequest{
		Listings: []models.RawListingInput{{
			Title:         "2-комн. квартира, 54 м²",
			PricePerMonth: 36000,
			Address:       "Санкт-Петербург, Московский район",
			Features:      models.ListingFeaturesInput{TotalArea: 54, FloorNumber: 3, TotalFloorsCnt: 9},
		}},
	}
	body, err := json.Marshal(reqBody)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.PredictionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Predictions, 1)

	item := resp.Predictions[0]
	assert.InDelta(t, 40000, item.PredictedPrice, 1)
	assert.InDelta(t, 34000, item.PriceRangeLow, 2)
	assert.InDelta(t, 46000, item.PriceRangeHigh, 2)
	require.NotNil(t, item.UndervaluedPercent)
	assert.InDelta(t, 10.0, *item.UndervaluedPercent, 0.1)
	assert.Empty(t, item.FeatureContributions)
}

func TestPredictWithExplanation(t *testing.T) {
	router := newRouter(t, createDB(t))

	reqBody := models.PredictRequest{
		Listings: []models.RawListingInput{{
			Title:    "Студия",
			Address:  "Санкт-Петербург",
			Features: models.ListingFeaturesInput{TotalArea: 25},
		}},
		Explain: true,
	}
	body, err := json.Marshal(reqBody)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.PredictionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Predictions, 1)
	// a constant model has no feature influence to report
	assert.Empty(t, resp.Predictions[0].FeatureContributions)
}

func TestPredictRejectsEmptyBatch(t *testing.T) {
	router := newRouter(t, createDB(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader([]byte(`{"listings": []}`))))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPredictRejectsInvalidListing(t *testing.T) {
	router := newRouter(t, createDB(t))

	// missing total_area
	body := []byte(`{"listings": [{"title": "Квартира", "address": "СПб"}]}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(body)))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

// failingModel stands in for a crashed model runtime.
type failingModel struct{}

func (m *failingModel) Predict(rows [][]float32) ([]float32, error) {
	return nil, fmt.Errorf("session run failed")
}

func (m *failingModel) NumFeatures() int       { return features.NumFeatures() }
func (m *failingModel) Baseline() []float32    { return make([]float32, features.NumFeatures()) }
func (m *failingModel) FeatureNames() []string { return features.FeatureNames() }
func (m *failingModel) Release()               {}

func TestPredictModelFailureIsServerError(t *testing.T) {
	service := backend.NewBackendService(createDB(t), core.NewPredictionService(&failingModel{}, 0.15))
	router := chi.NewRouter()
	service.AddRoutes(router)

	body := []byte(`{"listings": [{"title": "Квартира", "address": "СПб", "features": {"total_area": 40}}]}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(body)))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPredictRejectsMalformedBody(t *testing.T) {
	router := newRouter(t, createDB(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader([]byte("{not json"))))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetListings(t *testing.T) {
	runId := uuid.New()
	run := &database.ScrapeRun{Id: runId, Status: database.RunCompleted, StartPage: 1, StartTime: time.Now().UTC()}

	cheap := sampleListing(runId, "https://spb.cian.ru/rent/flat/1/", 25000)
	pricey := sampleListing(runId, "https://spb.cian.ru/rent/flat/2/", 90000)
	tagged := sampleListing(runId, "https://spb.cian.ru/rent/flat/3/", 40000)
	tagged.PredictedPrice = sql.NullInt64{Int64: 50000, Valid: true}
	tagged.UndervaluedPercent = sql.NullFloat64{Float64: 20.0, Valid: true}

	db := createDB(t, run, cheap, pricey, tagged)
	router := newRouter(t, db)

	t.Run("all", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/listings", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp []models.Listing
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp, 3)
	})

	t.Run("price filter", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/listings?min_price=30000&max_price=60000", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp []models.Listing
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp, 1)
		assert.Equal(t, tagged.Url, resp[0].Url)
	})

	t.Run("undervalued filter", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/listings?undervalued=true", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp []models.Listing
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp, 1)
		require.NotNil(t, resp[0].PredictedPrice)
		assert.Equal(t, 50000, *resp[0].PredictedPrice)
		require.NotNil(t, resp[0].UndervaluedPercent)
		assert.Equal(t, 20.0, *resp[0].UndervaluedPercent)
	})

	t.Run("limit", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/listings?limit=2", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp []models.Listing
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp, 2)
	})
}

func TestGetRuns(t *testing.T) {
	id1, id2 := uuid.New(), uuid.New()
	db := createDB(t,
		&database.ScrapeRun{Id: id1, Status: database.RunCompleted, StartPage: 40, StartTime: time.Now().UTC().Add(-time.Hour), PagesProcessed: 10, OffersSaved: 250},
		&database.ScrapeRun{Id: id2, Status: database.RunRunning, StartPage: 1, StartTime: time.Now().UTC()},
	)
	router := newRouter(t, db)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp []models.ScrapeRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 2)

	// newest first
	assert.Equal(t, id2, resp[0].Id)
	assert.Equal(t, id1, resp[1].Id)
	assert.Equal(t, 250, resp[1].OffersSaved)
}

func TestGetRun(t *testing.T) {
	runId := uuid.New()
	db := createDB(t, &database.ScrapeRun{
		Id:             runId,
		Status:         database.RunCompleted,
		StartPage:      40,
		StartTime:      time.Now().UTC(),
		CompletionTime: sql.NullTime{Time: time.Now().UTC(), Valid: true},
		PagesProcessed: 12,
		OffersSaved:    300,
		OffersFailed:   4,
	})
	router := newRouter(t, db)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/runs/%s", runId), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.ScrapeRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, runId, resp.Id)
	assert.Equal(t, database.RunCompleted, resp.Status)
	assert.Equal(t, 40, resp.StartPage)
	assert.Equal(t, 300, resp.OffersSaved)
	assert.NotEmpty(t, resp.CompletionTime)
}

func TestGetRunNotFound(t *testing.T) {
	router := newRouter(t, createDB(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/runs/%s", uuid.New()), nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRunInvalidId(t *testing.T) {
	router := newRouter(t, createDB(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/not-a-uuid", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
