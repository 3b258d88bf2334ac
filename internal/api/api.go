package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"rentradar-backend/internal/core"
	"rentradar-backend/internal/database"
	"rentradar-backend/pkg/models"
)

const maxPredictBatchSize = 100

type BackendService struct {
	db        *gorm.DB
	predictor *core.PredictionService
}

func NewBackendService(db *gorm.DB, predictor *core.PredictionService) *BackendService {
	return &BackendService{db: db, predictor: predictor}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Post("/predict", RestHandler(s.Predict))
	r.Get("/listings", RestHandler(s.GetListings))
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", RestHandler(s.GetRuns))
		r.Get("/{run_id}", RestHandler(s.GetRun))
	})
}

func (s *BackendService) Predict(r *http.Request) (any, error) {
	req, err := ParseRequest[models.PredictRequest](r)
	if err != nil {
		return nil, err
	}

	if len(req.Listings) == 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "at least one listing is required")
	}
	if len(req.Listings) > maxPredictBatchSize {
		return nil, CodedErrorf(http.StatusBadRequest, "at most %d listings per request", maxPredictBatchSize)
	}

	resp, err := s.predictor.Predict(req.Listings, req.Explain)
	if err != nil {
		slog.Error("prediction request failed", "listings", len(req.Listings), "error", err)
		if errors.Is(err, core.ErrInvalidListing) {
			return nil, CodedErrorf(http.StatusUnprocessableEntity, "%v", err)
		}
		return nil, CodedErrorf(http.StatusInternalServerError, "prediction failed: %v", err)
	}

	return resp, nil
}

type listingsQueryParams struct {
	MinPrice    int    `schema:"min_price"`
	MaxPrice    int    `schema:"max_price"`
	District    string `schema:"district"`
	Undervalued bool   `schema:"undervalued"`
	Limit       int    `schema:"limit"`
}

func (s *BackendService) GetListings(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[listingsQueryParams](r)
	if err != nil {
		return nil, err
	}

	listings, err := database.QueryListings(r.Context(), s.db, database.ListingFilter{
		MinPrice:    params.MinPrice,
		MaxPrice:    params.MaxPrice,
		District:    params.District,
		Undervalued: params.Undervalued,
		Limit:       params.Limit,
	})
	if err != nil {
		slog.Error("error querying listings", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to query listings")
	}

	out := make([]models.Listing, len(listings))
	for i, listing := range listings {
		out[i] = toListingDTO(listing)
	}
	return out, nil
}

func (s *BackendService) GetRuns(r *http.Request) (any, error) {
	var runs []database.ScrapeRun
	if err := s.db.WithContext(r.Context()).Order("start_time DESC").Find(&runs).Error; err != nil {
		slog.Error("error querying runs", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to query runs")
	}

	out := make([]models.ScrapeRun, len(runs))
	for i, run := range runs {
		out[i] = toRunDTO(run)
	}
	return out, nil
}

func (s *BackendService) GetRun(r *http.Request) (any, error) {
	runId, err := URLParamUUID(r, "run_id")
	if err != nil {
		return nil, err
	}

	var run database.ScrapeRun
	if err := s.db.WithContext(r.Context()).First(&run, "id = ?", runId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "run %v not found", runId)
		}
		slog.Error("error fetching run", "run_id", runId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to fetch run")
	}

	return toRunDTO(run), nil
}

func toListingDTO(listing database.Listing) models.Listing {
	out := models.Listing{
		Id:               listing.Id,
		RunId:            listing.RunId,
		Url:              listing.Url,
		Title:            listing.Title,
		PricePerMonth:    listing.PricePerMonth,
		Address:          listing.Address,
		MetroCount:       listing.MetroCount,
		MetroNearestTime: listing.MetroNearestTime,
		TotalArea:        listing.TotalArea,
		Floor:            listing.Floor,
		ParsedAt:         listing.ParsedAt.UTC().Format(time.RFC3339),
	}
	if listing.PredictedPrice.Valid {
		price := int(listing.PredictedPrice.Int64)
		out.PredictedPrice = &price
	}
	if listing.UndervaluedPercent.Valid {
		pct := listing.UndervaluedPercent.Float64
		out.UndervaluedPercent = &pct
	}
	return out
}

func toRunDTO(run database.ScrapeRun) models.ScrapeRun {
	out := models.ScrapeRun{
		Id:             run.Id,
		Status:         run.Status,
		StartPage:      run.StartPage,
		PagesProcessed: run.PagesProcessed,
		OffersSaved:    run.OffersSaved,
		OffersFailed:   run.OffersFailed,
		StartTime:      run.StartTime.UTC().Format(time.RFC3339),
	}
	if run.CompletionTime.Valid {
		out.CompletionTime = run.CompletionTime.Time.UTC().Format(time.RFC3339)
	}
	return out
}
