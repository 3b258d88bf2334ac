package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func UpdateRunStatus(ctx context.Context, txn *gorm.DB, runId uuid.UUID, status string) error {
	updates := map[string]any{"status": status}
	if status == RunCompleted || status == RunFailed {
		updates["completion_time"] = time.Now().UTC()
	}

	if err := txn.WithContext(ctx).Model(&ScrapeRun{Id: runId}).Updates(updates).Error; err != nil {
		slog.Error("error updating run status", "run_id", runId, "status", status, "error", err)
		return err
	}
	return nil
}

// UpsertListing inserts the listing or, when a row with the same URL already
// exists, refreshes its mutable fields from the new snapshot.
func UpsertListing(ctx context.Context, txn *gorm.DB, listing *Listing) error {
	return txn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "url"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"run_id", "title", "price_per_month", "address", "metro_count",
			"metro_nearest_time", "total_area", "floor", "facts", "features", "parsed_at",
		}),
	}).Create(listing).Error
}

func SetListingPrediction(ctx context.Context, txn *gorm.DB, listingId uuid.UUID, predictedPrice int, undervaluedPercent *float64) error {
	updates := map[string]any{"predicted_price": predictedPrice}
	if undervaluedPercent != nil {
		updates["undervalued_percent"] = *undervaluedPercent
	}

	return txn.WithContext(ctx).Model(&Listing{}).Where("id = ?", listingId).Updates(updates).Error
}

func IncrementRunCounter(ctx context.Context, txn *gorm.DB, runId uuid.UUID, column string) error {
	return txn.WithContext(ctx).Model(&ScrapeRun{}).
		Where("id = ?", runId).
		UpdateColumn(column, gorm.Expr(column+" + 1")).Error
}

func SaveScrapeError(ctx context.Context, txn *gorm.DB, runId uuid.UUID, errorMessage string) {
	scrapeError := ScrapeError{
		RunId:     runId,
		ErrorId:   uuid.New(),
		Error:     errorMessage,
		Timestamp: time.Now().UTC(),
	}

	if err := txn.WithContext(ctx).Create(&scrapeError).Error; err != nil {
		slog.Error("error saving scrape error", "run_id", runId, "error", err)
	}
}

const maxListingQueryLimit = 500

type ListingFilter struct {
	MinPrice    int
	MaxPrice    int
	District    string
	Undervalued bool
	Limit       int
}

func QueryListings(ctx context.Context, txn *gorm.DB, filter ListingFilter) ([]Listing, error) {
	query := txn.WithContext(ctx).Model(&Listing{})

	if filter.MinPrice > 0 {
		query = query.Where("price_per_month >= ?", filter.MinPrice)
	}
	if filter.MaxPrice > 0 {
		query = query.Where("price_per_month <= ?", filter.MaxPrice)
	}
	if filter.District != "" {
		query = query.Where("address LIKE ?", "%"+filter.District+"%")
	}
	if filter.Undervalued {
		query = query.Where("undervalued_percent > 0")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	} else if limit > maxListingQueryLimit {
		limit = maxListingQueryLimit
	}

	var listings []Listing
	if err := query.Order("parsed_at DESC").Limit(limit).Find(&listings).Error; err != nil {
		return nil, err
	}
	return listings, nil
}
