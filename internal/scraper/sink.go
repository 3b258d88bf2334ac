package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"rentradar-backend/internal/database"
)

// JsonlWriter appends offers to a JSONL file immediately, one line per offer,
// so a crash never loses accepted records.
type JsonlWriter struct {
	mu   sync.Mutex
	path string
}

func NewJsonlWriter(path string) (*JsonlWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", path, err)
		}
		f.Close()
		slog.Info("created new output file", "path", path)
	}

	return &JsonlWriter{path: path}, nil
}

func (w *JsonlWriter) Write(offer *Offer) error {
	line, err := json.Marshal(offer)
	if err != nil {
		return fmt.Errorf("failed to marshal offer: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write offer to disk: %w", err)
	}
	return nil
}

func (w *JsonlWriter) Path() string {
	return w.path
}

// Sink persists parsed offers to both the JSONL snapshot and the datastore.
type Sink struct {
	writer *JsonlWriter
	db     *gorm.DB
}

func NewSink(writer *JsonlWriter, db *gorm.DB) *Sink {
	return &Sink{writer: writer, db: db}
}

func (s *Sink) Save(ctx context.Context, runId uuid.UUID, offer *Offer) (*database.Listing, error) {
	if err := s.writer.Write(offer); err != nil {
		return nil, err
	}

	factsJSON, err := json.Marshal(offer.Facts)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal facts: %w", err)
	}
	featuresJSON, err := json.Marshal(offer.Features)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal features: %w", err)
	}

	listing := &database.Listing{
		Id:               uuid.New(),
		RunId:            runId,
		Url:              offer.Url,
		Title:            offer.Title,
		PricePerMonth:    offer.PricePerMonth,
		PriceCurrency:    offer.PriceCurrency,
		Address:          offer.Address,
		MetroCount:       offer.MetroCount,
		MetroNearestTime: offer.MetroNearestTime,
		TotalArea:        offer.TotalArea,
		Floor:            offer.Floor,
		Facts:            datatypes.JSON(factsJSON),
		Features:         datatypes.JSON(featuresJSON),
		ParsedAt:         offer.ParsedAt,
	}

	if err := database.UpsertListing(ctx, s.db, listing); err != nil {
		return nil, fmt.Errorf("failed to persist listing: %w", err)
	}

	// the upsert may have kept an existing row; fetch the canonical id
	var saved database.Listing
	if err := s.db.WithContext(ctx).First(&saved, "url = ?", offer.Url).Error; err != nil {
		return nil, fmt.Errorf("failed to load persisted listing: %w", err)
	}
	return &saved, nil
}
