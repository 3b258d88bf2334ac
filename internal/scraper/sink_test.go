package scraper

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"rentradar-backend/internal/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// every pooled connection to file::memory: sees its own database, so the
	// concurrent workers must share one
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.GetMigrator(db).Migrate())
	return db
}

func newTestRun(t *testing.T, db *gorm.DB) uuid.UUID {
	t.Helper()

	runId := uuid.New()
	require.NoError(t, db.Create(&database.ScrapeRun{
		Id:        runId,
		Status:    database.RunRunning,
		StartPage: 1,
		StartTime: time.Now().UTC(),
	}).Error)
	return runId
}

func sampleOffer(url string) *Offer {
	offer := newOffer(url)
	offer.Title = "Сдается 2-комн. квартира, 54 м²"
	offer.PricePerMonth = 45000
	offer.Address = "Санкт-Петербург, Московский район"
	offer.MetroCount = 2
	offer.MetroNearestTime = "7 мин"
	offer.TotalArea = "54 м²"
	offer.Floor = "3/9"
	offer.Facts["Ремонт"] = "Евроремонт"
	offer.Features = append(offer.Features, "Холодильник")
	return offer
}

func TestJsonlWriterAppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "offers.jsonl")

	writer, err := NewJsonlWriter(path)
	require.NoError(t, err)

	require.NoError(t, writer.Write(sampleOffer("https://spb.cian.ru/rent/flat/1/")))
	require.NoError(t, writer.Write(sampleOffer("https://spb.cian.ru/rent/flat/2/")))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var offer Offer
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &offer))
		urls = append(urls, offer.Url)
	}
	require.NoError(t, scanner.Err())

	assert.Equal(t, []string{
		"https://spb.cian.ru/rent/flat/1/",
		"https://spb.cian.ru/rent/flat/2/",
	}, urls)
}

func TestJsonlWriterKeepsExistingContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offers.jsonl")

	writer, err := NewJsonlWriter(path)
	require.NoError(t, err)
	require.NoError(t, writer.Write(sampleOffer("https://spb.cian.ru/rent/flat/1/")))

	// reopening must not truncate
	writer, err = NewJsonlWriter(path)
	require.NoError(t, err)
	require.NoError(t, writer.Write(sampleOffer("https://spb.cian.ru/rent/flat/2/")))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(content), "\n"))
}

func TestSinkSavePersistsListing(t *testing.T) {
	db := newTestDB(t)
	runId := newTestRun(t, db)

	writer, err := NewJsonlWriter(filepath.Join(t.TempDir(), "offers.jsonl"))
	require.NoError(t, err)
	sink := NewSink(writer, db)

	listing, err := sink.Save(context.Background(), runId, sampleOffer("https://spb.cian.ru/rent/flat/1/"))
	require.NoError(t, err)

	assert.Equal(t, runId, listing.RunId)
	assert.Equal(t, 45000, listing.PricePerMonth)
	assert.Equal(t, "RUB", listing.PriceCurrency)
	assert.Equal(t, "54 м²", listing.TotalArea)

	var facts map[string]string
	require.NoError(t, json.Unmarshal(listing.Facts, &facts))
	assert.Equal(t, "Евроремонт", facts["Ремонт"])
}

func TestSinkSaveDeduplicatesByUrl(t *testing.T) {
	db := newTestDB(t)
	runId := newTestRun(t, db)

	writer, err := NewJsonlWriter(filepath.Join(t.TempDir(), "offers.jsonl"))
	require.NoError(t, err)
	sink := NewSink(writer, db)

	first, err := sink.Save(context.Background(), runId, sampleOffer("https://spb.cian.ru/rent/flat/1/"))
	require.NoError(t, err)

	updated := sampleOffer("https://spb.cian.ru/rent/flat/1/")
	updated.PricePerMonth = 47000
	second, err := sink.Save(context.Background(), runId, updated)
	require.NoError(t, err)

	assert.Equal(t, first.Id, second.Id)
	assert.Equal(t, 47000, second.PricePerMonth)

	var count int64
	require.NoError(t, db.Model(&database.Listing{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}
