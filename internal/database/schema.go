package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RunQueued    string = "QUEUED"
	RunRunning   string = "RUNNING"
	RunCompleted string = "COMPLETED"
	RunFailed    string = "FAILED"
)

type ScrapeRun struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Status    string `gorm:"size:20;not null"`
	StartPage int    `gorm:"default:1"`

	StartTime      time.Time
	CompletionTime sql.NullTime

	PagesProcessed int `gorm:"default:0"`
	OffersSaved    int `gorm:"default:0"`
	OffersFailed   int `gorm:"default:0"`

	Listings []Listing     `gorm:"foreignKey:RunId;constraint:OnDelete:CASCADE"`
	Errors   []ScrapeError `gorm:"foreignKey:RunId;constraint:OnDelete:CASCADE"`
}

type Listing struct {
	Id    uuid.UUID `gorm:"type:uuid;primaryKey"`
	RunId uuid.UUID `gorm:"type:uuid;index"`

	Url   string `gorm:"uniqueIndex;not null"`
	Title string

	PricePerMonth int
	PriceCurrency string `gorm:"size:8;default:RUB"`

	Address          string
	MetroCount       int
	MetroNearestTime string

	TotalArea string
	Floor     string

	Facts    datatypes.JSON
	Features datatypes.JSON

	PredictedPrice     sql.NullInt64
	UndervaluedPercent sql.NullFloat64

	ParsedAt time.Time
}

type ScrapeError struct {
	RunId   uuid.UUID `gorm:"type:uuid;primaryKey"`
	ErrorId uuid.UUID `gorm:"type:uuid;primaryKey"`

	Error     string
	Timestamp time.Time
}
