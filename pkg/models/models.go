package models

import (
	"github.com/google/uuid"
)

// --- Task Payload Structs ---

type OfferTaskPayload struct {
	RunId uuid.UUID
	Url   string
}

// --- Prediction API Wire Types ---

// ListingFeaturesInput is the nested "features" object of an incoming listing.
// Field names follow the collector's output format.
type ListingFeaturesInput struct {
	HcsPrice              string  `json:"hcs_price"`
	Comission             float64 `json:"comission"`
	MetroCnt              int     `json:"metro_cnt"`
	MetroNearestTime      int     `json:"metro_nearest_time"`
	PrepaymentMonthsCnt   int     `json:"prepayment_months_cnt"`
	RentTermMonthsCnt     int     `json:"rent_term_months_cnt"`
	TotalArea             float64 `json:"total_area"`
	LivingArea            float64 `json:"living_area"`
	KitchenArea           float64 `json:"kitchen_area"`
	FloorNumber           int     `json:"floor_number"`
	TotalFloorsCnt        int     `json:"total_floors_cnt"`
	LayoutCat             string  `json:"layout_cat"`
	RepairCat             string  `json:"repair_cat"`
	HeatingCat            string  `json:"heating_cat"`
	HouseTypeCat          string  `json:"house_type_cat"`
	ParkingCat            string  `json:"parking_cat"`
	BalconyLoggiaCnt      string  `json:"balcony_loggia_cnt"`
	EntranceInfo          string  `json:"entrance_info"`
	ConstructionSeries    string  `json:"construction_series"`
	CombinedBathroomsCnt  int     `json:"combined_bathrooms_cnt"`
	SeparateBathroomsCnt  int     `json:"separate_bathrooms_cnt"`
	PassengerElevatorsCnt int     `json:"passenger_elevators_cnt"`
	FreightElevatorsCnt   int     `json:"freight_elevators_cnt"`
	EntrancesCnt          int     `json:"entrances_cnt"`
	BuildYear             int     `json:"build_year"`
}

// RawListingInput is one listing as submitted to the prediction endpoint.
type RawListingInput struct {
	Title         string               `json:"title"`
	PricePerMonth int                  `json:"price_per_month"`
	Address       string               `json:"address"`
	Features      ListingFeaturesInput `json:"features"`
	Facts         []string             `json:"facts"`
}

type PredictRequest struct {
	Listings []RawListingInput `json:"listings"`
	Explain  bool              `json:"explain"`
}

type FeatureContribution struct {
	FeatureName string  `json:"feature_name"`
	Influence   float64 `json:"influence"`
}

type PredictionResponseItem struct {
	PredictedPrice       int                   `json:"predicted_price"`
	PriceRangeLow        int                   `json:"price_range_low"`
	PriceRangeHigh       int                   `json:"price_range_high"`
	UndervaluedPercent   *float64              `json:"undervalued_percent"`
	FeatureContributions []FeatureContribution `json:"feature_contributions,omitempty"`
}

type PredictionResponse struct {
	Predictions []PredictionResponseItem `json:"predictions"`
}

// --- Read API Wire Types ---

type Listing struct {
	Id                 uuid.UUID `json:"id"`
	RunId              uuid.UUID `json:"run_id"`
	Url                string    `json:"url"`
	Title              string    `json:"title"`
	PricePerMonth      int       `json:"price_per_month"`
	Address            string    `json:"address"`
	MetroCount         int       `json:"metro_count"`
	MetroNearestTime   string    `json:"metro_nearest_time"`
	TotalArea          string    `json:"total_area"`
	Floor              string    `json:"floor"`
	PredictedPrice     *int      `json:"predicted_price,omitempty"`
	UndervaluedPercent *float64  `json:"undervalued_percent,omitempty"`
	ParsedAt           string    `json:"parsed_at"`
}

type ScrapeRun struct {
	Id             uuid.UUID `json:"id"`
	Status         string    `json:"status"`
	StartPage      int       `json:"start_page"`
	PagesProcessed int       `json:"pages_processed"`
	OffersSaved    int       `json:"offers_saved"`
	OffersFailed   int       `json:"offers_failed"`
	StartTime      string    `json:"start_time"`
	CompletionTime string    `json:"completion_time,omitempty"`
}
