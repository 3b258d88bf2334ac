package scraper

import "time"

// Offer is the parsed detail record for one rental listing. It is the unit
// written to the JSONL sink and persisted to the datastore.
type Offer struct {
	Url   string `json:"url"`
	Title string `json:"title"`

	PricePerMonth int    `json:"price_per_month"`
	PriceCurrency string `json:"price_currency"`

	Address          string `json:"address"`
	MetroCount       int    `json:"metro_count"`
	MetroNearestTime string `json:"metro_nearest_time"`

	TotalArea string `json:"total_area"`
	Floor     string `json:"floor"`

	// Key-value blocks scraped from the fact containers, e.g.
	// {"Общая площадь": "34 м²", "Этаж": "3/9"}.
	Facts map[string]string `json:"facts"`

	// Amenity labels, e.g. ["Холодильник", "Интернет"].
	Features []string `json:"features"`

	ParsedAt time.Time `json:"parsed_at"`
}

func newOffer(url string) *Offer {
	return &Offer{
		Url:           url,
		PriceCurrency: "RUB",
		Facts:         map[string]string{},
		Features:      []string{},
		ParsedAt:      time.Now().UTC(),
	}
}
