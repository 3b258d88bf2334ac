// Package api provides a client for the prediction service. The collector
// uses it to tag freshly scraped listings; external consumers can use it the
// same way.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"rentradar-backend/pkg/models"
)

const defaultRequestTimeout = 30 * time.Second

type Client struct {
	client *resty.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		client: resty.New().SetBaseURL(baseURL),
	}
}

// Predict scores a batch of listings against the prediction endpoint.
func (c *Client) Predict(ctx context.Context, listings []models.RawListingInput) (*models.PredictionResponse, error) {
	return c.predict(ctx, models.PredictRequest{Listings: listings})
}

// PredictWithExplanations additionally requests per-feature attributions.
func (c *Client) PredictWithExplanations(ctx context.Context, listings []models.RawListingInput) (*models.PredictionResponse, error) {
	return c.predict(ctx, models.PredictRequest{Listings: listings, Explain: true})
}

func (c *Client) predict(ctx context.Context, req models.PredictRequest) (*models.PredictionResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	res, err := c.client.R().
		SetContext(reqCtx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post("/api/v1/predict")
	if err != nil {
		return nil, fmt.Errorf("prediction request failed: %w", err)
	}

	if !res.IsSuccess() {
		return nil, fmt.Errorf("prediction service returned status %d: %s", res.StatusCode(), res.String())
	}

	var out models.PredictionResponse
	if err := json.Unmarshal(res.Body(), &out); err != nil {
		return nil, fmt.Errorf("error parsing prediction response: %w", err)
	}

	return &out, nil
}

// Health reports whether the prediction service is reachable.
func (c *Client) Health(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	res, err := c.client.R().SetContext(reqCtx).Get("/api/v1/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if !res.IsSuccess() {
		return fmt.Errorf("prediction service unhealthy: status %d", res.StatusCode())
	}
	return nil
}
