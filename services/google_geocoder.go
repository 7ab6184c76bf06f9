package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultGeocodingURL = "https://maps.googleapis.com/maps/api/geocode/json"

// GoogleGeocoder calls the Google Maps Geocoding API.
type GoogleGeocoder struct {
	client *resty.Client
	url    string
	apiKey string
}

func NewGoogleGeocoder(apiKey, url string, timeout time.Duration) *GoogleGeocoder {
	if url == "" {
		url = DefaultGeocodingURL
	}
	client := resty.New()
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &GoogleGeocoder{
		client: client,
		url:    url,
		apiKey: apiKey,
	}
}

func (g *GoogleGeocoder) Geocode(ctx context.Context, req GeocodeRequest) (GeocodeResponse, error) {
	params := map[string]string{
		"address": req.Address,
		"key":     g.apiKey,
	}
	if req.Country != "" {
		params["components"] = "country:" + req.Country
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParams(params).
		Get(g.url)
	if err != nil {
		return GeocodeResponse{}, fmt.Errorf("geocoding request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return GeocodeResponse{}, fmt.Errorf("geocoding request failed, status: %d", resp.StatusCode())
	}

	var result GeocodeResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return GeocodeResponse{}, fmt.Errorf("failed to parse geocoding response: %w", err)
	}
	return result, nil
}
