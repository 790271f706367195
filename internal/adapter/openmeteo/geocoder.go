// Package openmeteo adapts the Open-Meteo geocoding and forecast APIs to the
// domain Geocoder and WeatherSource ports.
package openmeteo

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"weatherdine/internal/adapter/webapi"
	"weatherdine/internal/domain"
)

type geocodingResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Country   string  `json:"country"`
		Timezone  string  `json:"timezone"`
	} `json:"results"`
}

// Geocoder resolves place names through the Open-Meteo geocoding API.
type Geocoder struct {
	client *webapi.Client
}

// NewGeocoder creates a Geocoder backed by client.
func NewGeocoder(client *webapi.Client) *Geocoder {
	return &Geocoder{client: client}
}

// Search returns the best match for name.
func (g *Geocoder) Search(ctx context.Context, name string) (*domain.Location, error) {
	const op = "Geocoder.Search"

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewSubSystemError("geocoding", op, domain.ErrInvalidInput, "location is required")
	}

	q := url.Values{}
	q.Set("name", name)
	q.Set("count", "1")
	q.Set("language", "en")
	q.Set("format", "json")

	var resp geocodingResponse
	if err := g.client.GetJSON(ctx, "/v1/search", q, &resp); err != nil {
		return nil, domain.WrapOp(op, err)
	}

	if len(resp.Results) == 0 {
		return nil, domain.NewSubSystemError("geocoding", op, domain.ErrNotFound,
			fmt.Sprintf("Location '%s' not found", name))
	}

	r := resp.Results[0]
	return &domain.Location{
		Name:     r.Name,
		Country:  r.Country,
		Timezone: r.Timezone,
		Coordinates: domain.Coordinates{
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
		},
	}, nil
}

var _ domain.Geocoder = (*Geocoder)(nil)
