// Package opentripmap adapts the OpenTripMap places API to the domain
// PlaceSource port.
package opentripmap

import (
	"context"
	"net/url"
	"strconv"

	"weatherdine/internal/adapter/webapi"
	"weatherdine/internal/domain"
)

// defaultRadiusM is the search radius used when a query does not set one.
const defaultRadiusM = 5000

type autosuggestResponse struct {
	Features []struct {
		Properties domain.PlaceProperties `json:"properties"`
		Geometry   struct {
			Coordinates []float64 `json:"coordinates"` // [lon, lat]
		} `json:"geometry"`
	} `json:"features"`
}

// Client looks up restaurants and their details on OpenTripMap.
type Client struct {
	api    *webapi.Client
	apiKey string
}

// New creates a Client. OpenTripMap rejects keyless requests, so a missing
// key fails here instead of on first use.
func New(api *webapi.Client, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, domain.NewSubSystemError("places", "opentripmap.New", domain.ErrInvalidInput,
			"api key is required (set sources.opentripmap.api_key or OPENTRIPMAP_API_KEY)")
	}
	return &Client{api: api, apiKey: apiKey}, nil
}

// Autosuggest returns places matching q.Kind around q.Center.
func (c *Client) Autosuggest(ctx context.Context, q domain.PlaceSearch) ([]domain.PlaceFeature, error) {
	radius := q.RadiusM
	if radius <= 0 {
		radius = defaultRadiusM
	}
	kind := q.Kind
	if kind == "" {
		kind = "restaurant"
	}

	params := url.Values{}
	params.Set("name", kind)
	params.Set("radius", strconv.Itoa(radius))
	params.Set("lon", strconv.FormatFloat(q.Center.Longitude, 'f', -1, 64))
	params.Set("lat", strconv.FormatFloat(q.Center.Latitude, 'f', -1, 64))
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	params.Set("apikey", c.apiKey)

	var resp autosuggestResponse
	if err := c.api.GetJSON(ctx, "/0.1/en/places/autosuggest", params, &resp); err != nil {
		return nil, domain.WrapOp("PlaceSource.Autosuggest", err)
	}

	features := make([]domain.PlaceFeature, 0, len(resp.Features))
	for _, f := range resp.Features {
		pf := domain.PlaceFeature{Properties: f.Properties}
		if len(f.Geometry.Coordinates) >= 2 {
			pf.Coordinates = domain.Coordinates{
				Longitude: f.Geometry.Coordinates[0],
				Latitude:  f.Geometry.Coordinates[1],
			}
		}
		features = append(features, pf)
	}
	return features, nil
}

// Details fetches the full property set for one place.
func (c *Client) Details(ctx context.Context, xid string) (*domain.PlaceProperties, error) {
	if xid == "" {
		return nil, domain.NewSubSystemError("places", "PlaceSource.Details", domain.ErrInvalidInput, "xid is required")
	}

	params := url.Values{}
	params.Set("apikey", c.apiKey)

	var props domain.PlaceProperties
	if err := c.api.GetJSON(ctx, "/0.1/en/places/xid/"+url.PathEscape(xid), params, &props); err != nil {
		return nil, domain.WrapOp("PlaceSource.Details", err)
	}
	return &props, nil
}

var _ domain.PlaceSource = (*Client)(nil)
