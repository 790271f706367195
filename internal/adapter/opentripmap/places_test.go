package opentripmap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weatherdine/internal/adapter/webapi"
	"weatherdine/internal/domain"
	"weatherdine/internal/infra/config"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	api := webapi.New("places", config.SourceConfig{BaseURL: srv.URL}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c, err := New(api, "test-key")
	require.NoError(t, err)
	return c
}

func TestNewRequiresAPIKey(t *testing.T) {
	api := webapi.New("places", config.SourceConfig{BaseURL: "http://otm.test"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := New(api, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestAutosuggest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/0.1/en/places/autosuggest", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "restaurant", q.Get("name"))
		assert.Equal(t, "5000", q.Get("radius"))
		assert.Equal(t, "2.35", q.Get("lon"))
		assert.Equal(t, "48.85", q.Get("lat"))
		assert.Equal(t, "3", q.Get("limit"))
		assert.Equal(t, "test-key", q.Get("apikey"))
		w.Write([]byte(`{"type":"FeatureCollection","features":[
			{"type":"Feature","geometry":{"type":"Point","coordinates":[2.36,48.86]},
			 "properties":{"xid":"N1","name":"Le Petit Bistro","street":"Rue Oberkampf","housenumber":"5","city":"Paris","postcode":"75011","cuisine":"french","rating":4.5}},
			{"type":"Feature","geometry":{"type":"Point","coordinates":[2.34,48.84]},
			 "properties":{"xid":"N2","name":"Sushi Go"}}
		]}`))
	})

	features, err := c.Autosuggest(context.Background(), domain.PlaceSearch{
		Center: domain.Coordinates{Latitude: 48.85, Longitude: 2.35},
		Limit:  3,
	})
	require.NoError(t, err)
	require.Len(t, features, 2)

	first := features[0]
	assert.Equal(t, "N1", first.Properties.XID)
	assert.Equal(t, "Le Petit Bistro", first.Properties.Name)
	assert.Equal(t, "Rue Oberkampf 5, Paris 75011", first.Properties.Address())
	require.NotNil(t, first.Properties.Rating)
	assert.Equal(t, 4.5, *first.Properties.Rating)
	assert.Equal(t, 48.86, first.Coordinates.Latitude)
	assert.Equal(t, 2.36, first.Coordinates.Longitude)

	assert.Nil(t, features[1].Properties.Rating)
}

func TestAutosuggestUpstreamFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Autosuggest(context.Background(), domain.PlaceSearch{Kind: "restaurant", RadiusM: 1000})
	require.Error(t, err)
	assert.Equal(t, domain.CodePlacesUnavailable, domain.ErrorCodeOf(err))
}

func TestDetails(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/0.1/en/places/xid/N1", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		w.Write([]byte(`{"xid":"N1","name":"Le Petit Bistro","cuisine":"french;wine_bar","phone":"+33 1 00","website":"https://bistro.example","opening_hours":"Mo-Su 12:00-23:00","price_range":"$$"}`))
	})

	d, err := c.Details(context.Background(), "N1")
	require.NoError(t, err)
	assert.Equal(t, "french;wine_bar", d.Cuisine)
	assert.Equal(t, "+33 1 00", d.Phone)
	assert.Equal(t, "https://bistro.example", d.Website)
	assert.Equal(t, "Mo-Su 12:00-23:00", d.OpeningHours)
	assert.Equal(t, "$$", d.PriceRange)
}

func TestDetailsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := c.Details(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Equal(t, domain.CodePlaceNotFound, domain.ErrorCodeOf(err))
}

func TestDetailsEmptyXID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := c.Details(context.Background(), "")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}
