package openmeteo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weatherdine/internal/adapter/webapi"
	"weatherdine/internal/domain"
	"weatherdine/internal/infra/config"
)

func newTestClient(t *testing.T, subsystem string, h http.HandlerFunc) *webapi.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return webapi.New(subsystem, config.SourceConfig{BaseURL: srv.URL}, logger)
}

func TestGeocoderSearch(t *testing.T) {
	client := newTestClient(t, "geocoding", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/search", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "New York", q.Get("name"))
		assert.Equal(t, "1", q.Get("count"))
		assert.Equal(t, "en", q.Get("language"))
		assert.Equal(t, "json", q.Get("format"))
		w.Write([]byte(`{"results":[{"name":"New York","latitude":40.71427,"longitude":-74.00597,"country":"United States","timezone":"America/New_York"}]}`))
	})

	loc, err := NewGeocoder(client).Search(context.Background(), "  New York ")
	require.NoError(t, err)
	assert.Equal(t, "New York", loc.Name)
	assert.Equal(t, "United States", loc.Country)
	assert.Equal(t, "America/New_York", loc.Timezone)
	assert.InDelta(t, 40.71427, loc.Coordinates.Latitude, 1e-9)
	assert.InDelta(t, -74.00597, loc.Coordinates.Longitude, 1e-9)
}

func TestGeocoderSearchNotFound(t *testing.T) {
	client := newTestClient(t, "geocoding", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"generationtime_ms":0.5}`))
	})

	_, err := NewGeocoder(client).Search(context.Background(), "Atlantis")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Equal(t, domain.CodeLocationNotFound, domain.ErrorCodeOf(err))
	assert.Contains(t, err.Error(), "Location 'Atlantis' not found")
}

func TestGeocoderSearchEmptyName(t *testing.T) {
	client := newTestClient(t, "geocoding", func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := NewGeocoder(client).Search(context.Background(), " ")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestGeocoderSearchUpstreamError(t *testing.T) {
	client := newTestClient(t, "geocoding", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := NewGeocoder(client).Search(context.Background(), "Paris")
	require.Error(t, err)
	assert.Equal(t, domain.CodeGeocodingFailed, domain.ErrorCodeOf(err))
	assert.Contains(t, err.Error(), "Geocoder.Search")
}

func TestForecastCurrent(t *testing.T) {
	client := newTestClient(t, "weather", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/forecast", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "48.8566", q.Get("latitude"))
		assert.Equal(t, "2.3522", q.Get("longitude"))
		assert.Equal(t, currentFields, q.Get("current"))
		w.Write([]byte(`{"current":{"time":"2026-10-15T12:00","temperature_2m":18.4,"apparent_temperature":17.1,"relative_humidity_2m":72,"wind_speed_10m":11.2,"wind_gusts_10m":24.5,"weather_code":61}}`))
	})

	report, err := NewForecast(client).Current(context.Background(), domain.Coordinates{Latitude: 48.8566, Longitude: 2.3522})
	require.NoError(t, err)
	assert.Equal(t, 18.4, report.Temperature)
	assert.Equal(t, 17.1, report.FeelsLike)
	assert.Equal(t, 72.0, report.Humidity)
	assert.Equal(t, 11.2, report.WindSpeed)
	assert.Equal(t, 24.5, report.WindGust)
	assert.Equal(t, 61, report.WeatherCode)
	assert.Equal(t, "Slight rain", report.Conditions)
	assert.Equal(t, time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC), report.ObservedAt)
}

func TestForecastCurrentUnavailable(t *testing.T) {
	client := newTestClient(t, "weather", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := NewForecast(client).Current(context.Background(), domain.Coordinates{})
	require.Error(t, err)
	assert.Equal(t, domain.CodeWeatherUnavailable, domain.ErrorCodeOf(err))
}
