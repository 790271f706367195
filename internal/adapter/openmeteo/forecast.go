package openmeteo

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"weatherdine/internal/adapter/webapi"
	"weatherdine/internal/domain"
)

// currentFields is the set of current-condition variables requested.
const currentFields = "temperature_2m,apparent_temperature,relative_humidity_2m,wind_speed_10m,wind_gusts_10m,weather_code"

type forecastResponse struct {
	Current struct {
		Time                string  `json:"time"`
		Temperature2m       float64 `json:"temperature_2m"`
		ApparentTemperature float64 `json:"apparent_temperature"`
		RelativeHumidity2m  float64 `json:"relative_humidity_2m"`
		WindSpeed10m        float64 `json:"wind_speed_10m"`
		WindGusts10m        float64 `json:"wind_gusts_10m"`
		WeatherCode         int     `json:"weather_code"`
	} `json:"current"`
}

// Forecast reads current conditions from the Open-Meteo forecast API.
type Forecast struct {
	client *webapi.Client
}

// NewForecast creates a Forecast backed by client.
func NewForecast(client *webapi.Client) *Forecast {
	return &Forecast{client: client}
}

// Current returns the current weather at the given point. The Location
// field of the report is left empty for the caller to fill in.
func (f *Forecast) Current(ctx context.Context, at domain.Coordinates) (*domain.WeatherReport, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(at.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(at.Longitude, 'f', -1, 64))
	q.Set("current", currentFields)

	var resp forecastResponse
	if err := f.client.GetJSON(ctx, "/v1/forecast", q, &resp); err != nil {
		return nil, domain.WrapOp("Forecast.Current", err)
	}

	c := resp.Current
	report := &domain.WeatherReport{
		Temperature: c.Temperature2m,
		FeelsLike:   c.ApparentTemperature,
		Humidity:    c.RelativeHumidity2m,
		WindSpeed:   c.WindSpeed10m,
		WindGust:    c.WindGusts10m,
		WeatherCode: c.WeatherCode,
		Conditions:  domain.WeatherConditionFromCode(c.WeatherCode),
	}
	// Open-Meteo reports local ISO8601 without seconds or zone, in GMT by default.
	if t, err := time.Parse("2006-01-02T15:04", c.Time); err == nil {
		report.ObservedAt = t.UTC()
	}
	return report, nil
}

var _ domain.WeatherSource = (*Forecast)(nil)
