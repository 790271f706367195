package domain

import (
	"context"
	"time"
)

// WeatherReport is a current-conditions snapshot for one location.
type WeatherReport struct {
	Location    string    `json:"location"`
	Temperature float64   `json:"temperature"`
	FeelsLike   float64   `json:"feelsLike"`
	Humidity    float64   `json:"humidity"`
	WindSpeed   float64   `json:"windSpeed"`
	WindGust    float64   `json:"windGust"`
	Conditions  string    `json:"conditions"`
	WeatherCode int       `json:"weatherCode"`
	ObservedAt  time.Time `json:"observedAt,omitzero"`
}

// WeatherSource returns current conditions at a point.
type WeatherSource interface {
	Current(ctx context.Context, at Coordinates) (*WeatherReport, error)
}

// wmoConditions maps WMO weather interpretation codes to readable conditions.
var wmoConditions = map[int]string{
	0:  "Clear sky",
	1:  "Mainly clear",
	2:  "Partly cloudy",
	3:  "Overcast",
	45: "Foggy",
	48: "Depositing rime fog",
	51: "Light drizzle",
	53: "Moderate drizzle",
	55: "Dense drizzle",
	56: "Light freezing drizzle",
	57: "Dense freezing drizzle",
	61: "Slight rain",
	63: "Moderate rain",
	65: "Heavy rain",
	66: "Light freezing rain",
	67: "Heavy freezing rain",
	71: "Slight snow fall",
	73: "Moderate snow fall",
	75: "Heavy snow fall",
	77: "Snow grains",
	80: "Slight rain showers",
	81: "Moderate rain showers",
	82: "Violent rain showers",
	85: "Slight snow showers",
	86: "Heavy snow showers",
	95: "Thunderstorm",
	96: "Thunderstorm with slight hail",
	99: "Thunderstorm with heavy hail",
}

// WeatherConditionFromCode returns the readable condition for a WMO code,
// or "Unknown" for codes outside the table.
func WeatherConditionFromCode(code int) string {
	if c, ok := wmoConditions[code]; ok {
		return c
	}
	return "Unknown"
}
