package domain

import (
	"context"
	"strings"
)

// DefaultRestaurantResults is used when a query does not set MaxResults.
const DefaultRestaurantResults = 5

// Restaurant is a single dining option returned to agents and workflows.
type Restaurant struct {
	Name                  string   `json:"name"`
	Address               string   `json:"address"`
	Cuisine               string   `json:"cuisine,omitempty"`
	Phone                 string   `json:"phone,omitempty"`
	Website               string   `json:"website,omitempty"`
	Rating                *float64 `json:"rating,omitempty"`
	PriceRange            string   `json:"priceRange,omitempty"`
	OpeningHours          string   `json:"openingHours,omitempty"`
	Distance              *float64 `json:"distance,omitempty"` // km, 2 decimals
	WeatherRecommendation string   `json:"weatherRecommendation,omitempty"`
}

// RestaurantQuery is the input to a restaurant search.
type RestaurantQuery struct {
	Location          string `json:"location"`
	Cuisine           string `json:"cuisine,omitempty"`
	MaxResults        int    `json:"maxResults,omitempty"`
	ConsiderWeather   bool   `json:"considerWeather,omitempty"`
	WeatherConditions string `json:"weatherConditions,omitempty"`
}

// RestaurantSearchResult is the output of a restaurant search.
type RestaurantSearchResult struct {
	Restaurants []Restaurant `json:"restaurants"`
	Location    string       `json:"location"`
	TotalFound  int          `json:"totalFound"`
}

// PlaceSearch describes a proximity search against a place directory.
type PlaceSearch struct {
	Kind    string // e.g. "restaurant"
	Center  Coordinates
	RadiusM int
	Limit   int
}

// PlaceProperties holds the descriptive fields a place directory returns.
// Empty strings mean the field was absent.
type PlaceProperties struct {
	XID          string   `json:"xid"`
	Name         string   `json:"name"`
	Street       string   `json:"street,omitempty"`
	HouseNumber  string   `json:"housenumber,omitempty"`
	City         string   `json:"city,omitempty"`
	Postcode     string   `json:"postcode,omitempty"`
	Cuisine      string   `json:"cuisine,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	Website      string   `json:"website,omitempty"`
	OpeningHours string   `json:"opening_hours,omitempty"`
	Rating       *float64 `json:"rating,omitempty"`
	PriceRange   string   `json:"price_range,omitempty"`
}

// PlaceFeature is one search hit with its position.
type PlaceFeature struct {
	Properties  PlaceProperties
	Coordinates Coordinates
}

// PlaceSource looks up places near a point and fetches per-place details.
type PlaceSource interface {
	Autosuggest(ctx context.Context, q PlaceSearch) ([]PlaceFeature, error)
	Details(ctx context.Context, xid string) (*PlaceProperties, error)
}

// Merge returns p with every non-empty field of override applied on top.
func (p PlaceProperties) Merge(override PlaceProperties) PlaceProperties {
	out := p
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&out.XID, override.XID)
	set(&out.Name, override.Name)
	set(&out.Street, override.Street)
	set(&out.HouseNumber, override.HouseNumber)
	set(&out.City, override.City)
	set(&out.Postcode, override.Postcode)
	set(&out.Cuisine, override.Cuisine)
	set(&out.Phone, override.Phone)
	set(&out.Website, override.Website)
	set(&out.OpeningHours, override.OpeningHours)
	set(&out.PriceRange, override.PriceRange)
	if override.Rating != nil {
		out.Rating = override.Rating
	}
	return out
}

// Address formats the postal fields as "<street> <housenumber>, <city> <postcode>".
// Missing parts are dropped without leaving stray separators.
func (p PlaceProperties) Address() string {
	line1 := strings.Join(strings.Fields(p.Street+" "+p.HouseNumber), " ")
	line2 := strings.Join(strings.Fields(p.City+" "+p.Postcode), " ")
	switch {
	case line1 == "":
		return line2
	case line2 == "":
		return line1
	}
	return line1 + ", " + line2
}

// weatherRule pairs condition keywords with two phrasings of the same advice.
type weatherRule struct {
	keywords       []string
	recommendation string
	reason         string
}

var weatherRules = []weatherRule{
	{
		keywords:       []string{"rain", "snow"},
		recommendation: "Perfect for indoor dining - cozy atmosphere recommended",
		reason:         "Perfect for indoor dining with cozy atmosphere",
	},
	{
		keywords:       []string{"sunny", "clear"},
		recommendation: "Great weather for outdoor dining - look for restaurants with patios",
		reason:         "Great for outdoor dining or restaurants with patios",
	},
	{
		keywords:       []string{"cold", "freezing"},
		recommendation: "Warm comfort food recommended - consider hot soups and stews",
		reason:         "Ideal for warm comfort food and hot beverages",
	},
	{
		keywords:       []string{"hot", "warm"},
		recommendation: "Light, refreshing options recommended - consider salads and cold drinks",
		reason:         "Perfect for light, refreshing options and cold drinks",
	},
}

const (
	defaultRecommendation = "Weather-appropriate dining options available"
	defaultReason         = "Suitable for various dining preferences"
)

func matchWeatherRule(conditions string) (weatherRule, bool) {
	lower := strings.ToLower(conditions)
	for _, r := range weatherRules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r, true
			}
		}
	}
	return weatherRule{}, false
}

// WeatherRecommendation maps a free-text weather description to dining advice.
// The first matching keyword group wins.
func WeatherRecommendation(conditions string) string {
	if r, ok := matchWeatherRule(conditions); ok {
		return r.recommendation
	}
	return defaultRecommendation
}

// DiningReason is the short-form counterpart of WeatherRecommendation.
func DiningReason(conditions string) string {
	if r, ok := matchWeatherRule(conditions); ok {
		return r.reason
	}
	return defaultReason
}
