package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"weatherdine/internal/domain"
)

// RestaurantWorkflowID identifies the weather-aware dining workflow.
const RestaurantWorkflowID = "restaurant-workflow"

const topPicks = 3

// WeatherLookup returns current conditions for a place name.
type WeatherLookup interface {
	Current(ctx context.Context, location string) (*domain.WeatherReport, error)
}

// RestaurantFinder searches restaurants near a place name.
type RestaurantFinder interface {
	Find(ctx context.Context, q domain.RestaurantQuery) (*domain.RestaurantSearchResult, error)
}

// WeatherData is the output of the get-weather-data step.
type WeatherData struct {
	Temperature float64 `json:"temperature"`
	FeelsLike   float64 `json:"feelsLike"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"windSpeed"`
	WindGust    float64 `json:"windGust"`
	Conditions  string  `json:"conditions"`
	Location    string  `json:"location"`
}

// RestaurantData is the output of the get-restaurant-recommendations step.
type RestaurantData struct {
	Weather     WeatherData         `json:"weather"`
	Restaurants []domain.Restaurant `json:"restaurants"`
	Location    string              `json:"location"`
	TotalFound  int                 `json:"totalFound"`
}

// TopRestaurant is one entry of the combined recommendation.
type TopRestaurant struct {
	Name                  string   `json:"name"`
	Cuisine               string   `json:"cuisine,omitempty"`
	Distance              *float64 `json:"distance,omitempty"`
	WeatherRecommendation string   `json:"weatherRecommendation,omitempty"`
	WhyRecommended        string   `json:"whyRecommended"`
}

// CombinedRecommendation is the final output of the restaurant workflow.
type CombinedRecommendation struct {
	WeatherSummary        string          `json:"weatherSummary"`
	DiningRecommendations string          `json:"diningRecommendations"`
	TopRestaurants        []TopRestaurant `json:"topRestaurants"`
	Location              string          `json:"location"`
}

const locationInputSchema = `{
  "type": "object",
  "properties": {
    "location": {"type": "string", "minLength": 1, "description": "The location to get weather and restaurant recommendations for"}
  },
  "required": ["location"]
}`

const weatherDataSchema = `{
  "type": "object",
  "properties": {
    "temperature": {"type": "number"},
    "feelsLike": {"type": "number"},
    "humidity": {"type": "number"},
    "windSpeed": {"type": "number"},
    "windGust": {"type": "number"},
    "conditions": {"type": "string"},
    "location": {"type": "string"}
  },
  "required": ["temperature", "feelsLike", "humidity", "windSpeed", "windGust", "conditions", "location"]
}`

const restaurantDataSchema = `{
  "type": "object",
  "properties": {
    "weather": {"type": "object"},
    "restaurants": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "address": {"type": "string"}
        },
        "required": ["name", "address"]
      }
    },
    "location": {"type": "string"},
    "totalFound": {"type": "integer", "minimum": 0}
  },
  "required": ["weather", "restaurants", "location", "totalFound"]
}`

const combinedRecommendationSchema = `{
  "type": "object",
  "properties": {
    "weatherSummary": {"type": "string"},
    "diningRecommendations": {"type": "string"},
    "topRestaurants": {
      "type": "array",
      "maxItems": 3,
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "whyRecommended": {"type": "string"}
        },
        "required": ["name", "whyRecommended"]
      }
    },
    "location": {"type": "string"}
  },
  "required": ["weatherSummary", "diningRecommendations", "topRestaurants", "location"]
}`

// NewRestaurantWorkflow builds the three-step weather, restaurants, and
// advice chain.
func NewRestaurantWorkflow(weather WeatherLookup, finder RestaurantFinder) Workflow {
	return Workflow{
		ID:           RestaurantWorkflowID,
		Description:  "Weather-aware restaurant recommendations for a location",
		InputSchema:  locationInputSchema,
		OutputSchema: combinedRecommendationSchema,
		Steps: []Step{
			{
				ID:           "get-weather-data",
				Description:  "Fetches current weather data for a location",
				InputSchema:  locationInputSchema,
				OutputSchema: weatherDataSchema,
				Run:          getWeatherData(weather),
			},
			{
				ID:           "get-restaurant-recommendations",
				Description:  "Fetches restaurant recommendations with weather considerations",
				InputSchema:  weatherDataSchema,
				OutputSchema: restaurantDataSchema,
				Run:          getRestaurantRecommendations(finder),
			},
			{
				ID:           "generate-combined-recommendations",
				Description:  "Generates weather-aware dining recommendations",
				InputSchema:  restaurantDataSchema,
				OutputSchema: combinedRecommendationSchema,
				Run:          generateCombinedRecommendations,
			},
		},
	}
}

func getWeatherData(weather WeatherLookup) StepFunc {
	return func(ctx context.Context, sc StepContext, input json.RawMessage) (any, error) {
		in, err := decodeInput[struct {
			Location string `json:"location"`
		}](input)
		if err != nil {
			return nil, err
		}
		report, err := weather.Current(ctx, in.Location)
		if err != nil {
			return nil, err
		}
		sc.Logger.Debug("weather fetched", "location", in.Location, "conditions", report.Conditions)
		return WeatherData{
			Temperature: report.Temperature,
			FeelsLike:   report.FeelsLike,
			Humidity:    report.Humidity,
			WindSpeed:   report.WindSpeed,
			WindGust:    report.WindGust,
			Conditions:  report.Conditions,
			Location:    in.Location,
		}, nil
	}
}

func getRestaurantRecommendations(finder RestaurantFinder) StepFunc {
	return func(ctx context.Context, sc StepContext, input json.RawMessage) (any, error) {
		wd, err := decodeInput[WeatherData](input)
		if err != nil {
			return nil, err
		}
		res, err := finder.Find(ctx, domain.RestaurantQuery{
			Location:          wd.Location,
			MaxResults:        domain.DefaultRestaurantResults,
			ConsiderWeather:   true,
			WeatherConditions: wd.Conditions,
		})
		if err != nil {
			return nil, err
		}
		sc.Logger.Debug("restaurants found", "location", wd.Location, "count", res.TotalFound)
		restaurants := res.Restaurants
		if restaurants == nil {
			restaurants = []domain.Restaurant{}
		}
		return RestaurantData{
			Weather:     wd,
			Restaurants: restaurants,
			Location:    wd.Location,
			TotalFound:  res.TotalFound,
		}, nil
	}
}

func generateCombinedRecommendations(_ context.Context, _ StepContext, input json.RawMessage) (any, error) {
	rd, err := decodeInput[RestaurantData](input)
	if err != nil {
		return nil, err
	}

	n := min(len(rd.Restaurants), topPicks)
	top := make([]TopRestaurant, 0, n)
	for _, r := range rd.Restaurants[:n] {
		why := r.WeatherRecommendation
		if why == "" {
			why = "Great dining option"
		}
		top = append(top, TopRestaurant{
			Name:                  r.Name,
			Cuisine:               r.Cuisine,
			Distance:              r.Distance,
			WeatherRecommendation: r.WeatherRecommendation,
			WhyRecommended:        why,
		})
	}

	w := rd.Weather
	return CombinedRecommendation{
		WeatherSummary: fmt.Sprintf("Current weather in %s: %s, %s°C (feels like %s°C)",
			rd.Location, w.Conditions, formatNumber(w.Temperature), formatNumber(w.FeelsLike)),
		DiningRecommendations: diningAdvice(rd, top),
		TopRestaurants:        top,
		Location:              rd.Location,
	}, nil
}

// diningAdvice renders the human-readable recommendation text.
func diningAdvice(rd RestaurantData, top []TopRestaurant) string {
	w := rd.Weather
	var b strings.Builder
	b.WriteString("Based on the current weather conditions, here are some great dining options:\n\n")

	b.WriteString("🌤️ WEATHER SUMMARY\n")
	fmt.Fprintf(&b, "%s, %s°C (feels like %s°C) in %s.\n\n",
		w.Conditions, formatNumber(w.Temperature), formatNumber(w.FeelsLike), rd.Location)

	b.WriteString("🍽️ DINING RECOMMENDATIONS\n")
	b.WriteString(domain.DiningReason(w.Conditions))
	b.WriteString(".\n")
	switch rd.TotalFound {
	case 0:
		fmt.Fprintf(&b, "No restaurants were found near %s.", rd.Location)
		return b.String()
	case 1:
		fmt.Fprintf(&b, "Found 1 restaurant near %s.\n\n", rd.Location)
	default:
		fmt.Fprintf(&b, "Found %d restaurants near %s.\n\n", rd.TotalFound, rd.Location)
	}

	b.WriteString("🏆 TOP RESTAURANT PICKS")
	for i, r := range top {
		fmt.Fprintf(&b, "\n%d. %s", i+1, r.Name)
		if r.Cuisine != "" {
			fmt.Fprintf(&b, " - %s", r.Cuisine)
		}
		if r.Distance != nil {
			fmt.Fprintf(&b, "\n   Distance: %s km", formatNumber(*r.Distance))
		}
		fmt.Fprintf(&b, "\n   Why recommended: %s", r.WhyRecommended)
	}
	return b.String()
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
