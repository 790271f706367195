package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"weatherdine/internal/domain"
)

// WeatherWorkflowID identifies the weather and activity planning workflow.
const WeatherWorkflowID = "weather-workflow"

// AgentRunner produces a reply from an agent for a single message.
type AgentRunner interface {
	Generate(ctx context.Context, threadID, resourceID, userMsg string) (string, error)
}

// Forecast is the output of the fetch-weather step.
type Forecast struct {
	Location    string  `json:"location"`
	Temperature float64 `json:"temperature"`
	FeelsLike   float64 `json:"feelsLike"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"windSpeed"`
	WindGust    float64 `json:"windGust"`
	Conditions  string  `json:"conditions"`
}

// ActivityPlan is the output of the plan-activities step.
type ActivityPlan struct {
	Activities string `json:"activities"`
}

const cityInputSchema = `{
  "type": "object",
  "properties": {
    "city": {"type": "string", "minLength": 1, "description": "The city to get the weather for"}
  },
  "required": ["city"]
}`

const forecastSchema = `{
  "type": "object",
  "properties": {
    "location": {"type": "string"},
    "temperature": {"type": "number"},
    "feelsLike": {"type": "number"},
    "humidity": {"type": "number"},
    "windSpeed": {"type": "number"},
    "windGust": {"type": "number"},
    "conditions": {"type": "string"}
  },
  "required": ["location", "temperature", "conditions"]
}`

const activityPlanSchema = `{
  "type": "object",
  "properties": {
    "activities": {"type": "string", "minLength": 1}
  },
  "required": ["activities"]
}`

// NewWeatherWorkflow builds the fetch-weather then plan-activities chain.
// agent is asked for suggestions on a fresh thread per run.
func NewWeatherWorkflow(weather WeatherLookup, agent AgentRunner) Workflow {
	return Workflow{
		ID:           WeatherWorkflowID,
		Description:  "Fetches the weather for a city and suggests activities",
		InputSchema:  cityInputSchema,
		OutputSchema: activityPlanSchema,
		Steps: []Step{
			{
				ID:           "fetch-weather",
				Description:  "Fetches current weather for a given city",
				InputSchema:  cityInputSchema,
				OutputSchema: forecastSchema,
				Run:          fetchWeather(weather),
			},
			{
				ID:           "plan-activities",
				Description:  "Suggests activities based on weather conditions",
				InputSchema:  forecastSchema,
				OutputSchema: activityPlanSchema,
				Run:          planActivities(agent),
			},
		},
	}
}

func fetchWeather(weather WeatherLookup) StepFunc {
	return func(ctx context.Context, _ StepContext, input json.RawMessage) (any, error) {
		in, err := decodeInput[struct {
			City string `json:"city"`
		}](input)
		if err != nil {
			return nil, err
		}
		report, err := weather.Current(ctx, in.City)
		if err != nil {
			return nil, err
		}
		loc := report.Location
		if loc == "" {
			loc = in.City
		}
		return Forecast{
			Location:    loc,
			Temperature: report.Temperature,
			FeelsLike:   report.FeelsLike,
			Humidity:    report.Humidity,
			WindSpeed:   report.WindSpeed,
			WindGust:    report.WindGust,
			Conditions:  report.Conditions,
		}, nil
	}
}

func planActivities(agent AgentRunner) StepFunc {
	return func(ctx context.Context, sc StepContext, input json.RawMessage) (any, error) {
		f, err := decodeInput[Forecast](input)
		if err != nil {
			return nil, err
		}
		reply, err := agent.Generate(ctx, "", "", activityPrompt(f))
		if err != nil {
			return nil, err
		}
		reply = strings.TrimSpace(reply)
		if reply == "" {
			return nil, domain.NewSubSystemError("workflow", "planActivities", domain.ErrProviderError, "agent returned no suggestions")
		}
		sc.Logger.Debug("activities planned", "location", f.Location, "chars", len(reply))
		return ActivityPlan{Activities: reply}, nil
	}
}

func activityPrompt(f Forecast) string {
	return fmt.Sprintf(`Based on the following weather in %s, suggest appropriate activities:

Conditions: %s
Temperature: %s°C (feels like %s°C)
Humidity: %s%%
Wind: %s km/h (gusts %s km/h)

List indoor and outdoor options, each with a short reason, and note any weather-specific precautions.`,
		f.Location, f.Conditions, formatNumber(f.Temperature), formatNumber(f.FeelsLike),
		formatNumber(f.Humidity), formatNumber(f.WindSpeed), formatNumber(f.WindGust))
}
