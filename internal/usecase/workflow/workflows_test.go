package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weatherdine/internal/domain"
)

type fakeWeather struct {
	report *domain.WeatherReport
	err    error
	asked  []string
}

func (f *fakeWeather) Current(_ context.Context, location string) (*domain.WeatherReport, error) {
	f.asked = append(f.asked, location)
	if f.err != nil {
		return nil, f.err
	}
	r := *f.report
	return &r, nil
}

type fakeFinder struct {
	result *domain.RestaurantSearchResult
	err    error
	query  domain.RestaurantQuery
}

func (f *fakeFinder) Find(_ context.Context, q domain.RestaurantQuery) (*domain.RestaurantSearchResult, error) {
	f.query = q
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeAgent struct {
	reply  string
	err    error
	prompt string
}

func (a *fakeAgent) Generate(_ context.Context, _, _, msg string) (string, error) {
	a.prompt = msg
	return a.reply, a.err
}

func ptr(f float64) *float64 { return &f }

func rainyReport() *domain.WeatherReport {
	return &domain.WeatherReport{
		Location:    "Seattle",
		Temperature: 11.5,
		FeelsLike:   9,
		Humidity:    88,
		WindSpeed:   14.2,
		WindGust:    25,
		Conditions:  "Moderate rain",
	}
}

func fourRestaurants() *domain.RestaurantSearchResult {
	rec := domain.WeatherRecommendation("Moderate rain")
	return &domain.RestaurantSearchResult{
		Restaurants: []domain.Restaurant{
			{Name: "Pho Bac", Address: "1314 S Jackson St, Seattle", Cuisine: "vietnamese", Distance: ptr(0.4), WeatherRecommendation: rec},
			{Name: "Canlis", Address: "2576 Aurora Ave N, Seattle", Distance: ptr(1.25)},
			{Name: "Tilikum Place", Address: "407 Cedar St, Seattle", Cuisine: "cafe", WeatherRecommendation: rec},
			{Name: "Dick's", Address: "111 NE 45th St, Seattle", Cuisine: "burger"},
		},
		Location:   "Seattle",
		TotalFound: 4,
	}
}

func runWorkflow(t *testing.T, wf Workflow, input string) *domain.WorkflowRun {
	t.Helper()
	m := NewManager(newMemRunStore(), ManagerConfig{Timeout: time.Second, MaxRunning: 1}, nil, newTestLogger())
	require.NoError(t, m.Register(wf))
	run, err := m.Run(context.Background(), wf.ID, json.RawMessage(input))
	require.NoError(t, err)
	return run
}

func TestRestaurantWorkflow(t *testing.T) {
	weather := &fakeWeather{report: rainyReport()}
	finder := &fakeFinder{result: fourRestaurants()}

	run := runWorkflow(t, NewRestaurantWorkflow(weather, finder), `{"location":"Seattle"}`)
	require.Equal(t, domain.RunStatusCompleted, run.Status, run.Error)

	assert.Equal(t, []string{"Seattle"}, weather.asked)
	assert.Equal(t, domain.RestaurantQuery{
		Location:          "Seattle",
		MaxResults:        5,
		ConsiderWeather:   true,
		WeatherConditions: "Moderate rain",
	}, finder.query)

	require.Len(t, run.Steps, 3)
	assert.Equal(t, "get-weather-data", run.Steps[0].StepID)
	assert.Equal(t, "get-restaurant-recommendations", run.Steps[1].StepID)
	assert.Equal(t, "generate-combined-recommendations", run.Steps[2].StepID)

	var wd WeatherData
	require.NoError(t, json.Unmarshal(run.Steps[0].Output, &wd))
	assert.Equal(t, WeatherData{
		Temperature: 11.5, FeelsLike: 9, Humidity: 88, WindSpeed: 14.2, WindGust: 25,
		Conditions: "Moderate rain", Location: "Seattle",
	}, wd)

	var rd RestaurantData
	require.NoError(t, json.Unmarshal(run.Steps[1].Output, &rd))
	assert.Equal(t, wd, rd.Weather)
	assert.Equal(t, 4, rd.TotalFound)
	assert.Len(t, rd.Restaurants, 4)

	var out CombinedRecommendation
	require.NoError(t, json.Unmarshal(run.Output, &out))
	assert.Equal(t, "Current weather in Seattle: Moderate rain, 11.5°C (feels like 9°C)", out.WeatherSummary)
	assert.Equal(t, "Seattle", out.Location)

	require.Len(t, out.TopRestaurants, 3)
	assert.Equal(t, "Pho Bac", out.TopRestaurants[0].Name)
	assert.Equal(t, domain.WeatherRecommendation("Moderate rain"), out.TopRestaurants[0].WhyRecommended)
	assert.Equal(t, "Great dining option", out.TopRestaurants[1].WhyRecommended)
	assert.Empty(t, out.TopRestaurants[1].WeatherRecommendation)
	require.NotNil(t, out.TopRestaurants[1].Distance)
	assert.InDelta(t, 1.25, *out.TopRestaurants[1].Distance, 1e-9)
	assert.Nil(t, out.TopRestaurants[2].Distance)

	text := out.DiningRecommendations
	assert.Contains(t, text, "Perfect for indoor dining with cozy atmosphere")
	assert.Contains(t, text, "Found 4 restaurants near Seattle.")
	assert.Contains(t, text, "1. Pho Bac - vietnamese\n   Distance: 0.4 km")
	assert.Contains(t, text, "2. Canlis\n   Distance: 1.25 km\n   Why recommended: Great dining option")
	assert.NotContains(t, text, "Dick's")
}

func TestRestaurantWorkflowNoRestaurants(t *testing.T) {
	weather := &fakeWeather{report: &domain.WeatherReport{Temperature: 30, FeelsLike: 33, Conditions: "Clear sky"}}
	finder := &fakeFinder{result: &domain.RestaurantSearchResult{Location: "Nowhere"}}

	run := runWorkflow(t, NewRestaurantWorkflow(weather, finder), `{"location":"Nowhere"}`)
	require.Equal(t, domain.RunStatusCompleted, run.Status, run.Error)

	var out CombinedRecommendation
	require.NoError(t, json.Unmarshal(run.Output, &out))
	assert.Empty(t, out.TopRestaurants)
	assert.Equal(t, "Current weather in Nowhere: Clear sky, 30°C (feels like 33°C)", out.WeatherSummary)
	assert.Contains(t, out.DiningRecommendations, "Great for outdoor dining or restaurants with patios")
	assert.True(t, strings.HasSuffix(out.DiningRecommendations, "No restaurants were found near Nowhere."))
}

func TestRestaurantWorkflowFailures(t *testing.T) {
	t.Run("weather unavailable", func(t *testing.T) {
		weather := &fakeWeather{err: domain.NewSubSystemError("geocoding", "Geocoder.Search", domain.ErrNotFound, "Atlantis")}
		finder := &fakeFinder{result: fourRestaurants()}

		run := runWorkflow(t, NewRestaurantWorkflow(weather, finder), `{"location":"Atlantis"}`)
		assert.Equal(t, domain.RunStatusFailed, run.Status)
		assert.Len(t, run.Steps, 1)
		assert.Contains(t, run.Error, "Atlantis")
		assert.Empty(t, finder.query.Location, "finder must not run after a failed weather step")
	})

	t.Run("finder error", func(t *testing.T) {
		weather := &fakeWeather{report: rainyReport()}
		finder := &fakeFinder{err: errors.New("places down")}

		run := runWorkflow(t, NewRestaurantWorkflow(weather, finder), `{"location":"Seattle"}`)
		assert.Equal(t, domain.RunStatusFailed, run.Status)
		assert.Len(t, run.Steps, 2)
		assert.Contains(t, run.Error, "places down")
	})

	t.Run("empty location", func(t *testing.T) {
		weather := &fakeWeather{report: rainyReport()}
		run := runWorkflow(t, NewRestaurantWorkflow(weather, &fakeFinder{}), `{"location":""}`)
		assert.Equal(t, domain.RunStatusFailed, run.Status)
		assert.Empty(t, weather.asked)
	})
}

func TestWeatherWorkflow(t *testing.T) {
	weather := &fakeWeather{report: rainyReport()}
	agent := &fakeAgent{reply: "  Visit the Pike Place Market under cover.\n"}

	run := runWorkflow(t, NewWeatherWorkflow(weather, agent), `{"city":"seattle"}`)
	require.Equal(t, domain.RunStatusCompleted, run.Status, run.Error)
	require.Len(t, run.Steps, 2)

	var f Forecast
	require.NoError(t, json.Unmarshal(run.Steps[0].Output, &f))
	assert.Equal(t, "Seattle", f.Location)
	assert.Equal(t, "Moderate rain", f.Conditions)

	assert.Contains(t, agent.prompt, "weather in Seattle")
	assert.Contains(t, agent.prompt, "Conditions: Moderate rain")
	assert.Contains(t, agent.prompt, "Temperature: 11.5°C (feels like 9°C)")

	var plan ActivityPlan
	require.NoError(t, json.Unmarshal(run.Output, &plan))
	assert.Equal(t, "Visit the Pike Place Market under cover.", plan.Activities)
}

func TestWeatherWorkflowAgentFailures(t *testing.T) {
	tests := []struct {
		name  string
		agent *fakeAgent
		want  string
	}{
		{"error", &fakeAgent{err: domain.ErrRateLimit}, "rate limit"},
		{"blank reply", &fakeAgent{reply: "  "}, "no suggestions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := runWorkflow(t, NewWeatherWorkflow(&fakeWeather{report: rainyReport()}, tt.agent), `{"city":"Seattle"}`)
			assert.Equal(t, domain.RunStatusFailed, run.Status)
			assert.Contains(t, run.Error, tt.want)
		})
	}
}
