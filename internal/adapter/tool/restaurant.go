package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"weatherdine/internal/domain"
	"weatherdine/internal/infra/tracer"
)

const maxRestaurantResults = 20

// RestaurantFinder searches restaurants near a place name.
type RestaurantFinder interface {
	Find(ctx context.Context, q domain.RestaurantQuery) (*domain.RestaurantSearchResult, error)
}

// RestaurantTool implements find-restaurants.
type RestaurantTool struct {
	finder RestaurantFinder
	logger *slog.Logger
}

// NewRestaurantTool creates the find-restaurants tool.
func NewRestaurantTool(finder RestaurantFinder, logger *slog.Logger) *RestaurantTool {
	return &RestaurantTool{finder: finder, logger: logger}
}

func (t *RestaurantTool) Name() string { return domain.ToolFindRestaurants }
func (t *RestaurantTool) Description() string {
	return "Find restaurants in a location with optional weather-based recommendations"
}

func (t *RestaurantTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"location": {"type": "string", "minLength": 1, "description": "City name or address"},
				"cuisine": {"type": "string", "description": "Preferred cuisine type (e.g., Italian, Chinese, etc.)"},
				"maxResults": {"type": "integer", "minimum": 1, "maximum": 20, "description": "Maximum number of restaurants to return (default: 5)"},
				"considerWeather": {"type": "boolean", "description": "Whether to consider weather conditions for recommendations"},
				"weatherConditions": {"type": "string", "description": "Current weather conditions (if considerWeather is true)"}
			},
			"required": ["location"]
		}`),
	}
}

func (t *RestaurantTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.find_restaurants", t.logger, params,
		func(ctx context.Context, span trace.Span, q domain.RestaurantQuery) (any, error) {
			if q.MaxResults == 0 {
				q.MaxResults = domain.DefaultRestaurantResults
			}
			checks := new(Checks).
				Place("location", q.Location).
				MaxLen("cuisine", q.Cuisine, 60).
				MaxLen("weatherConditions", q.WeatherConditions, 120).
				Range("maxResults", q.MaxResults, 1, maxRestaurantResults)
			if err := checks.Err(); err != nil {
				return ErrResult("%v", err)
			}
			span.SetAttributes(
				tracer.StringAttr("tool.location", q.Location),
				tracer.StringAttr("tool.cuisine", q.Cuisine),
			)

			res, err := t.finder.Find(ctx, q)
			if err != nil {
				return nil, err
			}
			return res, nil
		},
	)
}
