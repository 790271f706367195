package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"weatherdine/internal/domain"
	"weatherdine/internal/infra/tracer"
)

// WeatherLookup returns current conditions for a place name.
type WeatherLookup interface {
	Current(ctx context.Context, location string) (*domain.WeatherReport, error)
}

// WeatherTool implements get-weather.
type WeatherTool struct {
	lookup WeatherLookup
	logger *slog.Logger
}

// NewWeatherTool creates the get-weather tool.
func NewWeatherTool(lookup WeatherLookup, logger *slog.Logger) *WeatherTool {
	return &WeatherTool{lookup: lookup, logger: logger}
}

func (t *WeatherTool) Name() string        { return domain.ToolGetWeather }
func (t *WeatherTool) Description() string { return "Get current weather for a location" }

func (t *WeatherTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"location": {"type": "string", "minLength": 1, "description": "City name"}
			},
			"required": ["location"]
		}`),
	}
}

type weatherParams struct {
	Location string `json:"location"`
}

func (t *WeatherTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.get_weather", t.logger, params,
		func(ctx context.Context, span trace.Span, p weatherParams) (any, error) {
			if err := new(Checks).Place("location", p.Location).Err(); err != nil {
				return ErrResult("%v", err)
			}
			span.SetAttributes(tracer.StringAttr("tool.location", p.Location))

			report, err := t.lookup.Current(ctx, p.Location)
			if err != nil {
				return nil, err
			}
			return report, nil
		},
	)
}
