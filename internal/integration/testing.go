package integration

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"weatherdine/internal/adapter/webapi"
	"weatherdine/internal/infra/config"
)

// Config holds integration test configuration from environment
type Config struct {
	OpenAIKey      string
	OpenAIModel    string
	OpenTripMapKey string
	TestTimeout    time.Duration
}

// LoadConfig loads integration test configuration from environment
func LoadConfig() *Config {
	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Config{
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    model,
		OpenTripMapKey: os.Getenv("OPENTRIPMAP_API_KEY"),
		TestTimeout:    60 * time.Second,
	}
}

// SkipIfNoAPIKey skips the test if the required API key is not set
func SkipIfNoAPIKey(t *testing.T, key, name string) {
	t.Helper()
	if key == "" {
		t.Skipf("Skipping %s integration test: %s_API_KEY not set", name, name)
	}
}

// SkipIfShort skips integration tests in short mode
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// NewTestContext creates a context with timeout for integration tests
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// Logger returns a logger that prints only when the test runs with -v.
func Logger() *slog.Logger {
	if testing.Verbose() {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Sources returns webapi clients for the default public endpoints.
func Sources(log *slog.Logger) (geocoding, forecast, places *webapi.Client) {
	d := config.Defaults().Sources
	return webapi.New("geocoding", d.Geocoding, log),
		webapi.New("weather", d.Forecast, log),
		webapi.New("places", d.OpenTripMap, log)
}
