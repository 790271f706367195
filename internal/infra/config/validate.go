package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateAgent(cfg, ve)
	validateLLM(cfg, ve)
	validateSources(cfg, ve)
	validateStorage(cfg, ve)
	validateWorkflow(cfg, ve)
	validateScheduler(cfg, ve)
	validateGateway(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateAgent(cfg *Config, ve *ValidationError) {
	if cfg.Agent.MaxIterations <= 0 {
		ve.Add("agent.max_iterations must be > 0")
	}
	if cfg.Agent.Timeout <= 0 {
		ve.Add("agent.timeout must be > 0")
	}
	if cfg.Agent.Window.LastMessages < 0 {
		ve.Add("agent.window.last_messages must be >= 0")
	}
	if cfg.Agent.Window.MaxTokens < 0 {
		ve.Add("agent.window.max_tokens must be >= 0")
	}
	if cfg.Agent.ToolRateLimit < 0 {
		ve.Add("agent.tool_rate_limit must be >= 0")
	}
}

var validProviderTypes = map[string]bool{
	"openai":     true,
	"openrouter": true,
	"ollama":     true,
	"bedrock":    true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.DefaultProvider == "" {
		ve.Add("llm.default_provider must not be empty")
	}

	if len(cfg.LLM.Providers) == 0 {
		return
	}

	seen := make(map[string]bool)
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if p.Type != "" && !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d].type %q is invalid (want: openai, openrouter, ollama, bedrock)", i, p.Type)
		}
		if p.APIKey == "" && p.Type != "bedrock" && p.Type != "ollama" {
			ve.Add("llm.providers[%d] (%s): api_key is empty (set via %sLLM_PROVIDER_%s_API_KEY)",
				i, p.Name, envPrefix, strings.ToUpper(p.Name))
		}
		if p.Type == "bedrock" && p.Region == "" {
			ve.Add("llm.providers[%d] (%s): region is required for bedrock provider", i, p.Name)
		}
	}

	if cfg.LLM.DefaultProvider != "" && cfg.LLM.Provider(cfg.LLM.DefaultProvider) == nil {
		ve.Add("llm.default_provider %q does not match any configured provider", cfg.LLM.DefaultProvider)
	}
	if cfg.LLM.Failover.Enabled {
		for _, name := range cfg.LLM.Failover.Fallbacks {
			if !seen[name] {
				ve.Add("llm.failover.fallbacks: unknown provider %q", name)
			}
		}
	}
}

func validateSources(cfg *Config, ve *ValidationError) {
	sources := map[string]SourceConfig{
		"geocoding":   cfg.Sources.Geocoding,
		"forecast":    cfg.Sources.Forecast,
		"opentripmap": cfg.Sources.OpenTripMap,
	}
	for name, s := range sources {
		if s.BaseURL == "" {
			ve.Add("sources.%s.base_url is required", name)
		} else if u, err := url.Parse(s.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			ve.Add("sources.%s.base_url %q must be an http(s) URL", name, s.BaseURL)
		}
		if s.Timeout < 0 {
			ve.Add("sources.%s.timeout must be >= 0", name)
		}
		if s.RateLimit < 0 {
			ve.Add("sources.%s.rate_limit must be >= 0", name)
		}
	}
	if cfg.Sources.WeatherCacheTTL < 0 {
		ve.Add("sources.weather_cache_ttl must be >= 0")
	}
	if cfg.Sources.SearchRadius < 0 {
		ve.Add("sources.search_radius must be >= 0")
	}
}

func validateStorage(cfg *Config, ve *ValidationError) {
	if cfg.Storage.Path == "" {
		ve.Add("storage.path is required")
	}
	if cfg.Storage.MaxRuns < 0 {
		ve.Add("storage.max_runs must be >= 0")
	}
}

func validateWorkflow(cfg *Config, ve *ValidationError) {
	if cfg.Workflow.Timeout <= 0 {
		ve.Add("workflow.timeout must be > 0")
	}
	if cfg.Workflow.MaxRunning <= 0 {
		ve.Add("workflow.max_running must be > 0")
	}
}

func validateScheduler(cfg *Config, ve *ValidationError) {
	if !cfg.Scheduler.Enabled {
		return
	}
	for i, t := range cfg.Scheduler.Tasks {
		if t.Name == "" {
			ve.Add("scheduler.tasks[%d].name is required", i)
		}
		if t.Schedule == "" {
			ve.Add("scheduler.tasks[%d].schedule is required", i)
		} else if d, err := time.ParseDuration(t.Schedule); err == nil && d <= 0 {
			ve.Add("scheduler.tasks[%d].schedule duration must be > 0", i)
		}
		if t.Workflow == "" {
			ve.Add("scheduler.tasks[%d].workflow is required", i)
		}
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	if !cfg.Gateway.Enabled {
		return
	}
	if cfg.Gateway.Addr == "" {
		ve.Add("gateway.addr is required when gateway is enabled")
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Gateway.Addr); err != nil {
		ve.Add("gateway.addr %q is not a valid host:port", cfg.Gateway.Addr)
	}
	if cfg.Gateway.Auth.Type == "static" && len(cfg.Gateway.Auth.Tokens) == 0 {
		ve.Add("gateway.auth.tokens must not be empty when auth type is static")
	}
	for i, tok := range cfg.Gateway.Auth.Tokens {
		if tok.Token == "" {
			ve.Add("gateway.auth.tokens[%d].token must not be empty", i)
		}
	}
	if cfg.Gateway.MaxFrameBytes < 0 {
		ve.Add("gateway.max_frame_bytes must be >= 0")
	}
	for i, o := range cfg.Gateway.AllowedOrigins {
		if strings.TrimSpace(o) == "" {
			ve.Add("gateway.allowed_origins[%d] must not be empty", i)
		}
	}
}

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	validLogFormats = map[string]bool{"text": true, "json": true}
)

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	if !validLogFormats[cfg.Logger.Format] {
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	case "file":
		if cfg.Tracer.File == "" {
			ve.Add("tracer.file is required for the file exporter")
		}
	default:
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout, file)", cfg.Tracer.Exporter)
	}
	if cfg.Tracer.SampleRatio < 0 || cfg.Tracer.SampleRatio > 1 {
		ve.Add("tracer.sample_ratio must be between 0 and 1")
	}
}
