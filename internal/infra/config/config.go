package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// envPrefix is prepended to every environment override.
const envPrefix = "WEATHERDINE_"

// Config is the top-level application configuration.
type Config struct {
	Agent     AgentConfig     `yaml:"agent"`
	LLM       LLMConfig       `yaml:"llm"`
	Sources   SourcesConfig   `yaml:"sources"`
	Storage   StorageConfig   `yaml:"storage"`
	Memory    MemoryConfig    `yaml:"memory"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
}

// AgentConfig holds agent behavior settings shared by every catalog agent.
type AgentConfig struct {
	MaxIterations int           `yaml:"max_iterations"`
	Timeout       time.Duration `yaml:"timeout"`
	CatalogFile   string        `yaml:"catalog_file"` // optional agents.yaml overrides
	Window        WindowConfig  `yaml:"window"`
	// ToolRateLimit caps calls per tool per minute. 0 disables the limit.
	ToolRateLimit int           `yaml:"tool_rate_limit"`
}

// WindowConfig bounds how much history is replayed into a prompt.
type WindowConfig struct {
	LastMessages int    `yaml:"last_messages"`
	MaxTokens    int    `yaml:"max_tokens"`
	Encoding     string `yaml:"encoding"` // tiktoken model or encoding name
}

// FailoverConfig holds model failover settings.
type FailoverConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Fallbacks []string `yaml:"fallbacks"`
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	Failover        FailoverConfig       `yaml:"failover"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// Provider returns the provider named name, or nil.
func (c *LLMConfig) Provider(name string) *ProviderConfig {
	for i := range c.Providers {
		if c.Providers[i].Name == name {
			return &c.Providers[i]
		}
	}
	return nil
}

// CircuitBreakerConfig holds circuit breaker settings.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Region      string        `yaml:"region,omitempty"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// SourcesConfig configures the external data APIs.
type SourcesConfig struct {
	Geocoding       SourceConfig  `yaml:"geocoding"`
	Forecast        SourceConfig  `yaml:"forecast"`
	OpenTripMap     SourceConfig  `yaml:"opentripmap"`
	WeatherCacheTTL time.Duration `yaml:"weather_cache_ttl"`
	SearchRadius    int           `yaml:"search_radius"` // metres
}

// SourceConfig holds the HTTP settings for one data API.
type SourceConfig struct {
	BaseURL   string               `yaml:"base_url"`
	APIKey    string               `yaml:"api_key,omitempty"`
	Timeout   time.Duration        `yaml:"timeout"`
	RateLimit float64              `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Burst     int                  `yaml:"burst"`
	Breaker   CircuitBreakerConfig `yaml:"breaker"`
}

// StorageConfig holds SQLite settings for workflow runs.
type StorageConfig struct {
	Path    string `yaml:"path"` // ":memory:" keeps runs in-process
	MaxRuns int    `yaml:"max_runs"`
}

// MemoryConfig holds conversation memory settings.
type MemoryConfig struct {
	Enabled bool              `yaml:"enabled"`
	DataDir string            `yaml:"data_dir"`
	Path    string            `yaml:"path"`             // default DB file, relative to DataDir
	Agents  map[string]string `yaml:"agents,omitempty"` // agent ID -> DB file override
}

// WorkflowConfig holds workflow manager settings.
type WorkflowConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	MaxRunning int           `yaml:"max_running"`
}

// SchedulerConfig holds cron/scheduler settings.
type SchedulerConfig struct {
	Enabled bool                  `yaml:"enabled"`
	Tasks   []ScheduledTaskConfig `yaml:"tasks"`
}

// ScheduledTaskConfig defines a single scheduled workflow run.
type ScheduledTaskConfig struct {
	Name     string         `yaml:"name"`
	Schedule string         `yaml:"schedule"` // cron expression or duration string
	Workflow string         `yaml:"workflow"`
	Input    map[string]any `yaml:"input,omitempty"`
}

// GatewayConfig holds WebSocket/REST gateway settings.
type GatewayConfig struct {
	Enabled bool       `yaml:"enabled"`
	Addr    string     `yaml:"addr"`
	Auth    AuthConfig `yaml:"auth"`
	// AllowedOrigins are WebSocket origin patterns. Empty means loopback only.
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
	// MaxFrameBytes caps one inbound WebSocket frame. 0 uses the 1 MiB default.
	MaxFrameBytes int64 `yaml:"max_frame_bytes"`
}

// AuthConfig holds gateway authentication settings.
type AuthConfig struct {
	Type   string        `yaml:"type"` // "static" or ""
	Tokens []TokenConfig `yaml:"tokens,omitempty"`
}

// TokenConfig holds a single gateway auth token.
type TokenConfig struct {
	Token string `yaml:"token"`
	Name  string `yaml:"name"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`     // "noop", "stdout" or "file"
	File        string  `yaml:"file"`         // span output for the file exporter
	SampleRatio float64 `yaml:"sample_ratio"` // 0 samples everything
}

// defaultDataDir returns the persistent data directory under $HOME/.weatherdine.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".weatherdine")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	dataDir := defaultDataDir()
	breaker := CircuitBreakerConfig{
		Enabled:     true,
		MaxFailures: 5,
		Timeout:     30 * time.Second,
		Interval:    60 * time.Second,
	}
	return &Config{
		Agent: AgentConfig{
			MaxIterations: 10,
			Timeout:       120 * time.Second,
			Window: WindowConfig{
				LastMessages: 20,
				MaxTokens:    8000,
				Encoding:     "gpt-4o-mini",
			},
			ToolRateLimit: 60,
		},
		LLM: LLMConfig{
			DefaultProvider: "openai",
			CircuitBreaker:  breaker,
		},
		Sources: SourcesConfig{
			Geocoding: SourceConfig{
				BaseURL: "https://geocoding-api.open-meteo.com",
				Timeout: 10 * time.Second,
				Breaker: breaker,
			},
			Forecast: SourceConfig{
				BaseURL: "https://api.open-meteo.com",
				Timeout: 10 * time.Second,
				Breaker: breaker,
			},
			OpenTripMap: SourceConfig{
				BaseURL:   "https://api.opentripmap.com",
				Timeout:   15 * time.Second,
				RateLimit: 10,
				Burst:     10,
				Breaker:   breaker,
			},
			WeatherCacheTTL: 10 * time.Minute,
			SearchRadius:    5000,
		},
		Storage: StorageConfig{
			Path:    filepath.Join(dataDir, "workflows.db"),
			MaxRuns: 100,
		},
		Memory: MemoryConfig{
			Enabled: true,
			DataDir: dataDir,
			Path:    "weatherdine.db",
			Agents: map[string]string{
				"shopping": "shopping-agent.db",
			},
		},
		Workflow: WorkflowConfig{
			Timeout:    120 * time.Second,
			MaxRunning: 5,
		},
		Gateway: GatewayConfig{
			Enabled: false,
			Addr:    "127.0.0.1:8090",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies .env and env var overrides, and
// decrypts secrets. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	// A missing .env is expected outside development.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		if err := validatePermissions(absPath); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv(envPrefix + "CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps WEATHERDINE_* env vars to config fields.
// OPENAI_API_KEY and OPENTRIPMAP_API_KEY are honoured as fallbacks.
func ApplyEnvOverrides(cfg *Config) {
	envString(&cfg.LLM.DefaultProvider, "LLM_DEFAULT_PROVIDER")
	envString(&cfg.Logger.Level, "LOGGER_LEVEL")
	envString(&cfg.Logger.Format, "LOGGER_FORMAT")
	envBool(&cfg.Tracer.Enabled, "TRACER_ENABLED")
	envString(&cfg.Tracer.Exporter, "TRACER_EXPORTER")
	envString(&cfg.Tracer.File, "TRACER_FILE")

	envInt(&cfg.Agent.MaxIterations, "AGENT_MAX_ITERATIONS")
	envDuration(&cfg.Agent.Timeout, "AGENT_TIMEOUT")
	envString(&cfg.Agent.CatalogFile, "AGENT_CATALOG_FILE")
	envInt(&cfg.Agent.Window.LastMessages, "AGENT_WINDOW_LAST_MESSAGES")
	envInt(&cfg.Agent.Window.MaxTokens, "AGENT_WINDOW_MAX_TOKENS")
	envInt(&cfg.Agent.ToolRateLimit, "AGENT_TOOL_RATE_LIMIT")

	envString(&cfg.Sources.Geocoding.BaseURL, "SOURCES_GEOCODING_BASE_URL")
	envString(&cfg.Sources.Forecast.BaseURL, "SOURCES_FORECAST_BASE_URL")
	envString(&cfg.Sources.OpenTripMap.BaseURL, "SOURCES_OPENTRIPMAP_BASE_URL")
	envString(&cfg.Sources.OpenTripMap.APIKey, "SOURCES_OPENTRIPMAP_API_KEY")
	envDuration(&cfg.Sources.WeatherCacheTTL, "SOURCES_WEATHER_CACHE_TTL")
	if cfg.Sources.OpenTripMap.APIKey == "" {
		cfg.Sources.OpenTripMap.APIKey = os.Getenv("OPENTRIPMAP_API_KEY")
	}

	envString(&cfg.Storage.Path, "STORAGE_PATH")
	envInt(&cfg.Storage.MaxRuns, "STORAGE_MAX_RUNS")
	envBool(&cfg.Memory.Enabled, "MEMORY_ENABLED")
	envString(&cfg.Memory.DataDir, "MEMORY_DATA_DIR")
	envDuration(&cfg.Workflow.Timeout, "WORKFLOW_TIMEOUT")
	envInt(&cfg.Workflow.MaxRunning, "WORKFLOW_MAX_RUNNING")

	envBool(&cfg.Gateway.Enabled, "GATEWAY_ENABLED")
	envString(&cfg.Gateway.Addr, "GATEWAY_ADDR")
	if v := os.Getenv(envPrefix + "GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Auth.Type = "static"
		cfg.Gateway.Auth.Tokens = append(cfg.Gateway.Auth.Tokens, TokenConfig{Token: v, Name: "env"})
	}

	// With no providers configured, an OpenAI key alone is enough to run.
	if len(cfg.LLM.Providers) == 0 {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.LLM.Providers = append(cfg.LLM.Providers, ProviderConfig{
				Name:   "openai",
				Type:   "openai",
				APIKey: key,
				Model:  "gpt-4o-mini",
			})
		}
	}

	// Per-provider API key overrides: WEATHERDINE_LLM_PROVIDER_<NAME>_API_KEY
	for i := range cfg.LLM.Providers {
		envString(&cfg.LLM.Providers[i].APIKey,
			fmt.Sprintf("LLM_PROVIDER_%s_API_KEY", strings.ToUpper(cfg.LLM.Providers[i].Name)))
	}
}

func envString(dst *string, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

func envBool(dst *bool, key string) {
	switch os.Getenv(envPrefix + key) {
	case "true":
		*dst = true
	case "false":
		*dst = false
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}

func envDuration(dst *time.Duration, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			*dst = d
		}
	}
}

// decryptSecrets finds "enc:..." values in secret fields and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	type secret struct {
		name  string
		field *string
	}
	var secrets []secret
	for i := range cfg.LLM.Providers {
		secrets = append(secrets, secret{"provider " + cfg.LLM.Providers[i].Name + " api_key", &cfg.LLM.Providers[i].APIKey})
	}
	secrets = append(secrets, secret{"opentripmap api_key", &cfg.Sources.OpenTripMap.APIKey})
	for i := range cfg.Gateway.Auth.Tokens {
		secrets = append(secrets, secret{"gateway auth token " + cfg.Gateway.Auth.Tokens[i].Name, &cfg.Gateway.Auth.Tokens[i].Token})
	}

	for _, s := range secrets {
		if !strings.HasPrefix(*s.field, "enc:") {
			continue
		}
		decrypted, err := DecryptValue(strings.TrimPrefix(*s.field, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		*s.field = decrypted
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
// The result is hex(salt) + ":" + hex(nonce+ciphertext), without the "enc:" prefix.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(sealed), nil
}

// DecryptValue decrypts a value produced by EncryptValue.
func DecryptValue(encrypted, passphrase string) (string, error) {
	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions rejects config files writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
