// Package config loads service configuration for the HTTP server. Settings
// come from an optional config/{ENV_NAME}.yaml, a .env file, and environment
// variables, with the environment taking precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mfukuda/weathergraph/internal/client"
	"github.com/mfukuda/weathergraph/internal/workflow"
)

// Config holds service configuration. The zero value is not usable; call
// Load.
type Config struct {
	ServerPort string

	APIKey           string
	ProviderURL      string
	ProviderTimeout  time.Duration
	ProviderUnits    string
	ProviderLanguage string

	// RequestTimeout bounds one HTTP request end to end and must exceed
	// ProviderTimeout so the provider call can finish or fail first.
	RequestTimeout time.Duration

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout    time.Duration
	DrainTimeout       time.Duration
	DrainCheckInterval time.Duration

	// CapacityWindow sizes the sliding window behind the rate-limit gauges.
	CapacityWindow time.Duration

	// DegradedWindow and DegradedErrorPct control when the health endpoint
	// reports degraded: error rate >= pct within the window.
	DegradedWindow   time.Duration
	DegradedErrorPct int

	// TrackedCities is the allow-list for per-city query metrics.
	TrackedCities []string

	// CityExtraction enables the free-text extraction stage on the serving
	// surface.
	CityExtraction bool
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Provider struct {
		URL      string `yaml:"url"`
		Timeout  string `yaml:"timeout"`
		Units    string `yaml:"units"`
		Language string `yaml:"language"`
	} `yaml:"provider"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout            string `yaml:"timeout"`
		DrainTimeout       string `yaml:"drain_timeout"`
		DrainCheckInterval string `yaml:"drain_check_interval"`
	} `yaml:"shutdown"`

	Health struct {
		CapacityWindow   string `yaml:"capacity_window"`
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`

	Metrics struct {
		TrackedCities []string `yaml:"tracked_cities"`
	} `yaml:"metrics"`

	Workflow struct {
		CityExtraction *bool `yaml:"city_extraction"`
	} `yaml:"workflow"`
}

type secretsFile struct {
	OpenWeatherAPIKey string `yaml:"openweather_api_key"`
}

// Load reads configuration. Sources, later ones winning: built-in defaults,
// config/{ENV_NAME}.yaml (ENV_NAME defaults to dev; missing file is fine),
// config/secrets.yaml for the API key, .env, then the environment
// (OPENWEATHER_API_KEY, SERVER_PORT). A missing API key is not a load error;
// the workflow reports it per invocation.
func Load() (*Config, error) {
	// Populate the environment from .env first so the overrides below see
	// it. Missing file is the normal case outside development.
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}

	fc, err := readFileConfig(cwd)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerPort:         "8080",
		ProviderURL:        workflow.DefaultBaseURL,
		ProviderTimeout:    workflow.DefaultTimeout,
		ProviderUnits:      client.DefaultUnits,
		ProviderLanguage:   client.DefaultLanguage,
		RequestTimeout:     workflow.DefaultTimeout + 5*time.Second,
		RateLimitRPS:       100,
		RateLimitBurst:     250,
		ShutdownTimeout:    30 * time.Second,
		DrainTimeout:       10 * time.Second,
		DrainCheckInterval: 100 * time.Millisecond,
		CapacityWindow:     60 * time.Second,
		DegradedWindow:     60 * time.Second,
		DegradedErrorPct:   50,
		CityExtraction:     true,
	}
	applyFileConfig(cfg, fc)

	if port := strings.TrimSpace(os.Getenv("SERVER_PORT")); port != "" {
		cfg.ServerPort = port
	}

	cfg.APIKey = os.Getenv(workflow.EnvAPIKey)
	if cfg.APIKey == "" {
		key, err := readSecretsKey(cwd)
		if err != nil {
			return nil, err
		}
		cfg.APIKey = key
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WorkflowConfiguration maps the provider settings into the workflow's
// configuration type.
func (c *Config) WorkflowConfiguration() workflow.Configuration {
	return workflow.Configuration{
		APIKey:   c.APIKey,
		BaseURL:  c.ProviderURL,
		Timeout:  c.ProviderTimeout,
		Units:    c.ProviderUnits,
		Language: c.ProviderLanguage,
	}
}

func readFileConfig(cwd string) (*fileConfig, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &fileConfig{}, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
	}
	return &fc, nil
}

func applyFileConfig(cfg *Config, fc *fileConfig) {
	if fc.Server.Port != "" {
		cfg.ServerPort = fc.Server.Port
	}
	if fc.Provider.URL != "" {
		cfg.ProviderURL = fc.Provider.URL
	}
	if fc.Provider.Units != "" {
		cfg.ProviderUnits = fc.Provider.Units
	}
	if fc.Provider.Language != "" {
		cfg.ProviderLanguage = fc.Provider.Language
	}
	cfg.ProviderTimeout = parseDuration(fc.Provider.Timeout, cfg.ProviderTimeout)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, cfg.RequestTimeout)

	if fc.Reliability.RateLimitRPS > 0 {
		cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	}
	if fc.Reliability.RateLimitBurst > 0 {
		cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, cfg.ShutdownTimeout)
	cfg.DrainTimeout = parseDuration(fc.Shutdown.DrainTimeout, cfg.DrainTimeout)
	cfg.DrainCheckInterval = parseDuration(fc.Shutdown.DrainCheckInterval, cfg.DrainCheckInterval)

	cfg.CapacityWindow = parseDuration(fc.Health.CapacityWindow, cfg.CapacityWindow)
	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, cfg.DegradedWindow)
	if fc.Health.DegradedErrorPct > 0 {
		cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	}

	if len(fc.Metrics.TrackedCities) > 0 {
		cfg.TrackedCities = fc.Metrics.TrackedCities
	}
	if fc.Workflow.CityExtraction != nil {
		cfg.CityExtraction = *fc.Workflow.CityExtraction
	}
}

func readSecretsKey(cwd string) (string, error) {
	secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
	data, err := os.ReadFile(secretsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return sec.OpenWeatherAPIKey, nil
}

// parseDuration parses a duration string, keeping defaultVal on empty input,
// parse error, or a non-positive result.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// validate checks cross-field constraints, adjusting where a safe correction
// exists.
func validate(cfg *Config) error {
	if cfg.ProviderTimeout <= 0 {
		return fmt.Errorf("provider timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.ProviderTimeout {
		cfg.RequestTimeout = cfg.ProviderTimeout + time.Second
	}
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("rate_limit_rps must be >= 0")
	}
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst < cfg.RateLimitRPS {
		cfg.RateLimitBurst = cfg.RateLimitRPS
	}
	if cfg.DegradedErrorPct < 0 || cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("degraded_error_pct must be within [0, 100], got %d", cfg.DegradedErrorPct)
	}
	return nil
}
