package workflow

import (
	"os"
	"time"

	"github.com/mfukuda/weathergraph/internal/client"
)

// EnvAPIKey is the environment variable consulted when no explicit API key
// is provided.
const EnvAPIKey = "OPENWEATHER_API_KEY"

// Provider defaults.
const (
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"
	DefaultTimeout = 15 * time.Second
)

// Configuration carries the settings a Workflow is built with. A resolved
// Configuration is a plain value and never mutated after construction; build
// a new Workflow to change it.
type Configuration struct {
	// APIKey authenticates against OpenWeatherMap. May be empty, in which
	// case every invocation reports a missing-credential error in the state.
	APIKey string

	// BaseURL is the current-weather endpoint.
	BaseURL string

	// Timeout bounds each provider call.
	Timeout time.Duration

	// Units and Language select the provider's unit system and description
	// locale. Defaults: metric, ja.
	Units    string
	Language string
}

// ResolveConfiguration merges explicit values with their fallbacks and
// returns the immutable result. Precedence for the API key: explicit value,
// then the OPENWEATHER_API_KEY environment variable. Resolution never fails;
// a missing key is reported per invocation, not here.
func ResolveConfiguration(explicit Configuration) Configuration {
	cfg := explicit
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(EnvAPIKey)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Units == "" {
		cfg.Units = client.DefaultUnits
	}
	if cfg.Language == "" {
		cfg.Language = client.DefaultLanguage
	}
	return cfg
}
