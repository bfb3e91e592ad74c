// Package workflow implements the weather lookup workflow: a typed state
// graph whose stages resolve a city from caller input and fetch its current
// weather from OpenWeatherMap. Failures of any handled class are captured in
// the state's error fields; Invoke only returns a Go error when the engine
// itself is interrupted.
package workflow

import "github.com/mfukuda/weathergraph/internal/models"

// Message is one turn of caller-provided conversation input.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// State is the value threaded through the workflow stages. Callers populate
// the input fields (Messages, Query, City); stages fill in the rest. After a
// completed invocation exactly one of Weather and Err is set.
type State struct {
	Messages  []Message      `json:"messages,omitempty"`
	Query     string         `json:"query,omitempty"`
	UserInput string         `json:"user_input,omitempty"`
	City      string         `json:"city,omitempty"`
	Weather   *models.Report `json:"weather_info,omitempty"`
	Err       string         `json:"error,omitempty"`
	ErrKind   string         `json:"error_kind,omitempty"`
}

// withResolvedInput derives UserInput from the first user message, falling
// back to Query. Explicit UserInput is left untouched.
func (s State) withResolvedInput() State {
	if s.UserInput == "" {
		for _, m := range s.Messages {
			if m.Role == "user" {
				s.UserInput = m.Content
				break
			}
		}
	}
	if s.UserInput == "" {
		s.UserInput = s.Query
	}
	return s
}

// withError records a failure, clearing any weather data so the
// one-of-weather-or-error invariant holds.
func (s State) withError(kind, msg string) State {
	s.Weather = nil
	s.Err = msg
	s.ErrKind = kind
	return s
}

// withWeather records a successful fetch, clearing any error from earlier
// stages.
func (s State) withWeather(r models.Report) State {
	s.Weather = &r
	s.Err = ""
	s.ErrKind = ""
	return s
}

// Failed reports whether the state carries an error.
func (s State) Failed() bool {
	return s.Err != ""
}

// Result is the caller-facing envelope rendered from a final state.
type Result struct {
	Status  string         `json:"status"`
	City    string         `json:"city,omitempty"`
	Weather *models.Report `json:"weather_info,omitempty"`
	Message string         `json:"message,omitempty"`
	Err     string         `json:"error,omitempty"`
}

// Statuses used in Result envelopes.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result renders the envelope for this state: on failure {status, error},
// on success {status, city, weather_info, message} with the one-line
// Japanese summary as the message.
func (s State) Result() Result {
	if s.Err != "" || s.Weather == nil {
		errMsg := s.Err
		if errMsg == "" {
			errMsg = msgNoWeatherData
		}
		return Result{Status: StatusError, Err: errMsg}
	}
	return Result{
		Status:  StatusSuccess,
		City:    s.City,
		Weather: s.Weather,
		Message: s.Weather.Summary(),
	}
}
