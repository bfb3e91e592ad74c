package workflow

import (
	"context"
	"errors"

	"github.com/mfukuda/weathergraph/internal/client"
	"github.com/mfukuda/weathergraph/internal/validation"
)

// City length bounds enforced before any provider call.
const (
	minCityRunes = 1
	maxCityRunes = 100
)

// fetchWeather is the terminal stage: validate the city, call the provider
// once, and record either the report or a categorized error in the state.
// Validation failures never reach the network.
func (w *Workflow) fetchWeather(ctx context.Context, s State) (State, error) {
	if s.Failed() {
		// An earlier stage already reported; nothing to fetch.
		return s, nil
	}

	if w.client == nil {
		return s.withError(string(client.ErrorCategoryInvalidAPIKey), msgMissingAPIKey), nil
	}

	city, err := validation.ValidateCity(s.City, minCityRunes, maxCityRunes)
	if err != nil {
		msg := msgInvalidCity
		if errors.Is(err, validation.ErrCityEmpty) {
			msg = msgEmptyCity
		}
		return s.withError(string(client.ErrorCategoryValidation), msg), nil
	}
	s.City = city

	report, err := w.client.GetCurrentWeather(ctx, city)
	if err != nil {
		kind := client.CategorizeError(err)
		return s.withError(string(kind), fetchErrorMessage(city, err)), nil
	}

	return s.withWeather(report), nil
}
