package workflow

import (
	"context"
	"regexp"
	"strings"

	"github.com/mfukuda/weathergraph/internal/client"
	"github.com/mfukuda/weathergraph/internal/validation"
)

// cityPatterns matches the phrasings users actually write. Ordered from most
// to least specific; the first match wins. Captures stop at punctuation the
// city validator rejects.
var cityPatterns = []*regexp.Regexp{
	// "what's the weather like in Tokyo?", "weather for New York"
	regexp.MustCompile(`(?i)weather\s+(?:like\s+)?(?:in|for|at)\s+([\p{L}][\p{L}0-9 .'-]*)`),
	// "東京の天気", "今日の大阪の天気を教えて"
	regexp.MustCompile(`(?:.*の)?([^の]+)の天気`),
	// "Tokyo weather", "New York weather forecast"
	regexp.MustCompile(`(?i)^([\p{L}][\p{L}0-9 .'-]*?)\s+weather\b`),
	// "in Paris", "at Osaka"
	regexp.MustCompile(`(?i)\b(?:in|for|at)\s+([\p{L}][\p{L}0-9 .'-]*)`),
}

// extractCity resolves the city for the fetch stage. A caller-provided city
// hint wins and skips extraction entirely; otherwise the user input is
// matched against the pattern table.
func (w *Workflow) extractCity(ctx context.Context, s State) (State, error) {
	if strings.TrimSpace(s.City) != "" {
		return s, nil
	}

	input := strings.TrimSpace(s.UserInput)
	if input == "" {
		return s.withError(string(client.ErrorCategoryValidation), msgNoUserInput), nil
	}

	if city, ok := extractCityFromText(input); ok {
		s.City = city
		s.Err = ""
		s.ErrKind = ""
		return s, nil
	}

	return s.withError(string(client.ErrorCategoryValidation), msgExtractionFailed), nil
}

// extractCityFromText applies the pattern table, then falls back to treating
// short inputs that pass city validation as a bare city name.
func extractCityFromText(input string) (string, bool) {
	// "Xの現在の天気" would otherwise capture 現在 instead of X.
	input = strings.ReplaceAll(input, "現在の天気", "天気")

	for _, re := range cityPatterns {
		m := re.FindStringSubmatch(input)
		if m == nil {
			continue
		}
		if city, ok := cleanCityCandidate(m[1]); ok {
			return city, true
		}
	}

	// Bare city: "Tokyo", "New York", "東京".
	if len(strings.Fields(input)) <= 2 {
		if city, ok := cleanCityCandidate(input); ok {
			return city, true
		}
	}

	return "", false
}

// trailingNoise lists words that follow a city in casual queries ("weather
// in Paris please") and must not become part of the name.
var trailingNoise = map[string]bool{
	"please":    true,
	"today":     true,
	"tonight":   true,
	"tomorrow":  true,
	"now":       true,
	"currently": true,
	"right":     true,
}

// rejectWords are question and filler words; a candidate containing one is
// not a city name ("what is the" from "what is the weather").
var rejectWords = map[string]bool{
	"what": true, "whats": true, "is": true, "are": true,
	"the": true, "a": true, "an": true, "it": true,
	"me": true, "my": true, "your": true,
	"tell": true, "show": true, "how": true, "will": true,
	"weather": true, "forecast": true, "temperature": true,
	"天気": true, "現在": true, "今日": true, "明日": true, "気温": true,
}

func cleanCityCandidate(raw string) (string, bool) {
	candidate := strings.Trim(raw, " \t.,!?。、？！")

	words := strings.Fields(candidate)
	for len(words) > 1 && trailingNoise[strings.ToLower(words[len(words)-1])] {
		words = words[:len(words)-1]
	}
	for _, word := range words {
		if rejectWords[strings.ToLower(word)] {
			return "", false
		}
	}
	candidate = strings.Join(words, " ")

	city, err := validation.ValidateCity(candidate, minCityRunes, maxCityRunes)
	if err != nil {
		return "", false
	}
	return city, true
}
