package models

import "fmt"

// Report holds the current-weather attributes returned by one provider
// lookup. Numeric fields carry metric units (Celsius, hPa, m/s, meters);
// Description arrives already localized by the provider.
type Report struct {
	Temperature float64 `json:"temperature"`
	FeelsLike   float64 `json:"feels_like"`
	Humidity    int     `json:"humidity"`
	Pressure    int     `json:"pressure"`
	Description string  `json:"description"`
	WindSpeed   float64 `json:"wind_speed"`
	Visibility  int     `json:"visibility"`
	CityName    string  `json:"city_name"`
	Country     string  `json:"country"`
}

// Summary renders the one-line Japanese report shown to end users,
// e.g. "東京の現在の天気: 晴天, 気温: 18.5°C, 湿度: 45%".
func (r Report) Summary() string {
	return fmt.Sprintf("%sの現在の天気: %s, 気温: %.1f°C, 湿度: %d%%",
		r.CityName, r.Description, r.Temperature, r.Humidity)
}
