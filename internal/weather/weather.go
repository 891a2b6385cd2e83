// Package weather maps the OpenWeatherMap current-conditions payload onto the
// observation row stored for every weather cycle.
package weather

import (
	"errors"
)

// ErrNoConditions is returned when the payload carries no weather condition.
var ErrNoConditions = errors.New("weather payload has no conditions")

// Payload is the subset of the current-weather response the observer reads.
type Payload struct {
	Weather    []Condition `json:"weather"`
	Main       Main        `json:"main"`
	Visibility *int32      `json:"visibility"`
	Wind       Wind        `json:"wind"`
	Rain       *Rain       `json:"rain"`
	Dt         int64       `json:"dt"`
}

type Condition struct {
	ID          int32  `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
}

type Main struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
}

type Wind struct {
	Speed float64  `json:"speed"`
	Gust  *float64 `json:"gust"`
}

type Rain struct {
	OneHour *float64 `json:"1h"`
}

// Observation is one normalized weather sample.
type Observation struct {
	Temperature  float64  `json:"temperature"`
	FeelsLike    float64  `json:"feelsLike"`
	Visibility   *int32   `json:"visibility"`
	WindSpeed    float64  `json:"windSpeed"`
	WindGust     *float64 `json:"windGust"`
	RainLastHour float64  `json:"rainLastHour"`
	WeatherCode  int32    `json:"weatherCode"`
	Description  string   `json:"description"`
}

// Normalize uses the first listed condition and treats missing rain as 0.
func Normalize(p *Payload) (Observation, error) {
	if p == nil || len(p.Weather) == 0 {
		return Observation{}, ErrNoConditions
	}
	cond := p.Weather[0]
	obs := Observation{
		Temperature: p.Main.Temp,
		FeelsLike:   p.Main.FeelsLike,
		Visibility:  p.Visibility,
		WindSpeed:   p.Wind.Speed,
		WindGust:    p.Wind.Gust,
		WeatherCode: cond.ID,
		Description: cond.Description,
	}
	if p.Rain != nil && p.Rain.OneHour != nil {
		obs.RainLastHour = *p.Rain.OneHour
	}
	return obs, nil
}
