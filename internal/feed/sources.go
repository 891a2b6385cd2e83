package feed

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/stassinopoulosari/data503-trimet-weather/internal/gtfs"
	"github.com/stassinopoulosari/data503-trimet-weather/internal/weather"
)

const (
	trimetBaseURL  = "https://developer.trimet.org/ws/V1"
	weatherBaseURL = "https://api.openweathermap.org/data/2.5/weather"
)

// TriMetURLs returns the vehicle-positions and trip-updates feed URLs for appID.
func TriMetURLs(appID string) (vehiclePositions, tripUpdates string) {
	q := url.Values{"appID": {appID}}.Encode()
	return trimetBaseURL + "/VehiclePositions/?" + q, trimetBaseURL + "/TripUpdate/?" + q
}

// WeatherURL returns the current-conditions URL for a fixed location.
func WeatherURL(apiKey string, lat, lon float64, units string) string {
	q := url.Values{
		"lat":   {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":   {strconv.FormatFloat(lon, 'f', -1, 64)},
		"appid": {apiKey},
	}
	if units != "" {
		q.Set("units", units)
	}
	return weatherBaseURL + "?" + q.Encode()
}

// TransitFeeds reads both TriMet GTFS-realtime feeds.
type TransitFeeds struct {
	client              *Client
	vehiclePositionsURL string
	tripUpdatesURL      string
}

func NewTransitFeeds(c *Client, vehiclePositionsURL, tripUpdatesURL string) *TransitFeeds {
	return &TransitFeeds{client: c, vehiclePositionsURL: vehiclePositionsURL, tripUpdatesURL: tripUpdatesURL}
}

func (f *TransitFeeds) VehiclePositions(ctx context.Context) ([]gtfs.VehiclePosition, error) {
	b, err := f.client.Fetch(ctx, f.vehiclePositionsURL)
	if err != nil {
		return nil, fmt.Errorf("vehicle positions: %w", err)
	}
	fm, err := DecodeTransitFeed(b)
	if err != nil {
		return nil, fmt.Errorf("vehicle positions: %w", err)
	}
	return gtfs.VehiclePositionsFromFeed(fm), nil
}

func (f *TransitFeeds) TripUpdates(ctx context.Context) ([]gtfs.TripUpdate, error) {
	b, err := f.client.Fetch(ctx, f.tripUpdatesURL)
	if err != nil {
		return nil, fmt.Errorf("trip updates: %w", err)
	}
	fm, err := DecodeTransitFeed(b)
	if err != nil {
		return nil, fmt.Errorf("trip updates: %w", err)
	}
	return gtfs.TripUpdatesFromFeed(fm), nil
}

// WeatherFeed reads current conditions for one location.
type WeatherFeed struct {
	client *Client
	url    string
}

func NewWeatherFeed(c *Client, rawURL string) *WeatherFeed {
	return &WeatherFeed{client: c, url: rawURL}
}

func (f *WeatherFeed) Current(ctx context.Context) (*weather.Payload, error) {
	b, err := f.client.Fetch(ctx, f.url)
	if err != nil {
		return nil, fmt.Errorf("weather: %w", err)
	}
	return DecodeWeatherPayload(b)
}

// redact strips the query string so API keys never reach the logs.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	return u.String()
}
