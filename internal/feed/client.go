// Package feed fetches and decodes the TriMet GTFS-realtime feeds and the
// OpenWeatherMap current-conditions feed.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/stassinopoulosari/data503-trimet-weather/internal/weather"
)

var (
	ErrNetwork = errors.New("feed network error")
	ErrDecode  = errors.New("feed decode error")
)

// Client is a thin HTTP client; it carries no business logic.
type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

// Fetch returns the response body of a GET to url. Transport failures and
// non-200 responses are reported as ErrNetwork.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrNetwork, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// *url.Error embeds the full URL, including the API key.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return nil, fmt.Errorf("%w: fetch %s: %w", ErrNetwork, redact(rawURL), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d from %s", ErrNetwork, resp.StatusCode, redact(rawURL))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrNetwork, redact(rawURL), err)
	}
	return body, nil
}

// DecodeTransitFeed parses a GTFS-realtime protobuf payload.
func DecodeTransitFeed(b []byte) (*gtfsrtpb.FeedMessage, error) {
	var fm gtfsrtpb.FeedMessage
	if err := proto.Unmarshal(b, &fm); err != nil {
		return nil, fmt.Errorf("%w: gtfs-realtime: %w", ErrDecode, err)
	}
	return &fm, nil
}

// DecodeWeatherPayload parses a current-conditions JSON payload.
func DecodeWeatherPayload(b []byte) (*weather.Payload, error) {
	var p weather.Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("%w: weather: %w", ErrDecode, err)
	}
	return &p, nil
}
