package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

func marshalFeed(t *testing.T, entities ...*gtfsrtpb.FeedEntity) []byte {
	t.Helper()
	b, err := proto.Marshal(&gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(uint64(time.Now().Unix())),
		},
		Entity: entities,
	})
	require.NoError(t, err)
	return b
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte("payload"))
		default:
			http.Error(w, "nope", http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	c := NewClient(2 * time.Second)

	b, err := c.Fetch(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))

	_, err = c.Fetch(context.Background(), srv.URL+"/down?appID=secret")
	require.ErrorIs(t, err, ErrNetwork)
	assert.Contains(t, err.Error(), "HTTP 503")
	assert.NotContains(t, err.Error(), "secret")
}

func TestFetch_TransportErrorHidesKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	_, err := NewClient(time.Second).Fetch(context.Background(), addr+"/feed?appID=secret")
	require.ErrorIs(t, err, ErrNetwork)
	assert.NotContains(t, err.Error(), "secret")
}

func TestDecodeTransitFeed(t *testing.T) {
	b := marshalFeed(t, &gtfsrtpb.FeedEntity{Id: proto.String("1001"), Vehicle: &gtfsrtpb.VehiclePosition{}})

	fm, err := DecodeTransitFeed(b)
	require.NoError(t, err)
	require.Len(t, fm.Entity, 1)
	assert.Equal(t, "1001", fm.Entity[0].GetId())

	_, err = DecodeTransitFeed([]byte{0xff, 0xff, 0xff})
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeWeatherPayload(t *testing.T) {
	p, err := DecodeWeatherPayload([]byte(`{"weather":[{"id":800,"description":"clear sky"}],"main":{"temp":70.1}}`))
	require.NoError(t, err)
	require.Len(t, p.Weather, 1)
	assert.Equal(t, int32(800), p.Weather[0].ID)

	_, err = DecodeWeatherPayload([]byte(`<html>`))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestTransitFeeds(t *testing.T) {
	vp := marshalFeed(t, &gtfsrtpb.FeedEntity{
		Id: proto.String("1001"),
		Vehicle: &gtfsrtpb.VehiclePosition{
			CurrentStopSequence: proto.Uint32(2),
			Trip:                &gtfsrtpb.TripDescriptor{TripId: proto.String("55"), RouteId: proto.String("20")},
		},
	})
	tu := marshalFeed(t, &gtfsrtpb.FeedEntity{
		Id: proto.String("tu"),
		TripUpdate: &gtfsrtpb.TripUpdate{
			Trip:    &gtfsrtpb.TripDescriptor{TripId: proto.String("55")},
			Vehicle: &gtfsrtpb.VehicleDescriptor{Id: proto.String("1001")},
			StopTimeUpdate: []*gtfsrtpb.TripUpdate_StopTimeUpdate{
				{Arrival: &gtfsrtpb.TripUpdate_StopTimeEvent{Delay: proto.Int32(10)}},
				{Arrival: &gtfsrtpb.TripUpdate_StopTimeEvent{Delay: proto.Int32(20)}},
			},
		},
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.URL.Query().Get("appID"))
		switch {
		case strings.HasPrefix(r.URL.Path, "/VehiclePositions"):
			_, _ = w.Write(vp)
		case strings.HasPrefix(r.URL.Path, "/TripUpdate"):
			_, _ = w.Write(tu)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewTransitFeeds(NewClient(2*time.Second), srv.URL+"/VehiclePositions/?appID=key", srv.URL+"/TripUpdate/?appID=key")

	positions, err := f.VehiclePositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "1001", positions[0].VehicleID)

	updates, err := f.TripUpdates(context.Background())
	require.NoError(t, err)
	require.Len(t, updates, 1)
	require.Len(t, updates[0].StopTimeUpdates, 2)
	assert.Equal(t, int32(20), *updates[0].StopTimeUpdates[1].ArrivalDelay)
}

func TestWeatherFeed_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := NewWeatherFeed(NewClient(time.Second), srv.URL).Current(context.Background())
	assert.ErrorIs(t, err, ErrDecode)
}

func TestURLs(t *testing.T) {
	vp, tu := TriMetURLs("abc")
	assert.Equal(t, "https://developer.trimet.org/ws/V1/VehiclePositions/?appID=abc", vp)
	assert.Equal(t, "https://developer.trimet.org/ws/V1/TripUpdate/?appID=abc", tu)

	w := WeatherURL("k", 45.5152, -122.6784, "imperial")
	assert.Equal(t, "https://api.openweathermap.org/data/2.5/weather?appid=k&lat=45.5152&lon=-122.6784&units=imperial", w)
	assert.Equal(t, "https://api.openweathermap.org/data/2.5/weather", redact(w))
}
