package db

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stassinopoulosari/data503-trimet-weather/internal/gtfs"
	"github.com/stassinopoulosari/data503-trimet-weather/internal/weather"
)

// openTestStore bootstraps a store against PG_DSN on a clean schema.
func openTestStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	ctx := context.Background()
	raw, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	if err := Ping(ctx, raw); err != nil {
		t.Skipf("postgres unreachable: %v", err)
	}
	for i := len(Tables) - 1; i >= 0; i-- {
		_, err := raw.ExecContext(ctx, "DROP TABLE IF EXISTS "+Tables[i])
		require.NoError(t, err)
	}

	s := New(PostgresOpener(dsn), WithRetryInterval(100*time.Millisecond))
	t.Cleanup(func() { s.Close() })
	created, err := s.Bootstrap(ctx)
	require.NoError(t, err)
	require.True(t, created)
	return s, raw
}

func strp(s string) *string { return &s }
func i32p(v int32) *int32   { return &v }
func u32p(v uint32) *uint32 { return &v }

func TestEnsureSchema_Postgres(t *testing.T) {
	_, raw := openTestStore(t)

	created, err := EnsureSchema(context.Background(), raw)
	require.NoError(t, err)
	assert.False(t, created, "second check must find every table")

	existing, err := hasTables(context.Background(), raw, Tables...)
	require.NoError(t, err)
	for _, tbl := range Tables {
		assert.True(t, existing[tbl], tbl)
	}
}

func TestUpsertRouteDescription_FirstWriteWins_Postgres(t *testing.T) {
	s, raw := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertRouteDescription(ctx, "20", strp("Blue")))
	require.NoError(t, s.UpsertRouteDescription(ctx, "20", strp("Red")))

	var label string
	require.NoError(t, raw.QueryRowContext(ctx, `SELECT route_label FROM route_description WHERE route_id = 20`).Scan(&label))
	assert.Equal(t, "Blue", label)

	var n int
	require.NoError(t, raw.QueryRowContext(ctx, `SELECT COUNT(*) FROM route_description`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestTripUpdateBatch_Postgres(t *testing.T) {
	s, raw := openTestStore(t)
	ctx := context.Background()

	obsID, err := s.BeginObservationBatch(ctx)
	require.NoError(t, err)

	require.NoError(t, s.UpsertRouteDescription(ctx, "20", strp("Blue")))
	require.NoError(t, s.WriteTripUpdate(ctx, obsID, "1001", &gtfs.VehicleStatus{
		StopInSequence: u32p(3),
		TripID:         strp("55"),
		RouteID:        strp("20"),
		RouteLabel:     strp("Blue"),
		Status:         &gtfs.Status{DataExists: true, ArrivalDelaySeconds: i32p(45), DepartureDelaySeconds: i32p(30)},
	}))
	require.NoError(t, s.WriteTripUpdate(ctx, obsID, "2002", &gtfs.VehicleStatus{}))

	rows, err := raw.QueryContext(ctx, `
SELECT vehicle_id, stop_in_sequence, trip_id, route_id, status_data_exists,
       status_arrival_delay_seconds, status_departure_delay_seconds
FROM trip_update WHERE trimet_observation_id = $1 ORDER BY vehicle_id`, obsID)
	require.NoError(t, err)
	defer rows.Close()

	type row struct {
		vehicle                   int64
		stop, trip, route         sql.NullInt64
		dataExists                sql.NullBool
		arrivalDelay, departDelay sql.NullInt64
	}
	var got []row
	for rows.Next() {
		var r row
		require.NoError(t, rows.Scan(&r.vehicle, &r.stop, &r.trip, &r.route, &r.dataExists, &r.arrivalDelay, &r.departDelay))
		got = append(got, r)
	}
	require.NoError(t, rows.Err())
	require.Len(t, got, 2)

	assert.Equal(t, int64(1001), got[0].vehicle)
	assert.Equal(t, sql.NullInt64{Int64: 3, Valid: true}, got[0].stop)
	assert.Equal(t, sql.NullInt64{Int64: 55, Valid: true}, got[0].trip)
	assert.Equal(t, sql.NullInt64{Int64: 20, Valid: true}, got[0].route)
	assert.Equal(t, sql.NullBool{Bool: true, Valid: true}, got[0].dataExists)
	assert.Equal(t, sql.NullInt64{Int64: 45, Valid: true}, got[0].arrivalDelay)
	assert.Equal(t, sql.NullInt64{Int64: 30, Valid: true}, got[0].departDelay)

	assert.Equal(t, int64(2002), got[1].vehicle)
	assert.False(t, got[1].stop.Valid)
	assert.False(t, got[1].route.Valid)
	assert.False(t, got[1].dataExists.Valid)
}

func TestWeather_Postgres(t *testing.T) {
	s, raw := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertWeatherDescription(ctx, 501, "moderate rain"))
	require.NoError(t, s.UpsertWeatherDescription(ctx, 501, "rain"))
	gust := 18.41
	require.NoError(t, s.WriteWeatherObservation(ctx, weather.Observation{
		Temperature:  51.8,
		FeelsLike:    50.43,
		WindSpeed:    9.22,
		WindGust:     &gust,
		RainLastHour: 1.27,
		WeatherCode:  501,
		Description:  "moderate rain",
	}))

	var desc string
	require.NoError(t, raw.QueryRowContext(ctx, `SELECT description FROM weather_description WHERE weather_code = 501`).Scan(&desc))
	assert.Equal(t, "moderate rain", desc)

	var temp, rain float64
	var visibility sql.NullInt64
	require.NoError(t, raw.QueryRowContext(ctx, `SELECT temperature, rain_1h, visibility FROM weather_observation`).Scan(&temp, &rain, &visibility))
	assert.InDelta(t, 51.8, temp, 1e-9)
	assert.InDelta(t, 1.27, rain, 1e-9)
	assert.False(t, visibility.Valid)
}
