package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/stassinopoulosari/data503-trimet-weather/internal/gtfs"
	"github.com/stassinopoulosari/data503-trimet-weather/internal/weather"
)

// BeginObservationBatch inserts a trimet_observation row and returns its id.
// Every trip_update written in the same cycle references it.
func (s *Store) BeginObservationBatch(ctx context.Context) (uuid.UUID, error) {
	db, err := s.DB()
	if err != nil {
		return uuid.Nil, err
	}
	q := `INSERT INTO trimet_observation DEFAULT VALUES RETURNING trimet_observation_id`
	var id uuid.UUID
	if err := db.QueryRowContext(ctx, q).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, ErrEmptyBatch
		}
		return uuid.Nil, fmt.Errorf("%w: insert trimet_observation: %w", ErrQuery, err)
	}
	if id == uuid.Nil {
		return uuid.Nil, ErrEmptyBatch
	}
	s.rowsWritten(tableTrimetObservation)
	return id, nil
}

// UpsertRouteDescription records the label of a route the first time the
// route is seen. Later labels never overwrite it.
func (s *Store) UpsertRouteDescription(ctx context.Context, routeID string, label *string) error {
	db, err := s.DB()
	if err != nil {
		return err
	}
	id, err := parseID("route_id", routeID)
	if err != nil {
		return err
	}
	q := `INSERT INTO route_description (route_id, route_label) VALUES ($1, $2)
          ON CONFLICT (route_id) DO NOTHING`
	if _, err := db.ExecContext(ctx, q, id, nullString(label)); err != nil {
		return fmt.Errorf("%w: upsert route_description %s: %w", ErrQuery, routeID, err)
	}
	s.rowsWritten(tableRouteDescription)
	return nil
}

// WriteTripUpdate inserts one trip_update row for a correlated vehicle. Rows
// are written whether or not the vehicle has a Status.
func (s *Store) WriteTripUpdate(ctx context.Context, observationID uuid.UUID, vehicleID string, vs *gtfs.VehicleStatus) error {
	db, err := s.DB()
	if err != nil {
		return err
	}
	if vs == nil {
		vs = &gtfs.VehicleStatus{}
	}
	vid, err := parseID("vehicle_id", vehicleID)
	if err != nil {
		return err
	}
	tripID, err := parseOptionalID("trip_id", vs.TripID)
	if err != nil {
		return err
	}
	routeID, err := parseOptionalID("route_id", vs.RouteID)
	if err != nil {
		return err
	}

	var stopInSequence, dataExists, departureDelay, arrivalDelay any
	if vs.StopInSequence != nil {
		stopInSequence = int64(*vs.StopInSequence)
	}
	if st := vs.Status; st != nil {
		dataExists = st.DataExists
		departureDelay = nullInt32(st.DepartureDelaySeconds)
		arrivalDelay = nullInt32(st.ArrivalDelaySeconds)
	}

	q := `INSERT INTO trip_update (
	trimet_observation_id,
	vehicle_id,
	stop_in_sequence,
	trip_id,
	route_id,
	status_data_exists,
	status_departure_delay_seconds,
	status_arrival_delay_seconds
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := db.ExecContext(ctx, q,
		observationID,
		vid,
		stopInSequence,
		tripID,
		routeID,
		dataExists,
		departureDelay,
		arrivalDelay,
	); err != nil {
		return fmt.Errorf("%w: insert trip_update for vehicle %s: %w", ErrQuery, vehicleID, err)
	}
	s.rowsWritten(tableTripUpdate)
	return nil
}

// UpsertWeatherDescription has the same first-write-wins policy as routes.
func (s *Store) UpsertWeatherDescription(ctx context.Context, code int32, text string) error {
	db, err := s.DB()
	if err != nil {
		return err
	}
	q := `INSERT INTO weather_description (weather_code, description) VALUES ($1, $2)
          ON CONFLICT (weather_code) DO NOTHING`
	if _, err := db.ExecContext(ctx, q, int64(code), text); err != nil {
		return fmt.Errorf("%w: upsert weather_description %d: %w", ErrQuery, code, err)
	}
	s.rowsWritten(tableWeatherDescription)
	return nil
}

// WriteWeatherObservation inserts one timestamped weather sample.
func (s *Store) WriteWeatherObservation(ctx context.Context, obs weather.Observation) error {
	db, err := s.DB()
	if err != nil {
		return err
	}
	var visibility, gust any
	if obs.Visibility != nil {
		visibility = int64(*obs.Visibility)
	}
	if obs.WindGust != nil {
		gust = *obs.WindGust
	}
	q := `INSERT INTO weather_observation (
	temperature,
	feels_like,
	visibility,
	wind_speed,
	wind_gust,
	rain_1h,
	weather_code
) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := db.ExecContext(ctx, q,
		obs.Temperature,
		obs.FeelsLike,
		visibility,
		obs.WindSpeed,
		gust,
		obs.RainLastHour,
		int64(obs.WeatherCode),
	); err != nil {
		return fmt.Errorf("%w: insert weather_observation: %w", ErrQuery, err)
	}
	s.rowsWritten(tableWeatherObservation)
	return nil
}

// parseID converts the feed's string identifiers to the NUMERIC key columns.
func parseID(column, v string) (int64, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not an integer", ErrQuery, column, v)
	}
	return n, nil
}

func parseOptionalID(column string, v *string) (any, error) {
	if v == nil {
		return nil, nil
	}
	return parseID(column, *v)
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt32(v *int32) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}
