package db

import (
	"context"
	"database/sql"
	"fmt"
)

const (
	tableTrimetObservation  = "trimet_observation"
	tableRouteDescription   = "route_description"
	tableTripUpdate         = "trip_update"
	tableWeatherDescription = "weather_description"
	tableWeatherObservation = "weather_observation"
)

// Tables lists every table the observer owns, in creation order.
var Tables = []string{
	tableTrimetObservation,
	tableRouteDescription,
	tableTripUpdate,
	tableWeatherDescription,
	tableWeatherObservation,
}

// Column names and numeric precisions are relied on by dashboards and reports.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS trimet_observation(
	trimet_observation_id UUID PRIMARY KEY NOT NULL DEFAULT gen_random_uuid(),
	date TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE TABLE IF NOT EXISTS route_description(
	route_id NUMERIC(4, 0) PRIMARY KEY NOT NULL,
	route_label TEXT
)`,
	`CREATE TABLE IF NOT EXISTS trip_update(
	trip_update_id UUID PRIMARY KEY NOT NULL DEFAULT gen_random_uuid(),
	trimet_observation_id UUID NOT NULL REFERENCES trimet_observation(trimet_observation_id),
	vehicle_id NUMERIC(5, 0),
	stop_in_sequence NUMERIC(3, 0),
	trip_id NUMERIC(10, 0),
	route_id NUMERIC(4, 0) REFERENCES route_description(route_id),
	status_data_exists BOOLEAN,
	status_departure_delay_seconds NUMERIC(10, 0),
	status_arrival_delay_seconds NUMERIC(10, 0)
)`,
	`CREATE TABLE IF NOT EXISTS weather_description(
	weather_code NUMERIC(4, 0) PRIMARY KEY NOT NULL,
	description TEXT
)`,
	`CREATE TABLE IF NOT EXISTS weather_observation(
	weather_observation_id UUID PRIMARY KEY NOT NULL DEFAULT gen_random_uuid(),
	date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	temperature NUMERIC(5, 2),
	feels_like NUMERIC(5, 2),
	visibility NUMERIC(6, 0),
	wind_speed NUMERIC(5, 2),
	wind_gust NUMERIC(5, 2),
	rain_1h NUMERIC(6, 2),
	weather_code NUMERIC(4, 0) REFERENCES weather_description(weather_code)
)`,
}

// EnsureSchema checks the catalog for the observer's tables and creates the
// missing ones in a single transaction.
func EnsureSchema(ctx context.Context, db *sql.DB) (bool, error) {
	existing, err := hasTables(ctx, db, Tables...)
	if err != nil {
		return false, fmt.Errorf("%w: introspect tables: %w", ErrSchema, err)
	}
	missing := 0
	for _, t := range Tables {
		if !existing[t] {
			missing++
		}
	}
	if missing == 0 {
		return false, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%w: begin: %w", ErrSchema, err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return false, fmt.Errorf("%w: %w", ErrSchema, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: commit: %w", ErrSchema, err)
	}
	return true, nil
}
