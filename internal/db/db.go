package db

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// PostgresOpener opens the pool for dsn and pings it; a pool that cannot be
// reached is closed again so retries do not leak connections.
func PostgresOpener(dsn string) Opener {
	return func(ctx context.Context) (*sql.DB, error) {
		db, err := Open(dsn)
		if err != nil {
			return nil, err
		}
		if err := Ping(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}
}

// hasTables returns a map of requested table names to existence in the
// current schema.
func hasTables(ctx context.Context, db *sql.DB, tables ...string) (map[string]bool, error) {
	res := make(map[string]bool, len(tables))
	if len(tables) == 0 {
		return res, nil
	}
	for _, t := range tables {
		res[t] = false
	}
	q := `SELECT table_name FROM information_schema.tables
          WHERE table_schema = current_schema() AND table_name = ANY($1)`
	rows, err := db.QueryContext(ctx, q, tables)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res[name] = true
	}
	return res, rows.Err()
}
