// Package postgres implements the isochrone store, the territorial
// repository and the reference table loader on PostgreSQL with PostGIS.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Options configures the connection pool.
type Options struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// Open connects to the database and verifies it answers a ping.
func Open(ctx context.Context, opts Options) (*sql.DB, error) {
	db, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

// querier is satisfied by *sql.DB and *sql.Conn.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Migrate creates the tables used by this package when they are missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS postgis`,
	`CREATE TABLE IF NOT EXISTS territorial_units (
        level TEXT NOT NULL,
        id BIGINT NOT NULL,
        name TEXT NOT NULL DEFAULT '',
        parent_id BIGINT NOT NULL DEFAULT 0,
        boundary geometry(Geometry, 4326),
        PRIMARY KEY(level, id)
    )`,
	`CREATE TABLE IF NOT EXISTS residents (
        id BIGSERIAL PRIMARY KEY,
        social_group TEXT NOT NULL,
        count INTEGER NOT NULL,
        location geometry(Point, 4326) NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS facilities (
        id BIGINT PRIMARY KEY,
        service_type TEXT NOT NULL,
        capacity INTEGER NOT NULL DEFAULT 0,
        location geometry(Point, 4326) NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS territorial_aggregates (
        level TEXT NOT NULL,
        unit_id BIGINT NOT NULL,
        kind TEXT NOT NULL,
        data JSONB NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY(level, unit_id, kind)
    )`,
	`CREATE TABLE IF NOT EXISTS isochrones (
        lat DOUBLE PRECISION NOT NULL,
        lon DOUBLE PRECISION NOT NULL,
        minutes INTEGER NOT NULL,
        mode TEXT NOT NULL,
        geom geometry(Geometry, 4326) NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY(lat, lon, minutes, mode)
    )`,
	`CREATE INDEX IF NOT EXISTS isochrones_geom_idx ON isochrones USING GIST (geom)`,
	`CREATE TABLE IF NOT EXISTS needs (
        social_group TEXT NOT NULL,
        living_situation TEXT NOT NULL,
        service_type TEXT NOT NULL,
        walking INTEGER NOT NULL DEFAULT 0,
        transit INTEGER NOT NULL DEFAULT 0,
        car INTEGER NOT NULL DEFAULT 0,
        intensity DOUBLE PRECISION NOT NULL DEFAULT 0,
        significance DOUBLE PRECISION NOT NULL DEFAULT 0,
        PRIMARY KEY(social_group, living_situation, service_type)
    )`,
	`CREATE TABLE IF NOT EXISTS infrastructure (
        infrastructure TEXT NOT NULL,
        function TEXT NOT NULL,
        service_type TEXT PRIMARY KEY
    )`,
}
