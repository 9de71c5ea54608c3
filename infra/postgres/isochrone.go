package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/twpayne/go-geom"

	"github.com/kilianp07/provision/core/isochrone"
)

// IsochroneStore is the durable isochrone cache.
type IsochroneStore struct {
	db querier
}

func NewIsochroneStore(db *sql.DB) *IsochroneStore {
	return &IsochroneStore{db: db}
}

const (
	getIsochroneSQL = `SELECT ST_AsGeoJSON(geom) FROM isochrones
        WHERE lat = $1 AND lon = $2 AND minutes = $3 AND mode = $4`
	putIsochroneSQL = `INSERT INTO isochrones (lat, lon, minutes, mode, geom, updated_at)
        VALUES ($1, $2, $3, $4, ST_SetSRID(ST_GeomFromGeoJSON($5), 4326), now())
        ON CONFLICT (lat, lon, minutes, mode) DO UPDATE SET
            geom = EXCLUDED.geom,
            updated_at = now()`
	nearestIsochroneSQL = `SELECT ST_AsGeoJSON(geom) FROM isochrones
        WHERE minutes = $3 AND mode = $4 AND NOT ST_IsEmpty(geom)
        ORDER BY geom <-> ST_SetSRID(ST_MakePoint($2, $1), 4326)
        LIMIT 1`
	unionIsochroneSQL = `SELECT ST_AsGeoJSON(ST_Union(ARRAY(
            SELECT ST_SetSRID(ST_GeomFromGeoJSON(g), 4326) FROM unnest($1::text[]) AS g)))`
)

func (s *IsochroneStore) Get(ctx context.Context, k isochrone.Key) (geom.T, bool, error) {
	return s.one(ctx, getIsochroneSQL, k)
}

func (s *IsochroneStore) Put(ctx context.Context, k isochrone.Key, g geom.T) error {
	data, err := encodeGeometry(g)
	if err != nil {
		return fmt.Errorf("encode isochrone %s: %w", k, err)
	}
	_, err = s.db.ExecContext(ctx, putIsochroneSQL, k.Lat, k.Lon, k.Minutes, k.Mode.String(), data)
	return err
}

func (s *IsochroneStore) Nearest(ctx context.Context, k isochrone.Key) (geom.T, bool, error) {
	return s.one(ctx, nearestIsochroneSQL, k)
}

// Union dissolves the parts into a single geometry with ST_Union.
func (s *IsochroneStore) Union(ctx context.Context, parts []geom.T) (geom.T, error) {
	docs := make([]string, 0, len(parts))
	for _, p := range parts {
		d, err := encodeGeometry(p)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	var out sql.NullString
	if err := s.db.QueryRowContext(ctx, unionIsochroneSQL, pq.Array(docs)).Scan(&out); err != nil {
		return nil, err
	}
	if !out.Valid {
		return isochrone.Empty(), nil
	}
	return decodeGeometry(out.String)
}

func (s *IsochroneStore) one(ctx context.Context, query string, k isochrone.Key) (geom.T, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, query, k.Lat, k.Lon, k.Minutes, k.Mode.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	g, err := decodeGeometry(data)
	if err != nil {
		return nil, false, fmt.Errorf("decode isochrone %s: %w", k, err)
	}
	return g, true, nil
}
