package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kilianp07/provision/core/model"
	"github.com/kilianp07/provision/core/territory"
)

const (
	kindSocialGroups = "social_groups"
	kindServices     = "services"
)

// Repository reads the territorial hierarchy and persists aggregates.
type Repository struct {
	db   querier
	pool *sql.DB
}

// NewRepository returns a Repository sharing the pool.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, pool: db}
}

// Session binds a repository to one dedicated connection.
func (r *Repository) Session(ctx context.Context) (territory.Session, error) {
	if r.pool == nil {
		return nil, errors.New("postgres: session requested from a session")
	}
	conn, err := r.pool.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &session{Repository: &Repository{db: conn}, conn: conn}, nil
}

type session struct {
	*Repository
	conn *sql.Conn
}

func (s *session) Close() error { return s.conn.Close() }

const unitColumns = `id, level, name, parent_id`

func (r *Repository) Unit(ctx context.Context, level model.Level, id int64) (model.Unit, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM territorial_units
        WHERE level = $1 AND id = $2`, level.String(), id)
	u, err := scanUnit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Unit{}, fmt.Errorf("%w: %s/%d", territory.ErrUnitNotFound, level, id)
	}
	return u, err
}

func (r *Repository) UnitByName(ctx context.Context, level model.Level, name string) (model.Unit, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM territorial_units
        WHERE level = $1 AND lower(name) = lower($2) ORDER BY id LIMIT 1`, level.String(), name)
	u, err := scanUnit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Unit{}, fmt.Errorf("%w: %s %q", territory.ErrUnitNotFound, level, name)
	}
	return u, err
}

func (r *Repository) Units(ctx context.Context, level model.Level) ([]model.Unit, error) {
	return r.units(ctx, `SELECT `+unitColumns+` FROM territorial_units
        WHERE level = $1 ORDER BY id`, level.String())
}

func (r *Repository) Children(ctx context.Context, parent model.Unit) ([]model.Unit, error) {
	switch parent.Level {
	case model.LevelCity:
		return r.units(ctx, `SELECT `+unitColumns+` FROM territorial_units
            WHERE level = 'district'
               OR (level IN ('municipality', 'block') AND parent_id = 0)
            ORDER BY CASE level WHEN 'district' THEN 0 WHEN 'municipality' THEN 1 ELSE 2 END, id`)
	case model.LevelDistrict, model.LevelMunicipality:
		return r.units(ctx, `SELECT `+unitColumns+` FROM territorial_units
            WHERE level = $1 AND parent_id = $2 ORDER BY id`, (parent.Level - 1).String(), parent.ID)
	default:
		return nil, nil
	}
}

func (r *Repository) Lineage(ctx context.Context, u model.Unit) (model.Lineage, error) {
	var ln model.Lineage
	cur, err := r.Unit(ctx, u.Level, u.ID)
	if err != nil {
		return ln, err
	}
	for {
		switch cur.Level {
		case model.LevelBlock:
			ln.Block = cur.ID
		case model.LevelMunicipality:
			ln.Municipality = cur.ID
		case model.LevelDistrict:
			ln.District = cur.ID
		}
		if cur.ParentID == 0 || cur.Level >= model.LevelDistrict {
			return ln, nil
		}
		next, err := r.Unit(ctx, cur.Level+1, cur.ParentID)
		if errors.Is(err, territory.ErrUnitNotFound) {
			return ln, nil
		}
		if err != nil {
			return ln, err
		}
		cur = next
	}
}

func (r *Repository) ScanSocialGroups(ctx context.Context, u model.Unit) (model.SocialGroupAggregate, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT p.social_group, SUM(p.count)
        FROM residents p
        JOIN territorial_units t ON t.level = $1 AND t.id = $2
        WHERE ST_Contains(t.boundary, p.location)
        GROUP BY p.social_group`, u.Level.String(), u.ID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	agg := model.SocialGroupAggregate{}
	for rows.Next() {
		var (
			group string
			count int
		)
		if err := rows.Scan(&group, &count); err != nil {
			return nil, err
		}
		agg[group] = count
	}
	return agg, rows.Err()
}

func (r *Repository) ScanServices(ctx context.Context, u model.Unit) (model.ServiceAggregate, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT f.id, f.service_type, f.capacity
        FROM facilities f
        JOIN territorial_units t ON t.level = $1 AND t.id = $2
        WHERE ST_Contains(t.boundary, f.location)`, u.Level.String(), u.ID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	agg := model.ServiceAggregate{}
	for rows.Next() {
		var f model.Facility
		if err := rows.Scan(&f.ID, &f.ServiceType, &f.Capacity); err != nil {
			return nil, err
		}
		agg.AddFacility(f)
	}
	return agg, rows.Err()
}

func (r *Repository) LoadSocialGroups(ctx context.Context, u model.Unit) (model.SocialGroupAggregate, bool, error) {
	var agg model.SocialGroupAggregate
	ok, err := r.load(ctx, u, kindSocialGroups, &agg)
	if agg == nil && ok {
		agg = model.SocialGroupAggregate{}
	}
	return agg, ok, err
}

func (r *Repository) SaveSocialGroups(ctx context.Context, u model.Unit, agg model.SocialGroupAggregate) error {
	return r.save(ctx, u, kindSocialGroups, agg)
}

func (r *Repository) LoadServices(ctx context.Context, u model.Unit) (model.ServiceAggregate, bool, error) {
	var agg model.ServiceAggregate
	ok, err := r.load(ctx, u, kindServices, &agg)
	if agg == nil && ok {
		agg = model.ServiceAggregate{}
	}
	return agg, ok, err
}

func (r *Repository) SaveServices(ctx context.Context, u model.Unit, agg model.ServiceAggregate) error {
	return r.save(ctx, u, kindServices, agg)
}

func (r *Repository) DeleteAggregates(ctx context.Context, u model.Unit) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM territorial_aggregates
        WHERE level = $1 AND unit_id = $2`, u.Level.String(), u.ID)
	return err
}

func (r *Repository) load(ctx context.Context, u model.Unit, kind string, dst any) (bool, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, `SELECT data FROM territorial_aggregates
        WHERE level = $1 AND unit_id = $2 AND kind = $3`, u.Level.String(), u.ID, kind).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s aggregate of %s: %w", kind, u.Key(), err)
	}
	return true, nil
}

// save replaces the whole mapping so no stale keys survive a recompute.
func (r *Repository) save(ctx context.Context, u model.Unit, kind string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO territorial_aggregates (level, unit_id, kind, data, updated_at)
        VALUES ($1, $2, $3, $4, now())
        ON CONFLICT (level, unit_id, kind) DO UPDATE SET
            data = EXCLUDED.data,
            updated_at = now()`, u.Level.String(), u.ID, kind, data)
	return err
}

func (r *Repository) units(ctx context.Context, query string, args ...any) ([]model.Unit, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUnit(s scanner) (model.Unit, error) {
	var (
		u     model.Unit
		level string
	)
	if err := s.Scan(&u.ID, &level, &u.Name, &u.ParentID); err != nil {
		return model.Unit{}, err
	}
	l, err := model.ParseLevel(level)
	if err != nil {
		return model.Unit{}, err
	}
	u.Level = l
	return u, nil
}
