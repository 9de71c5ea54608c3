package postgres

import (
	"context"
	"database/sql"

	"github.com/kilianp07/provision/core/model"
	"github.com/kilianp07/provision/core/provision/reference"
)

// LoadReference reads the need and infrastructure tables.
func LoadReference(ctx context.Context, db *sql.DB) (reference.Tables, error) {
	var t reference.Tables
	rows, err := db.QueryContext(ctx, `SELECT social_group, living_situation, service_type,
        walking, transit, car, intensity, significance FROM needs
        ORDER BY social_group, living_situation, service_type`)
	if err != nil {
		return t, err
	}
	for rows.Next() {
		var n model.Need
		if err := rows.Scan(&n.SocialGroup, &n.LivingSituation, &n.ServiceType,
			&n.WalkingMinutes, &n.TransitMinutes, &n.CarMinutes, &n.Intensity, &n.Significance); err != nil {
			_ = rows.Close()
			return t, err
		}
		t.Needs = append(t.Needs, n)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return t, err
	}
	_ = rows.Close()

	rows, err = db.QueryContext(ctx, `SELECT infrastructure, function, service_type
        FROM infrastructure ORDER BY service_type`)
	if err != nil {
		return t, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var in model.Infrastructure
		if err := rows.Scan(&in.Infrastructure, &in.Function, &in.ServiceType); err != nil {
			return t, err
		}
		t.Infrastructure = append(t.Infrastructure, in)
	}
	return t, rows.Err()
}
