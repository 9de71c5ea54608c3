package territory

import (
	"context"
	"errors"

	"github.com/kilianp07/provision/core/model"
)

var (
	// ErrUnitNotFound is returned when a unit id or name is unknown.
	ErrUnitNotFound = errors.New("territory: unit not found")
	// ErrUnsupportedLevel is returned for levels that carry no aggregates.
	ErrUnsupportedLevel = errors.New("territory: unsupported level")
)

// Repository gives access to the territorial hierarchy, raw points and
// persisted aggregates.
type Repository interface {
	Unit(ctx context.Context, level model.Level, id int64) (model.Unit, error)
	UnitByName(ctx context.Context, level model.Level, name string) (model.Unit, error)
	Units(ctx context.Context, level model.Level) ([]model.Unit, error)
	// Children returns the direct children of parent. For the city these
	// are the top-level units: districts, municipalities without a district
	// and blocks without a municipality.
	Children(ctx context.Context, parent model.Unit) ([]model.Unit, error)
	Lineage(ctx context.Context, u model.Unit) (model.Lineage, error)

	// ScanSocialGroups counts residents inside the unit boundary.
	ScanSocialGroups(ctx context.Context, u model.Unit) (model.SocialGroupAggregate, error)
	// ScanServices aggregates facilities inside the unit boundary.
	ScanServices(ctx context.Context, u model.Unit) (model.ServiceAggregate, error)

	LoadSocialGroups(ctx context.Context, u model.Unit) (model.SocialGroupAggregate, bool, error)
	// SaveSocialGroups replaces the whole stored mapping of u.
	SaveSocialGroups(ctx context.Context, u model.Unit, agg model.SocialGroupAggregate) error
	LoadServices(ctx context.Context, u model.Unit) (model.ServiceAggregate, bool, error)
	// SaveServices replaces the whole stored mapping of u.
	SaveServices(ctx context.Context, u model.Unit, agg model.ServiceAggregate) error
	// DeleteAggregates removes both stored mappings of u.
	DeleteAggregates(ctx context.Context, u model.Unit) error
}

// Session is a Repository bound to a dedicated connection.
type Session interface {
	Repository
	Close() error
}

// Sessioner is implemented by repositories able to hand out dedicated
// sessions, one per task pool worker.
type Sessioner interface {
	Session(ctx context.Context) (Session, error)
}

func checkLevel(l model.Level) error {
	if l < model.LevelBlock || l > model.LevelCity {
		return ErrUnsupportedLevel
	}
	return nil
}
