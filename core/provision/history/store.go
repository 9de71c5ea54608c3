package history

import (
	"context"
	"time"

	"github.com/kilianp07/provision/core/model"
)

// Record captures one aggregation run and its result.
type Record struct {
	RunID              string        `json:"run_id"`
	Timestamp          time.Time     `json:"timestamp"`
	Target             model.Unit    `json:"target"`
	SocialGroup        string        `json:"social_group,omitempty"`
	LivingSituation    string        `json:"living_situation,omitempty"`
	ServiceType        string        `json:"service_type,omitempty"`
	Loyalty            float64       `json:"loyalty"`
	AlternativeLoyalty float64       `json:"alternative_loyalty"`
	Calculations       int           `json:"calculations"`
	Duration           time.Duration `json:"duration"`
}

// Query defines filters for retrieving records. Zero fields match everything.
type Query struct {
	Start       time.Time
	End         time.Time
	Level       *model.Level
	TargetID    int64
	ServiceType string
}

// Match reports whether r passes the filters.
func (q Query) Match(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Level != nil && r.Target.Level != *q.Level {
		return false
	}
	if q.TargetID != 0 && r.Target.ID != q.TargetID {
		return false
	}
	if q.ServiceType != "" && r.ServiceType != q.ServiceType {
		return false
	}
	return true
}

// LogStore persists Records and supports querying.
type LogStore interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// NopStore discards records.
type NopStore struct{}

func (NopStore) Append(context.Context, Record) error          { return nil }
func (NopStore) Query(context.Context, Query) ([]Record, error) { return nil, nil }
func (NopStore) Close() error                                   { return nil }
