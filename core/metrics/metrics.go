package metrics

import (
	"time"

	"github.com/kilianp07/provision/core/model"
)

// AggregationEvent describes one provision aggregation for a target unit.
type AggregationEvent struct {
	Target             model.Unit
	SocialGroup        string
	LivingSituation    string
	ServiceType        string
	Loyalty            float64
	AlternativeLoyalty float64
	Calculations       int
	Duration           time.Duration
	Time               time.Time
}

// MetricsSink records aggregation results for observability purposes.
type MetricsSink interface {
	RecordAggregation(ev AggregationEvent) error
}

// Isochrone lookup outcomes.
const (
	IsochroneHit      = "hit"
	IsochroneFetched  = "fetched"
	IsochroneEmpty    = "empty"
	IsochroneFallback = "fallback"
	IsochroneTimeout  = "timeout"
	IsochroneError    = "error"
)

// IsochroneEvent captures a single geometry resolution.
type IsochroneEvent struct {
	Mode    model.Mode
	Minutes int
	Outcome string
	Latency time.Duration
}

// IsochroneRecorder records isochrone resolutions.
type IsochroneRecorder interface {
	RecordIsochrone(ev IsochroneEvent) error
}

// Task outcomes.
const (
	TaskOK      = "ok"
	TaskFailed  = "failed"
	TaskPanic   = "panic"
	TaskDropped = "dropped"
)

// TaskEvent captures the completion of a task pool item.
type TaskEvent struct {
	Pool     string
	Outcome  string
	Duration time.Duration
}

// TaskRecorder records task pool outcomes.
type TaskRecorder interface {
	RecordTask(ev TaskEvent) error
}

// AggregateEvent records the (re)computation of a territorial aggregate.
type AggregateEvent struct {
	Unit     model.Unit
	Kind     string
	Forced   bool
	Duration time.Duration
}

// AggregateRecorder records aggregate computations.
type AggregateRecorder interface {
	RecordAggregate(ev AggregateEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordAggregation(AggregationEvent) error { return nil }
func (NopSink) RecordIsochrone(IsochroneEvent) error     { return nil }
func (NopSink) RecordTask(TaskEvent) error               { return nil }
func (NopSink) RecordAggregate(AggregateEvent) error     { return nil }
