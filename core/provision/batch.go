package provision

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kilianp07/provision/core/metrics"
	"github.com/kilianp07/provision/core/model"
	"github.com/kilianp07/provision/core/taskpool"
)

// BatchConfig sizes the pool used by AggregateLevel.
type BatchConfig struct {
	Workers    int
	QueueSlack int
	Recorder   metrics.TaskRecorder
}

// UnitFailure records a unit whose aggregation failed.
type UnitFailure struct {
	Unit  model.Unit `json:"unit"`
	Error string     `json:"error"`
}

// BatchResult holds the per-unit results of AggregateLevel, ordered by unit id.
type BatchResult struct {
	Results  []Result      `json:"results"`
	Failures []UnitFailure `json:"failures,omitempty"`
}

// AggregateLevel scores every unit of a level on a task pool. Filters in q
// apply to every unit; q.Target is ignored. Aggregates of the level should
// be precomputed so workers only read them.
func (e *Engine) AggregateLevel(ctx context.Context, level model.Level, q Query, cfg BatchConfig) (BatchResult, error) {
	var out BatchResult
	switch level {
	case model.LevelBlock, model.LevelMunicipality, model.LevelDistrict:
	default:
		return out, inputError("level", level.String(), ErrInvalidTarget)
	}
	if _, _, _, err := e.scope(q); err != nil {
		return out, err
	}
	units, err := e.store.Repository().Units(ctx, level)
	if err != nil {
		return out, fmt.Errorf("list %s units: %w", level, err)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	pool, err := taskpool.NewPool(ctx, taskpool.Config{Name: "aggregate_" + level.String(), Workers: workers, QueueSlack: cfg.QueueSlack},
		taskpool.WithLogger(e.log), taskpool.WithRecorder(cfg.Recorder))
	if err != nil {
		return out, err
	}

	var mu sync.Mutex
	for _, u := range units {
		u := u
		uq := q
		uq.Target = Target{Level: level, ID: u.ID}
		err := pool.Submit(ctx, func(ctx context.Context, _ taskpool.Resources) error {
			res, err := e.Aggregate(ctx, uq)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				out.Failures = append(out.Failures, UnitFailure{Unit: u, Error: err.Error()})
				return err
			}
			out.Results = append(out.Results, res)
			return nil
		})
		if err != nil {
			pool.Stop()
			_ = pool.Join()
			return out, fmt.Errorf("submit %s: %w", u.Key(), err)
		}
	}
	if err := pool.Join(); err != nil {
		e.log.Warnw("aggregation pool teardown failed", map[string]any{"error": err.Error()})
	}
	sort.Slice(out.Results, func(i, j int) bool { return out.Results[i].Target.ID < out.Results[j].Target.ID })
	sort.Slice(out.Failures, func(i, j int) bool { return out.Failures[i].Unit.ID < out.Failures[j].Unit.ID })
	return out, nil
}
