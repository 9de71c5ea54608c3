package territory

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/provision/core/metrics"
	"github.com/kilianp07/provision/core/model"
	"github.com/kilianp07/provision/core/taskpool"
)

const repoResource = "repo"

// PrecomputeConfig sizes the worker pools used by Precompute.
type PrecomputeConfig struct {
	Workers      int
	QueueSlack   int
	PollInterval time.Duration
	Recorder     metrics.TaskRecorder
}

// LevelReport summarizes one level of a Precompute run.
type LevelReport struct {
	Level    model.Level   `json:"level"`
	Units    int           `json:"units"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// PrecomputeReport summarizes a Precompute run.
type PrecomputeReport struct {
	Levels []LevelReport `json:"levels"`
	City   struct {
		Population int `json:"population"`
		Facilities int `json:"facilities"`
	} `json:"city"`
}

// Precompute forces the aggregates of every block, then every municipality,
// then every district. Each level is joined before the next one starts so
// that roll-ups only read committed children. The city cache is warmed last.
func (s *Store) Precompute(ctx context.Context, cfg PrecomputeConfig) (PrecomputeReport, error) {
	var rep PrecomputeReport
	for _, lvl := range []model.Level{model.LevelBlock, model.LevelMunicipality, model.LevelDistrict} {
		lr, err := s.precomputeLevel(ctx, lvl, cfg)
		rep.Levels = append(rep.Levels, lr)
		if err != nil {
			return rep, err
		}
	}

	s.city.Reset()
	var (
		groups   model.SocialGroupAggregate
		services model.ServiceAggregate
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		groups, err = s.SocialGroups(gctx, model.CityUnit, false)
		return err
	})
	g.Go(func() error {
		var err error
		services, err = s.Services(gctx, model.CityUnit, false)
		return err
	})
	if err := g.Wait(); err != nil {
		return rep, fmt.Errorf("warm city cache: %w", err)
	}
	rep.City.Population = groups.Total()
	for _, st := range services {
		rep.City.Facilities += st.Count
	}
	return rep, nil
}

func (s *Store) precomputeLevel(ctx context.Context, lvl model.Level, cfg PrecomputeConfig) (LevelReport, error) {
	lr := LevelReport{Level: lvl}
	start := time.Now()
	units, err := s.repo.Units(ctx, lvl)
	if err != nil {
		return lr, fmt.Errorf("list %s units: %w", lvl, err)
	}
	lr.Units = len(units)
	if len(units) == 0 {
		return lr, nil
	}

	pool, err := s.newPool(ctx, "precompute_"+lvl.String(), cfg)
	if err != nil {
		return lr, err
	}

	var failed atomic.Int64
	for _, u := range units {
		u := u
		err := pool.Submit(ctx, func(ctx context.Context, res taskpool.Resources) error {
			st := s.bind(res)
			if _, err := st.SocialGroups(ctx, u, true); err != nil {
				failed.Add(1)
				return err
			}
			if _, err := st.Services(ctx, u, true); err != nil {
				failed.Add(1)
				return err
			}
			return nil
		})
		if err != nil {
			pool.Stop()
			_ = pool.Join()
			return lr, fmt.Errorf("submit %s: %w", u.Key(), err)
		}
	}
	if err := pool.Join(); err != nil {
		s.log.Warnw("precompute pool teardown failed", map[string]any{"level": lvl.String(), "error": err.Error()})
	}
	lr.Failed = int(failed.Load())
	lr.Duration = time.Since(start)
	s.log.Infow("level precomputed", map[string]any{"level": lvl.String(), "units": lr.Units, "failed": lr.Failed, "duration": lr.Duration.String()})
	return lr, nil
}

// newPool starts a pool whose workers each hold their own repository
// session when the repository supports sessions.
func (s *Store) newPool(ctx context.Context, name string, cfg PrecomputeConfig) (*taskpool.Pool, error) {
	opts := []taskpool.Option{taskpool.WithLogger(s.log), taskpool.WithRecorder(cfg.Recorder)}
	if sess, ok := s.repo.(Sessioner); ok {
		opts = append(opts,
			taskpool.WithResource(repoResource, func(ctx context.Context) (any, error) { return sess.Session(ctx) }),
			taskpool.WithTeardown(repoResource, func(r any) error { return r.(Session).Close() }),
		)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return taskpool.NewPool(ctx, taskpool.Config{
		Name:         name,
		Workers:      workers,
		QueueSlack:   cfg.QueueSlack,
		PollInterval: cfg.PollInterval,
	}, opts...)
}

// bind returns a store reading through the worker's session, if any.
func (s *Store) bind(res taskpool.Resources) *Store {
	if r, ok := res[repoResource].(Repository); ok {
		return s.with(r)
	}
	return s
}
