package territory

import (
	"context"
	"fmt"

	"github.com/kilianp07/provision/core/model"
	"github.com/kilianp07/provision/core/taskpool"
)

// Refresh recomputes the aggregates of u from raw data, then re-sums the
// stored children of each of its ancestors.
func (s *Store) Refresh(ctx context.Context, u model.Unit) error {
	if u.Level == model.LevelCity {
		s.city.Reset()
		if _, err := s.SocialGroups(ctx, u, false); err != nil {
			return err
		}
		_, err := s.Services(ctx, u, false)
		return err
	}
	if _, err := s.SocialGroups(ctx, u, true); err != nil {
		return err
	}
	if _, err := s.Services(ctx, u, true); err != nil {
		return err
	}
	ln, err := s.repo.Lineage(ctx, u)
	if err != nil {
		return fmt.Errorf("lineage of %s: %w", u.Key(), err)
	}
	for l := u.Level + 1; l < model.LevelCity; l++ {
		a := ln.At(l)
		if a.Level != l {
			continue
		}
		if _, err := s.SocialGroups(ctx, a, true); err != nil {
			return err
		}
		if _, err := s.Services(ctx, a, true); err != nil {
			return err
		}
	}
	return nil
}

// Refresher invalidates units synchronously and recomputes them on a
// long-lived task pool.
type Refresher struct {
	store *Store
	pool  *taskpool.Pool
}

// NewRefresher starts the pool backing a Refresher. The pool stops when ctx
// is cancelled or Close is called.
func (s *Store) NewRefresher(ctx context.Context, cfg PrecomputeConfig) (*Refresher, error) {
	pool, err := s.newPool(ctx, "refresh", cfg)
	if err != nil {
		return nil, err
	}
	return &Refresher{store: s, pool: pool}, nil
}

// Submit invalidates u and queues its recomputation. It blocks while the
// queue is full.
func (r *Refresher) Submit(ctx context.Context, u model.Unit) error {
	if err := r.store.Invalidate(ctx, u); err != nil {
		return err
	}
	return r.pool.Submit(ctx, func(ctx context.Context, res taskpool.Resources) error {
		return r.store.bind(res).Refresh(ctx, u)
	})
}

// Close waits for queued recomputations and releases worker sessions.
func (r *Refresher) Close() error { return r.pool.Join() }
