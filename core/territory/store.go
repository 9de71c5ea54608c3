package territory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/provision/core/events"
	"github.com/kilianp07/provision/core/logger"
	"github.com/kilianp07/provision/core/metrics"
	"github.com/kilianp07/provision/core/model"
	"github.com/kilianp07/provision/internal/eventbus"
)

// Store computes and caches aggregates on top of a Repository.
type Store struct {
	repo Repository
	city *CityCache
	log  logger.Logger
	rec  metrics.AggregateRecorder
	bus  eventbus.EventBus
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option { return func(s *Store) { s.log = logger.OrNop(l) } }

// WithRecorder records aggregate computations.
func WithRecorder(r metrics.AggregateRecorder) Option {
	return func(s *Store) {
		if r != nil {
			s.rec = r
		}
	}
}

// WithBus publishes recomputed aggregates on bus.
func WithBus(bus eventbus.EventBus) Option { return func(s *Store) { s.bus = bus } }

// NewStore creates a Store. A nil city cache is replaced by a fresh one.
func NewStore(repo Repository, city *CityCache, opts ...Option) *Store {
	if city == nil {
		city = NewCityCache()
	}
	s := &Store{repo: repo, city: city, log: logger.NopLogger{}, rec: metrics.NopSink{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Repository returns the underlying repository.
func (s *Store) Repository() Repository { return s.repo }

// City returns the city cache shared by this store.
func (s *Store) City() *CityCache { return s.city }

// with returns a copy of s reading and writing through repo.
func (s *Store) with(repo Repository) *Store {
	c := *s
	c.repo = repo
	return &c
}

// SocialGroups returns the population by social group of u. Stored values
// are returned as is unless force is set.
func (s *Store) SocialGroups(ctx context.Context, u model.Unit, force bool) (model.SocialGroupAggregate, error) {
	if err := checkLevel(u.Level); err != nil {
		return nil, fmt.Errorf("%w: %s", err, u.Level)
	}
	if u.Level == model.LevelCity {
		if force {
			s.city.Reset()
		}
		return s.city.SocialGroups(ctx, s.citySocialGroups)
	}
	if !force {
		agg, ok, err := s.repo.LoadSocialGroups(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("load social groups of %s: %w", u.Key(), err)
		}
		if ok {
			return agg, nil
		}
	}

	start := time.Now()
	var (
		agg model.SocialGroupAggregate
		err error
	)
	if u.Level == model.LevelBlock {
		agg, err = s.repo.ScanSocialGroups(ctx, u)
	} else {
		agg, err = s.rollupSocialGroups(ctx, u)
	}
	if err != nil {
		return nil, fmt.Errorf("compute social groups of %s: %w", u.Key(), err)
	}
	if agg == nil {
		agg = model.SocialGroupAggregate{}
	}
	if err := s.repo.SaveSocialGroups(ctx, u, agg); err != nil {
		return nil, fmt.Errorf("save social groups of %s: %w", u.Key(), err)
	}
	s.computed(u, events.KindSocialGroups, force, start)
	s.publish(events.AggregateEvent{Unit: u, Kind: events.KindSocialGroups, SocialGroups: agg, Forced: force, Time: time.Now()})
	return agg, nil
}

// Services returns the facility statistics by service type of u.
func (s *Store) Services(ctx context.Context, u model.Unit, force bool) (model.ServiceAggregate, error) {
	if err := checkLevel(u.Level); err != nil {
		return nil, fmt.Errorf("%w: %s", err, u.Level)
	}
	if u.Level == model.LevelCity {
		if force {
			s.city.Reset()
		}
		return s.city.Services(ctx, s.cityServices)
	}
	if !force {
		agg, ok, err := s.repo.LoadServices(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("load services of %s: %w", u.Key(), err)
		}
		if ok {
			return agg, nil
		}
	}

	start := time.Now()
	var (
		agg model.ServiceAggregate
		err error
	)
	if u.Level == model.LevelBlock {
		agg, err = s.repo.ScanServices(ctx, u)
	} else {
		agg, err = s.rollupServices(ctx, u)
	}
	if err != nil {
		return nil, fmt.Errorf("compute services of %s: %w", u.Key(), err)
	}
	if agg == nil {
		agg = model.ServiceAggregate{}
	}
	if err := s.repo.SaveServices(ctx, u, agg); err != nil {
		return nil, fmt.Errorf("save services of %s: %w", u.Key(), err)
	}
	s.computed(u, events.KindServices, force, start)
	s.publish(events.AggregateEvent{Unit: u, Kind: events.KindServices, Services: agg, Forced: force, Time: time.Now()})
	return agg, nil
}

// rollupSocialGroups sums the stored aggregates of the children of u,
// computing missing children first.
func (s *Store) rollupSocialGroups(ctx context.Context, u model.Unit) (model.SocialGroupAggregate, error) {
	children, err := s.repo.Children(ctx, u)
	if err != nil {
		return nil, err
	}
	agg := model.SocialGroupAggregate{}
	for _, c := range children {
		ca, err := s.SocialGroups(ctx, c, false)
		if err != nil {
			return nil, err
		}
		agg.Add(ca)
	}
	return agg, nil
}

func (s *Store) rollupServices(ctx context.Context, u model.Unit) (model.ServiceAggregate, error) {
	children, err := s.repo.Children(ctx, u)
	if err != nil {
		return nil, err
	}
	agg := model.ServiceAggregate{}
	for _, c := range children {
		ca, err := s.Services(ctx, c, false)
		if err != nil {
			return nil, err
		}
		agg.Add(ca)
	}
	return agg, nil
}

func (s *Store) citySocialGroups(ctx context.Context) (model.SocialGroupAggregate, error) {
	s.log.Debugw("computing city social groups", nil)
	return s.rollupSocialGroups(ctx, model.CityUnit)
}

func (s *Store) cityServices(ctx context.Context) (model.ServiceAggregate, error) {
	s.log.Debugw("computing city services", nil)
	return s.rollupServices(ctx, model.CityUnit)
}

// Invalidate removes the stored aggregates of u and of its ancestors, then
// resets the city cache. The next read recomputes them.
func (s *Store) Invalidate(ctx context.Context, u model.Unit) error {
	if err := checkLevel(u.Level); err != nil {
		return fmt.Errorf("%w: %s", err, u.Level)
	}
	defer s.city.Reset()
	if u.Level == model.LevelCity {
		s.publish(events.InvalidatedEvent{Unit: u, Time: time.Now()})
		return nil
	}
	ln, err := s.repo.Lineage(ctx, u)
	if err != nil {
		return fmt.Errorf("lineage of %s: %w", u.Key(), err)
	}
	targets := []model.Unit{u}
	for l := u.Level + 1; l < model.LevelCity; l++ {
		if a := ln.At(l); a.Level == l {
			targets = append(targets, a)
		}
	}
	var errs []error
	for _, t := range targets {
		if err := s.repo.DeleteAggregates(ctx, t); err != nil {
			errs = append(errs, fmt.Errorf("delete aggregates of %s: %w", t.Key(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.log.Infow("aggregates invalidated", map[string]any{"unit": u.Key(), "removed": len(targets)})
	s.publish(events.InvalidatedEvent{Unit: u, Time: time.Now()})
	return nil
}

func (s *Store) computed(u model.Unit, kind string, force bool, start time.Time) {
	d := time.Since(start)
	s.log.Debugw("aggregate computed", map[string]any{"unit": u.Key(), "kind": kind, "forced": force, "duration": d.String()})
	_ = s.rec.RecordAggregate(metrics.AggregateEvent{Unit: u, Kind: kind, Forced: force, Duration: d})
}

func (s *Store) publish(ev eventbus.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}
