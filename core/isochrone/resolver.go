package isochrone

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/twpayne/go-geom"

	"github.com/kilianp07/provision/core/logger"
	"github.com/kilianp07/provision/core/metrics"
	"github.com/kilianp07/provision/core/model"
)

// Config controls request timeouts and the background retry.
type Config struct {
	Timeout         time.Duration `json:"timeout"`
	BackgroundRetry bool          `json:"background_retry"`
	RetryTimeout    time.Duration `json:"retry_timeout"`
	RetryAttempts   uint64        `json:"retry_attempts"`
	RetryInterval   time.Duration `json:"retry_interval"`
}

// SetDefaults fills unset durations and counts.
func (c *Config) SetDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RetryTimeout <= 0 {
		c.RetryTimeout = 60 * time.Second
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = time.Second
	}
}

// ResolveOption changes the failure policy of a single Resolve call.
type ResolveOption func(*callOptions)

type callOptions struct {
	raiseTimeout bool
	raiseErrors  bool
}

// WithTimeoutError makes Resolve return ErrTimeout instead of falling back
// to the nearest cached geometry.
func WithTimeoutError() ResolveOption {
	return func(o *callOptions) { o.raiseTimeout = true }
}

// WithUpstreamError makes Resolve return provider errors instead of an
// empty polygon.
func WithUpstreamError() ResolveOption {
	return func(o *callOptions) { o.raiseErrors = true }
}

// Resolver turns (point, minutes, mode) into a polygon backed by a Store
// and a Provider.
type Resolver struct {
	cfg      Config
	store    Store
	provider Provider
	log      logger.Logger
	rec      metrics.IsochroneRecorder

	bgCtx    context.Context
	bgCancel context.CancelFunc
	inflight sync.Map
	wg       sync.WaitGroup
}

// NewResolver creates a Resolver. A nil recorder disables metrics.
func NewResolver(cfg Config, store Store, provider Provider, log logger.Logger, rec metrics.IsochroneRecorder) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("isochrone: nil store")
	}
	if provider == nil {
		return nil, errors.New("isochrone: nil provider")
	}
	cfg.SetDefaults()
	if rec == nil {
		rec = metrics.NopSink{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Resolver{
		cfg:      cfg,
		store:    store,
		provider: provider,
		log:      logger.OrNop(log),
		rec:      rec,
		bgCtx:    ctx,
		bgCancel: cancel,
	}, nil
}

// Resolve returns the isochrone for the given point. By default timeouts
// fall back to the nearest cached geometry and other upstream failures
// degrade to an empty polygon.
func (r *Resolver) Resolve(ctx context.Context, lat, lon float64, minutes int, mode model.Mode, opts ...ResolveOption) (geom.T, error) {
	var o callOptions
	for _, fn := range opts {
		fn(&o)
	}
	k := NewKey(lat, lon, minutes, mode)
	if err := k.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	g, ok, err := r.store.Get(ctx, k)
	switch {
	case err != nil:
		r.log.Warnw("isochrone cache lookup failed", map[string]any{"key": k.String(), "error": err.Error()})
	case ok:
		r.record(k, metrics.IsochroneHit, start)
		return g, nil
	}

	g, err = r.fetch(ctx, k, r.cfg.Timeout)
	if err == nil {
		if IsEmpty(g) {
			r.record(k, metrics.IsochroneEmpty, start)
		} else {
			r.record(k, metrics.IsochroneFetched, start)
		}
		return g, nil
	}

	if IsTimeout(err) {
		if r.cfg.BackgroundRetry {
			r.retryLater(k)
		}
		if o.raiseTimeout {
			r.record(k, metrics.IsochroneTimeout, start)
			if errors.Is(err, ErrTimeout) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %s: %w", ErrTimeout, k, err)
		}
		r.log.Warnw("isochrone provider timed out, using nearest cached geometry", map[string]any{"key": k.String(), "provider": r.provider.Name(), "error": err.Error()})
		near, found, nerr := r.store.Nearest(ctx, k)
		if nerr != nil {
			r.log.Errorw("nearest isochrone lookup failed", map[string]any{"key": k.String(), "error": nerr.Error()})
		}
		r.record(k, metrics.IsochroneFallback, start)
		if found {
			return near, nil
		}
		return Empty(), nil
	}

	r.record(k, metrics.IsochroneError, start)
	if o.raiseErrors {
		if errors.Is(err, ErrUpstream) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrUpstream, k, err)
	}
	r.log.Errorw("isochrone resolution failed", map[string]any{"key": k.String(), "provider": r.provider.Name(), "error": err.Error()})
	return Empty(), nil
}

// fetch calls the provider, merges its features and persists the result.
func (r *Resolver) fetch(ctx context.Context, k Key, timeout time.Duration) (geom.T, error) {
	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	parts, err := r.provider.Fetch(fctx, k.Lat, k.Lon, k.Minutes, k.Mode)
	if err != nil {
		return nil, err
	}
	var g geom.T
	switch len(parts) {
	case 0:
		g = Empty()
	case 1:
		g = parts[0]
	default:
		g, err = r.store.Union(ctx, parts)
		if err != nil {
			return nil, fmt.Errorf("union %d features: %w", len(parts), err)
		}
	}
	if err := r.store.Put(ctx, k, g); err != nil {
		r.log.Errorw("isochrone cache write failed", map[string]any{"key": k.String(), "error": err.Error()})
	}
	return g, nil
}

// retryLater fetches k in the background with a longer timeout. The result
// only reaches the store; the caller that triggered it is not affected. At
// most one retry runs per key.
func (r *Resolver) retryLater(k Key) {
	if _, loaded := r.inflight.LoadOrStore(k, struct{}{}); loaded {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.inflight.Delete(k)
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = r.cfg.RetryInterval
		eb.MaxElapsedTime = 0
		b := backoff.WithContext(backoff.WithMaxRetries(eb, r.cfg.RetryAttempts), r.bgCtx)
		attempt := 0
		err := backoff.Retry(func() error {
			attempt++
			_, err := r.fetch(r.bgCtx, k, r.cfg.RetryTimeout)
			if err != nil && !IsTimeout(err) {
				return backoff.Permanent(err)
			}
			return err
		}, b)
		if err != nil {
			r.log.Warnw("background isochrone retry gave up", map[string]any{"key": k.String(), "attempts": attempt, "error": err.Error()})
			return
		}
		r.log.Infow("background isochrone retry stored geometry", map[string]any{"key": k.String(), "attempts": attempt})
	}()
}

// Wait blocks until background retries have finished.
func (r *Resolver) Wait() {
	r.wg.Wait()
}

// Close cancels pending background retries and waits for them.
func (r *Resolver) Close() {
	r.bgCancel()
	r.wg.Wait()
}

func (r *Resolver) record(k Key, outcome string, start time.Time) {
	_ = r.rec.RecordIsochrone(metrics.IsochroneEvent{
		Mode:    k.Mode,
		Minutes: k.Minutes,
		Outcome: outcome,
		Latency: time.Since(start),
	})
}
