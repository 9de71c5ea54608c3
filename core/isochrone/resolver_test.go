package isochrone

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/kilianp07/provision/core/metrics"
	"github.com/kilianp07/provision/core/model"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls int
	// results are consumed in order; the last one repeats.
	results []fakeResult
}

type fakeResult struct {
	parts []geom.T
	err   error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Fetch(context.Context, float64, float64, int, model.Mode) ([]geom.T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++
	return f.results[i].parts, f.results[i].err
}

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *outcomeRecorder) RecordIsochrone(ev metrics.IsochroneEvent) error {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, ev.Outcome)
	r.mu.Unlock()
	return nil
}

func square(x, y, size float64) *geom.Polygon {
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y},
	}})
}

func newTestResolver(t *testing.T, cfg Config, p Provider, rec metrics.IsochroneRecorder) (*Resolver, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	r, err := NewResolver(cfg, store, p, nil, rec)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r, store
}

func TestResolve_SecondCallServedFromCache(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{{parts: []geom.T{square(30, 59, 0.01)}}}}
	rec := &outcomeRecorder{}
	r, _ := newTestResolver(t, Config{}, p, rec)

	g1, err := r.Resolve(context.Background(), 59.93, 30.31, 10, model.ModeWalking)
	require.NoError(t, err)
	g2, err := r.Resolve(context.Background(), 59.93, 30.31, 10, model.ModeWalking)
	require.NoError(t, err)

	assert.Equal(t, 1, p.Calls())
	assert.Equal(t, g1.FlatCoords(), g2.FlatCoords())
	assert.Equal(t, []string{metrics.IsochroneFetched, metrics.IsochroneHit}, rec.outcomes)
}

func TestResolve_RoundingCollapsesKeys(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{{parts: []geom.T{square(30, 59, 0.01)}}}}
	r, store := newTestResolver(t, Config{}, p, nil)

	_, err := r.Resolve(context.Background(), 59.9300001, 30.3100004, 15, model.ModeCar)
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), 59.9299999, 30.3099996, 15, model.ModeCar)
	require.NoError(t, err)

	assert.Equal(t, 1, p.Calls())
	assert.Equal(t, 1, store.Len())
	_, ok, _ := store.Get(context.Background(), Key{Lat: 59.93, Lon: 30.31, Minutes: 15, Mode: model.ModeCar})
	assert.True(t, ok)
}

func TestResolve_DifferentModeIsDifferentKey(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{{parts: []geom.T{square(30, 59, 0.01)}}}}
	r, _ := newTestResolver(t, Config{}, p, nil)
	_, _ = r.Resolve(context.Background(), 59.93, 30.31, 15, model.ModeCar)
	_, _ = r.Resolve(context.Background(), 59.93, 30.31, 15, model.ModeWalking)
	assert.Equal(t, 2, p.Calls())
}

func TestResolve_EmptyResponseIsCached(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{{}}}
	rec := &outcomeRecorder{}
	r, _ := newTestResolver(t, Config{}, p, rec)

	g, err := r.Resolve(context.Background(), 1, 2, 5, model.ModeTransit)
	require.NoError(t, err)
	assert.True(t, IsEmpty(g))
	g, err = r.Resolve(context.Background(), 1, 2, 5, model.ModeTransit)
	require.NoError(t, err)
	assert.True(t, IsEmpty(g))
	assert.Equal(t, 1, p.Calls())
	assert.Equal(t, []string{metrics.IsochroneEmpty, metrics.IsochroneHit}, rec.outcomes)
}

func TestResolve_MultipleFeaturesAreUnited(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{{parts: []geom.T{square(0, 0, 1), square(2, 2, 1)}}}}
	r, _ := newTestResolver(t, Config{}, p, nil)

	g, err := r.Resolve(context.Background(), 0.5, 0.5, 20, model.ModeWalking)
	require.NoError(t, err)
	mp, ok := g.(*geom.MultiPolygon)
	require.True(t, ok, "expected MultiPolygon, got %T", g)
	assert.Equal(t, 2, mp.NumPolygons())
}

func TestResolve_TimeoutFallsBackToNearest(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{{err: ErrTimeout}}}
	r, store := newTestResolver(t, Config{}, p, nil)
	ctx := context.Background()
	near := square(30.3, 59.9, 0.01)
	far := square(40, 50, 0.01)
	require.NoError(t, store.Put(ctx, NewKey(59.9, 30.3, 10, model.ModeWalking), near))
	require.NoError(t, store.Put(ctx, NewKey(50, 40, 10, model.ModeWalking), far))
	require.NoError(t, store.Put(ctx, NewKey(59.91, 30.31, 20, model.ModeWalking), far))
	require.NoError(t, store.Put(ctx, NewKey(59.905, 30.305, 10, model.ModeWalking), Empty()))

	g, err := r.Resolve(ctx, 59.91, 30.31, 10, model.ModeWalking)
	require.NoError(t, err)
	assert.Equal(t, near.FlatCoords(), g.FlatCoords())
}

func TestResolve_TimeoutWithoutCandidatesReturnsEmpty(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{{err: context.DeadlineExceeded}}}
	r, _ := newTestResolver(t, Config{}, p, nil)
	g, err := r.Resolve(context.Background(), 1, 1, 10, model.ModeCar)
	require.NoError(t, err)
	assert.True(t, IsEmpty(g))
}

func TestResolve_TimeoutRaisedWhenRequested(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{{err: context.DeadlineExceeded}}}
	r, _ := newTestResolver(t, Config{}, p, nil)
	_, err := r.Resolve(context.Background(), 1, 1, 10, model.ModeCar, WithTimeoutError())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestResolve_UpstreamErrorPolicy(t *testing.T) {
	boom := errors.New("bad gateway")
	p := &fakeProvider{results: []fakeResult{{err: boom}}}
	r, store := newTestResolver(t, Config{}, p, nil)

	g, err := r.Resolve(context.Background(), 1, 1, 10, model.ModeCar)
	require.NoError(t, err)
	assert.True(t, IsEmpty(g))
	assert.Zero(t, store.Len(), "failed fetches must not be cached")

	_, err = r.Resolve(context.Background(), 1, 1, 10, model.ModeCar, WithUpstreamError())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, boom)
}

func TestResolve_BackgroundRetryFillsCache(t *testing.T) {
	good := square(10, 10, 1)
	p := &fakeProvider{results: []fakeResult{{err: ErrTimeout}, {parts: []geom.T{good}}}}
	r, store := newTestResolver(t, Config{BackgroundRetry: true, RetryInterval: time.Millisecond}, p, nil)

	g, err := r.Resolve(context.Background(), 10.5, 10.5, 30, model.ModeTransit)
	require.NoError(t, err)
	assert.True(t, IsEmpty(g), "the triggering call is not affected by the retry")

	r.Wait()
	cached, ok, err := store.Get(context.Background(), NewKey(10.5, 10.5, 30, model.ModeTransit))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, good.FlatCoords(), cached.FlatCoords())
	assert.Equal(t, 2, p.Calls())
}

func TestResolve_BackgroundRetryStopsOnPermanentError(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{{err: ErrTimeout}, {err: ErrUpstream}}}
	r, store := newTestResolver(t, Config{BackgroundRetry: true, RetryInterval: time.Millisecond, RetryAttempts: 5}, p, nil)
	_, err := r.Resolve(context.Background(), 3, 3, 30, model.ModeTransit)
	require.NoError(t, err)
	r.Wait()
	assert.Equal(t, 2, p.Calls())
	assert.Zero(t, store.Len())
}

func TestResolve_InvalidInput(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{{}}}
	r, _ := newTestResolver(t, Config{}, p, nil)
	_, err := r.Resolve(context.Background(), 91, 0, 10, model.ModeWalking)
	assert.Error(t, err)
	_, err = r.Resolve(context.Background(), 0, 0, 0, model.ModeWalking)
	assert.Error(t, err)
	assert.Zero(t, p.Calls())
}

func TestRound(t *testing.T) {
	assert.Equal(t, 59.934567, Round(59.9345671))
	assert.Equal(t, NewKey(1.0000001, 2.0000004, 5, model.ModeCar), NewKey(1.0000004, 1.9999996, 5, model.ModeCar))
}
