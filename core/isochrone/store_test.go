package isochrone

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/kilianp07/provision/core/model"
)

func TestMemoryStore_PutOverwrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	k := NewKey(1, 1, 10, model.ModeWalking)
	require.NoError(t, s.Put(ctx, k, Empty()))
	require.NoError(t, s.Put(ctx, k, square(0, 0, 1)))
	g, ok, err := s.Get(ctx, k)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, IsEmpty(g))
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_NearestRanksByOrigin(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	near, far := square(1, 1, 1), square(5, 5, 1)
	require.NoError(t, s.Put(ctx, NewKey(1, 1, 10, model.ModeWalking), near))
	require.NoError(t, s.Put(ctx, NewKey(5, 5, 10, model.ModeWalking), far))
	require.NoError(t, s.Put(ctx, NewKey(2, 2, 15, model.ModeWalking), square(2, 2, 1)))
	require.NoError(t, s.Put(ctx, NewKey(2, 2, 10, model.ModeCar), square(2, 2, 1)))
	require.NoError(t, s.Put(ctx, NewKey(2.1, 2.1, 10, model.ModeWalking), Empty()))

	g, ok, err := s.Nearest(ctx, NewKey(2, 2, 10, model.ModeWalking))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, near, g)

	_, ok, err = s.Nearest(ctx, NewKey(2, 2, 30, model.ModeWalking))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_UnionFlattensMultiPolygons(t *testing.T) {
	s := NewMemoryStore()
	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(square(0, 0, 1)))
	require.NoError(t, mp.Push(square(3, 3, 1)))
	g, err := s.Union(context.Background(), []geom.T{mp, square(5, 5, 1)})
	require.NoError(t, err)
	assert.Equal(t, 3, g.(*geom.MultiPolygon).NumPolygons())
}

func TestKeyValidate(t *testing.T) {
	assert.NoError(t, NewKey(59.9, 30.3, 10, model.ModeCar).Validate())
	assert.Error(t, NewKey(59.9, 190, 10, model.ModeCar).Validate())
	assert.Error(t, NewKey(59.9, 30.3, -1, model.ModeCar).Validate())
	assert.Error(t, Key{Lat: 1, Lon: 1, Minutes: 1, Mode: model.Mode(9)}.Validate())
	assert.Equal(t, "walking:10:59.900000:30.300000", NewKey(59.9, 30.3, 10, model.ModeWalking).String())
}
