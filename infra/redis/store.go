// Package redis puts a Redis hot tier in front of a durable isochrone store.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/kilianp07/provision/core/isochrone"
	"github.com/kilianp07/provision/core/logger"
)

// Options configures the Redis client and the cached entries.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

// Open connects to Redis and pings it.
func Open(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return client, nil
}

// TieredStore serves reads from Redis and falls back to the cold store.
// Redis failures are logged and never surface to callers.
type TieredStore struct {
	client redis.Cmdable
	cold   isochrone.Store
	ttl    time.Duration
	prefix string
	log    logger.Logger
}

// NewTieredStore wraps cold with a Redis cache. A zero TTL keeps entries forever.
func NewTieredStore(client redis.Cmdable, cold isochrone.Store, opts Options, log logger.Logger) *TieredStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "isochrone:"
	}
	return &TieredStore{client: client, cold: cold, ttl: opts.TTL, prefix: prefix, log: logger.OrNop(log)}
}

func (s *TieredStore) key(k isochrone.Key) string { return s.prefix + k.String() }

func (s *TieredStore) Get(ctx context.Context, k isochrone.Key) (geom.T, bool, error) {
	data, err := s.client.Get(ctx, s.key(k)).Bytes()
	switch {
	case err == nil:
		var g geom.T
		derr := geojson.Unmarshal(data, &g)
		if derr == nil {
			return g, true, nil
		}
		s.log.Warnw("discarding undecodable cached isochrone", map[string]any{"key": k.String(), "error": derr.Error()})
	case !errors.Is(err, redis.Nil):
		s.log.Warnw("redis get failed", map[string]any{"key": k.String(), "error": err.Error()})
	}

	g, ok, err := s.cold.Get(ctx, k)
	if err != nil || !ok {
		return g, ok, err
	}
	s.cache(ctx, k, g)
	return g, true, nil
}

// Put writes the cold store first, then refreshes the hot entry.
func (s *TieredStore) Put(ctx context.Context, k isochrone.Key, g geom.T) error {
	if err := s.cold.Put(ctx, k, g); err != nil {
		return err
	}
	s.cache(ctx, k, g)
	return nil
}

func (s *TieredStore) Nearest(ctx context.Context, k isochrone.Key) (geom.T, bool, error) {
	return s.cold.Nearest(ctx, k)
}

func (s *TieredStore) Union(ctx context.Context, parts []geom.T) (geom.T, error) {
	return s.cold.Union(ctx, parts)
}

func (s *TieredStore) cache(ctx context.Context, k isochrone.Key, g geom.T) {
	data, err := geojson.Marshal(g)
	if err != nil {
		s.log.Warnw("encode isochrone for redis", map[string]any{"key": k.String(), "error": err.Error()})
		return
	}
	if err := s.client.Set(ctx, s.key(k), string(data), s.ttl).Err(); err != nil {
		s.log.Warnw("redis set failed", map[string]any{"key": k.String(), "error": err.Error()})
	}
}
