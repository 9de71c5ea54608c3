package isochrone

import (
	"context"
	"math"
	"sync"

	"github.com/twpayne/go-geom"

	"github.com/kilianp07/provision/core/model"
)

// Store persists resolved isochrones keyed by rounded coordinates.
type Store interface {
	// Get returns the cached geometry, which may be empty, and whether the
	// key exists.
	Get(ctx context.Context, k Key) (geom.T, bool, error)
	// Put upserts the geometry for k.
	Put(ctx context.Context, k Key, g geom.T) error
	// Nearest returns the non-empty geometry cached for the same minutes and
	// mode that lies closest to the key's point.
	Nearest(ctx context.Context, k Key) (geom.T, bool, error)
	// Union merges several feature geometries into one.
	Union(ctx context.Context, parts []geom.T) (geom.T, error)
}

// Provider fetches reachability features from an external service.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, lat, lon float64, minutes int, mode model.Mode) ([]geom.T, error)
}

// MemoryStore keeps isochrones in process memory. Union collects the parts
// into a MultiPolygon without dissolving shared boundaries.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[Key]geom.T
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[Key]geom.T)}
}

func (s *MemoryStore) Get(_ context.Context, k Key) (geom.T, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.rows[k]
	return g, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, k Key, g geom.T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[k] = g
	return nil
}

// Nearest ranks candidates by the distance between their origins. Without a
// spatial index this stands in for the distance from each geometry to the
// requested point; the PostGIS store ranks by geometry distance.
func (s *MemoryStore) Nearest(_ context.Context, k Key) (geom.T, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		best geom.T
		dist = math.Inf(1)
	)
	for rk, g := range s.rows {
		if rk.Minutes != k.Minutes || rk.Mode != k.Mode || IsEmpty(g) {
			continue
		}
		if d := math.Hypot(rk.Lat-k.Lat, rk.Lon-k.Lon); d < dist {
			dist, best = d, g
		}
	}
	return best, best != nil, nil
}

func (s *MemoryStore) Union(_ context.Context, parts []geom.T) (geom.T, error) {
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	for _, p := range parts {
		switch g := p.(type) {
		case *geom.Polygon:
			if err := mp.Push(g); err != nil {
				return nil, err
			}
		case *geom.MultiPolygon:
			for i := 0; i < g.NumPolygons(); i++ {
				if err := mp.Push(g.Polygon(i)); err != nil {
					return nil, err
				}
			}
		}
	}
	return mp, nil
}

// Len returns the number of cached rows.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}
