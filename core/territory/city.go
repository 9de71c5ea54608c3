package territory

import (
	"context"
	"sync"

	"github.com/kilianp07/provision/core/model"
)

// CityCache memoizes the city-wide aggregates for the lifetime of the
// cache. It is not persisted. Callers share one cache per run and Reset it
// when underlying aggregates change.
type CityCache struct {
	mu       sync.Mutex
	groups   model.SocialGroupAggregate
	services model.ServiceAggregate
}

func NewCityCache() *CityCache { return &CityCache{} }

// SocialGroups returns the cached mapping, computing it on first use.
func (c *CityCache) SocialGroups(ctx context.Context, compute func(context.Context) (model.SocialGroupAggregate, error)) (model.SocialGroupAggregate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.groups == nil {
		agg, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.groups = agg
	}
	out := make(model.SocialGroupAggregate, len(c.groups))
	out.Add(c.groups)
	return out, nil
}

// Services returns the cached mapping, computing it on first use.
func (c *CityCache) Services(ctx context.Context, compute func(context.Context) (model.ServiceAggregate, error)) (model.ServiceAggregate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.services == nil {
		agg, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.services = agg
	}
	out := make(model.ServiceAggregate, len(c.services))
	out.Add(c.services)
	return out, nil
}

// Reset drops the cached aggregates.
func (c *CityCache) Reset() {
	c.mu.Lock()
	c.groups = nil
	c.services = nil
	c.mu.Unlock()
}
