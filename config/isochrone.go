package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/kilianp07/provision/core/factory"
	"github.com/kilianp07/provision/core/isochrone"
)

// IsochroneConfig selects the routing provider and the resolver policy.
type IsochroneConfig struct {
	// Provider.Type is "primary" or "alternative".
	Provider factory.ModuleConfig `json:"provider"`
	Resolver isochrone.Config     `json:"resolver"`
}

func (c *IsochroneConfig) SetDefaults() {
	if c.Provider.Type == "" {
		c.Provider.Type = "primary"
	}
	c.Resolver.SetDefaults()
}

func (c IsochroneConfig) Validate() error {
	if c.Provider.Type != "primary" && c.Provider.Type != "alternative" {
		return fmt.Errorf("unknown provider %s", c.Provider.Type)
	}
	if c.Resolver.RetryTimeout < c.Resolver.Timeout {
		return fmt.Errorf("retry_timeout (%s) must not be shorter than timeout (%s)", c.Resolver.RetryTimeout, c.Resolver.Timeout)
	}
	return nil
}

// PoolConfig sizes the worker pools.
type PoolConfig struct {
	Workers      int           `json:"workers"`
	QueueSlack   int           `json:"queue_slack"`
	PollInterval time.Duration `json:"poll_interval"`
}

func (c *PoolConfig) SetDefaults() {
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.QueueSlack == 0 {
		c.QueueSlack = 2
	}
	if c.PollInterval == 0 {
		c.PollInterval = 100 * time.Millisecond
	}
}

func (c PoolConfig) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.QueueSlack < 0 {
		return fmt.Errorf("queue_slack must not be negative")
	}
	return nil
}
