package config

import (
	"fmt"
	"time"
)

// DatabaseConfig selects the persistent store.
type DatabaseConfig struct {
	// Driver is "postgres" or "memory". The memory driver keeps everything
	// in process and is meant for dry runs.
	Driver          string        `json:"driver"`
	DSN             string        `json:"dsn"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	// Migrate creates missing tables at startup.
	Migrate bool `json:"migrate"`
}

func (c *DatabaseConfig) SetDefaults() {
	if c.Driver == "" {
		c.Driver = "postgres"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 20
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 10
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
}

func (c DatabaseConfig) Validate() error {
	switch c.Driver {
	case "postgres":
		if c.DSN == "" {
			return fmt.Errorf("dsn is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown driver %s", c.Driver)
	}
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 {
		return fmt.Errorf("connection limits must not be negative")
	}
	return nil
}

// RedisConfig enables the hot isochrone tier when Addr is set.
type RedisConfig struct {
	Addr     string        `json:"addr"`
	Password string        `json:"password"`
	DB       int           `json:"db"`
	TTL      time.Duration `json:"ttl"`
	Prefix   string        `json:"prefix"`
}

func (c *RedisConfig) SetDefaults() {
	if c.TTL == 0 {
		c.TTL = 24 * time.Hour
	}
	if c.Prefix == "" {
		c.Prefix = "isochrone:"
	}
}

func (c RedisConfig) Validate() error {
	if c.DB < 0 {
		return fmt.Errorf("db must not be negative")
	}
	if c.TTL < 0 {
		return fmt.Errorf("ttl must not be negative")
	}
	return nil
}

// Enabled reports whether the hot tier is configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }
