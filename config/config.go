package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/provision/core/factory"
	"github.com/kilianp07/provision/core/metrics"
	"github.com/kilianp07/provision/infra/mqtt"
)

// Config is the flat configuration handed to the application.
type Config struct {
	Database  DatabaseConfig       `json:"database"`
	Redis     RedisConfig          `json:"redis"`
	Isochrone IsochroneConfig      `json:"isochrone"`
	Pool      PoolConfig           `json:"pool"`
	Reference ReferenceConfig      `json:"reference"`
	Metrics   metrics.Config       `json:"metrics"`
	History   factory.ModuleConfig `json:"history"`
	MQTT      mqtt.Config          `json:"mqtt"`
	Sentry    SentryConfig         `json:"sentry"`
	Log       LogConfig            `json:"log"`
}

// Load reads the file at path, applies K_ prefixed environment overrides
// (K_DATABASE__DSN sets database.dsn), fills defaults and validates.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Database.SetDefaults()
	c.Redis.SetDefaults()
	c.Isochrone.SetDefaults()
	c.Pool.SetDefaults()
	c.Reference.SetDefaults()
	c.Log.SetDefaults()
	c.Sentry.SetDefaults()
	setMQTTDefaults(&c.MQTT)
}

// Validate checks every section and reports all problems at once.
func (c Config) Validate() error {
	var errs []error
	add := func(section string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section, err))
		}
	}
	add("database", c.Database.Validate())
	add("redis", c.Redis.Validate())
	add("isochrone", c.Isochrone.Validate())
	add("pool", c.Pool.Validate())
	add("reference", c.Reference.Validate(c.Database))
	add("log", c.Log.Validate())
	add("sentry", c.Sentry.Validate())
	return errors.Join(errs...)
}

func setMQTTDefaults(c *mqtt.Config) {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "provision"
	}
	if c.InvalidateTopic == "" {
		c.InvalidateTopic = c.TopicPrefix + "/invalidate"
	}
}
