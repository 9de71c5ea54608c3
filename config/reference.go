package config

import "fmt"

// ReferenceConfig locates the need and infrastructure tables.
type ReferenceConfig struct {
	// Source is "file" or "database".
	Source string `json:"source"`
	// Path is the YAML or JSON file read when Source is "file".
	Path string `json:"path"`
}

func (c *ReferenceConfig) SetDefaults() {
	if c.Source == "" {
		c.Source = "file"
	}
}

func (c ReferenceConfig) Validate(db DatabaseConfig) error {
	switch c.Source {
	case "file":
		if c.Path == "" {
			return fmt.Errorf("path is required")
		}
	case "database":
		if db.Driver != "postgres" {
			return fmt.Errorf("database source requires the postgres driver")
		}
	default:
		return fmt.Errorf("unknown source %s", c.Source)
	}
	return nil
}
