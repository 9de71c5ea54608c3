// Package reference loads need and infrastructure tables from files.
package reference

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/provision/core/model"
	"github.com/kilianp07/provision/core/provision"
)

// Tables is the raw content of a reference file.
type Tables struct {
	Needs          []model.Need           `json:"needs" yaml:"needs"`
	Infrastructure []model.Infrastructure `json:"infrastructure" yaml:"infrastructure"`
}

// Decode parses r as YAML or JSON depending on format ("yaml", "yml" or "json").
// Unknown fields are rejected.
func Decode(r io.Reader, format string) (Tables, error) {
	var t Tables
	data, err := io.ReadAll(r)
	if err != nil {
		return t, err
	}
	switch strings.ToLower(format) {
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&t); err != nil {
			return t, fmt.Errorf("decode json reference: %w", err)
		}
	case "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&t); err != nil && err != io.EOF {
			return t, fmt.Errorf("decode yaml reference: %w", err)
		}
	default:
		return t, fmt.Errorf("unsupported reference format %q", format)
	}
	return t, nil
}

// LoadFile reads a reference file, choosing the format from its extension.
func LoadFile(path string) (Tables, error) {
	f, err := os.Open(path)
	if err != nil {
		return Tables{}, err
	}
	defer func() { _ = f.Close() }()
	return Decode(f, strings.TrimPrefix(filepath.Ext(path), "."))
}

// Catalog validates the tables into a provision.Catalog.
func (t Tables) Catalog() (*provision.Catalog, error) {
	return provision.NewCatalog(t.Needs, t.Infrastructure)
}

// LoadCatalog reads and validates a reference file.
func LoadCatalog(path string) (*provision.Catalog, error) {
	t, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return t.Catalog()
}
