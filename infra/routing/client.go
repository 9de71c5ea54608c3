// Package routing implements isochrone providers backed by HTTP routing services.
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/kilianp07/provision/core/isochrone"
	"github.com/kilianp07/provision/core/logger"
	"github.com/kilianp07/provision/core/model"
)

// Config is shared by both provider flavours.
type Config struct {
	URL    string `json:"url"`
	APIKey string `json:"api_key"`
	// Profiles overrides the profile name sent for a travel mode.
	Profiles map[string]string `json:"profiles"`
	// Timeout bounds a single HTTP exchange. The resolver usually sets a
	// shorter deadline through the context.
	Timeout time.Duration `json:"timeout"`
}

type client struct {
	http     *http.Client
	base     string
	apiKey   string
	profiles map[model.Mode]string
	log      logger.Logger
}

func newClient(cfg Config, defaults map[model.Mode]string, log logger.Logger) (*client, error) {
	if cfg.URL == "" {
		return nil, errors.New("routing: url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	profiles := make(map[model.Mode]string, len(defaults))
	for m, p := range defaults {
		profiles[m] = p
	}
	for name, p := range cfg.Profiles {
		m, err := model.ParseMode(name)
		if err != nil {
			return nil, fmt.Errorf("routing profiles: %w", err)
		}
		profiles[m] = p
	}
	return &client{
		http:     &http.Client{Timeout: cfg.Timeout},
		base:     cfg.URL,
		apiKey:   cfg.APIKey,
		profiles: profiles,
		log:      logger.OrNop(log),
	}, nil
}

func (c *client) profile(m model.Mode) (string, error) {
	p, ok := c.profiles[m]
	if !ok {
		return "", fmt.Errorf("%w: no routing profile for mode %s", isochrone.ErrUpstream, m)
	}
	return p, nil
}

// do sends req and decodes the feature geometries of the response.
func (c *client) do(ctx context.Context, req *http.Request) ([]geom.T, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, fmt.Errorf("routing request: %w", ctx.Err())
		}
		if isochrone.IsTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", isochrone.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %w", isochrone.ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusRequestTimeout:
		return nil, fmt.Errorf("%w: status %d", isochrone.ErrTimeout, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", isochrone.ErrUpstream, resp.StatusCode, body)
	}

	parts, err := decodeFeatures(resp.Body)
	if err != nil {
		if isochrone.IsTimeout(err) {
			return nil, fmt.Errorf("%w: %w", isochrone.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %w", isochrone.ErrUpstream, err)
	}
	c.log.Debugw("isochrone fetched", map[string]any{
		"url":      req.URL.String(),
		"features": len(parts),
		"duration": time.Since(start).String(),
	})
	return parts, nil
}

// decodeFeatures extracts the geometries of a GeoJSON feature collection.
// A missing or empty features member yields no geometries.
func decodeFeatures(r io.Reader) ([]geom.T, error) {
	var doc struct {
		Features []struct {
			Geometry json.RawMessage `json:"geometry"`
		} `json:"features"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}
	parts := make([]geom.T, 0, len(doc.Features))
	for i, f := range doc.Features {
		if len(f.Geometry) == 0 || string(f.Geometry) == "null" {
			continue
		}
		var g geom.T
		if err := geojson.Unmarshal(f.Geometry, &g); err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		parts = append(parts, setSRID(g))
	}
	return parts, nil
}

func setSRID(g geom.T) geom.T {
	switch t := g.(type) {
	case *geom.Polygon:
		return t.SetSRID(4326)
	case *geom.MultiPolygon:
		return t.SetSRID(4326)
	}
	return g
}
