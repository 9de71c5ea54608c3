package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/twpayne/go-geom"

	"github.com/kilianp07/provision/core/logger"
	"github.com/kilianp07/provision/core/model"
)

var alternativeProfiles = map[model.Mode]string{
	model.ModeWalking: "foot-walking",
	model.ModeTransit: "public-transport",
	model.ModeCar:     "driving-car",
}

// AlternativeProvider posts to a profile-scoped isochrone endpoint:
//
//	POST {url}/{profile} {"locations":[[lon,lat]],"range":[seconds],"range_type":"time"}
type AlternativeProvider struct {
	c *client
}

func NewAlternativeProvider(cfg Config, log logger.Logger) (*AlternativeProvider, error) {
	c, err := newClient(cfg, alternativeProfiles, log)
	if err != nil {
		return nil, err
	}
	return &AlternativeProvider{c: c}, nil
}

func (p *AlternativeProvider) Name() string { return "alternative" }

type alternativeRequest struct {
	Locations [][2]float64 `json:"locations"`
	Range     []int        `json:"range"`
	RangeType string       `json:"range_type"`
}

func (p *AlternativeProvider) Fetch(ctx context.Context, lat, lon float64, minutes int, mode model.Mode) ([]geom.T, error) {
	profile, err := p.c.profile(mode)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(alternativeRequest{
		Locations: [][2]float64{{lon, lat}},
		Range:     []int{minutes * 60},
		RangeType: "time",
	})
	if err != nil {
		return nil, err
	}
	u := strings.TrimSuffix(p.c.base, "/") + "/" + profile
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/geo+json, application/json")
	if p.c.apiKey != "" {
		req.Header.Set("Authorization", p.c.apiKey)
	}
	return p.c.do(ctx, req)
}
