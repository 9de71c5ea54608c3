package routing

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/twpayne/go-geom"

	"github.com/kilianp07/provision/core/logger"
	"github.com/kilianp07/provision/core/model"
)

var primaryProfiles = map[model.Mode]string{
	model.ModeWalking: "foot",
	model.ModeTransit: "pt",
	model.ModeCar:     "car",
}

// PrimaryProvider queries a GET isochrone endpoint:
//
//	GET {url}?point=lat,lon&time_limit=<seconds>&profile=<profile>&key=<api_key>
type PrimaryProvider struct {
	c *client
}

func NewPrimaryProvider(cfg Config, log logger.Logger) (*PrimaryProvider, error) {
	c, err := newClient(cfg, primaryProfiles, log)
	if err != nil {
		return nil, err
	}
	return &PrimaryProvider{c: c}, nil
}

func (p *PrimaryProvider) Name() string { return "primary" }

func (p *PrimaryProvider) Fetch(ctx context.Context, lat, lon float64, minutes int, mode model.Mode) ([]geom.T, error) {
	profile, err := p.c.profile(mode)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("point", strconv.FormatFloat(lat, 'f', -1, 64)+","+strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("time_limit", strconv.Itoa(minutes*60))
	q.Set("profile", profile)
	if p.c.apiKey != "" {
		q.Set("key", p.c.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.c.base+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")
	return p.c.do(ctx, req)
}
