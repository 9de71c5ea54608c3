package isochrone

import (
	"fmt"
	"math"

	"github.com/twpayne/go-geom"

	"github.com/kilianp07/provision/core/model"
)

// Precision is the number of decimals kept in cache keys.
const Precision = 6

var scale = math.Pow10(Precision)

// Round truncates a coordinate to the cache key granularity.
func Round(v float64) float64 {
	return math.Round(v*scale) / scale
}

// Key identifies one cached isochrone.
type Key struct {
	Lat     float64
	Lon     float64
	Minutes int
	Mode    model.Mode
}

// NewKey builds a key with rounded coordinates.
func NewKey(lat, lon float64, minutes int, mode model.Mode) Key {
	return Key{Lat: Round(lat), Lon: Round(lon), Minutes: minutes, Mode: mode}
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d:%.6f:%.6f", k.Mode, k.Minutes, k.Lat, k.Lon)
}

// Validate reports malformed keys.
func (k Key) Validate() error {
	if k.Minutes <= 0 {
		return fmt.Errorf("isochrone: minutes must be positive, got %d", k.Minutes)
	}
	if k.Lat < -90 || k.Lat > 90 || k.Lon < -180 || k.Lon > 180 {
		return fmt.Errorf("isochrone: coordinates out of range (%f, %f)", k.Lat, k.Lon)
	}
	if _, err := model.ParseMode(k.Mode.String()); err != nil {
		return err
	}
	return nil
}

// Empty returns the empty polygon used for unreachable results.
func Empty() geom.T {
	return geom.NewPolygon(geom.XY).SetSRID(4326)
}

// IsEmpty reports whether g carries no coordinates.
func IsEmpty(g geom.T) bool {
	return g == nil || len(g.FlatCoords()) == 0
}
