package postgres

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

const srid = 4326

func encodeGeometry(g geom.T) (string, error) {
	b, err := geojson.Marshal(g)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeGeometry(s string) (geom.T, error) {
	var g geom.T
	if err := geojson.Unmarshal([]byte(s), &g); err != nil {
		return nil, err
	}
	return withSRID(g), nil
}

func withSRID(g geom.T) geom.T {
	switch t := g.(type) {
	case *geom.Polygon:
		return t.SetSRID(srid)
	case *geom.MultiPolygon:
		return t.SetSRID(srid)
	case *geom.GeometryCollection:
		return t.SetSRID(srid)
	case *geom.Point:
		return t.SetSRID(srid)
	}
	return g
}
