package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/kilianp07/provision/core/isochrone"
	"github.com/kilianp07/provision/core/model"
)

const squareJSON = `{"type":"Polygon","coordinates":[[[30,59],[30.1,59],[30.1,59.1],[30,59.1],[30,59]]]}`

func newMockStore(t *testing.T) (*IsochroneStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewIsochroneStore(db), mock
}

func TestIsochroneStore_Get(t *testing.T) {
	s, mock := newMockStore(t)
	k := isochrone.NewKey(59.05, 30.05, 10, model.ModeWalking)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT ST_AsGeoJSON(geom) FROM isochrones")).
		WithArgs(k.Lat, k.Lon, 10, "walking").
		WillReturnRows(sqlmock.NewRows([]string{"st_asgeojson"}).AddRow(squareJSON))

	g, ok, err := s.Get(context.Background(), k)
	require.NoError(t, err)
	require.True(t, ok)
	poly, isPoly := g.(*geom.Polygon)
	require.True(t, isPoly)
	assert.Equal(t, 4326, poly.SRID())
	assert.Equal(t, 5, poly.NumCoords())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsochroneStore_GetMissing(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT ST_AsGeoJSON").WillReturnError(sql.ErrNoRows)

	g, ok, err := s.Get(context.Background(), isochrone.NewKey(1, 2, 5, model.ModeCar))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, g)
}

func TestIsochroneStore_PutUpserts(t *testing.T) {
	s, mock := newMockStore(t)
	k := isochrone.NewKey(59.9, 30.3, 15, model.ModeTransit)
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (lat, lon, minutes, mode) DO UPDATE")).
		WithArgs(k.Lat, k.Lon, 15, "transit", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{{30, 59}, {30.1, 59}, {30.1, 59.1}, {30, 59}}})
	require.NoError(t, s.Put(context.Background(), k, poly))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsochroneStore_Nearest(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY geom <-> ST_SetSRID(ST_MakePoint($2, $1), 4326)")).
		WillReturnRows(sqlmock.NewRows([]string{"st_asgeojson"}).AddRow(squareJSON))

	g, ok, err := s.Nearest(context.Background(), isochrone.NewKey(59, 30, 10, model.ModeWalking))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, isochrone.IsEmpty(g))
}

func TestIsochroneStore_Union(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("ST_Union(ARRAY(")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"st_asgeojson"}).AddRow(squareJSON))

	a := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{{30, 59}, {30.05, 59}, {30.05, 59.1}, {30, 59}}})
	b := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{{30.05, 59}, {30.1, 59}, {30.1, 59.1}, {30.05, 59}}})
	g, err := s.Union(context.Background(), []geom.T{a, b})
	require.NoError(t, err)
	_, isPoly := g.(*geom.Polygon)
	assert.True(t, isPoly)
}

func TestIsochroneStore_UnionNull(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("ST_Union").
		WillReturnRows(sqlmock.NewRows([]string{"st_asgeojson"}).AddRow(nil))

	g, err := s.Union(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, isochrone.IsEmpty(g))
}
