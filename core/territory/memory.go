package territory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/kilianp07/provision/core/model"
)

// Resident is a raw population point.
type Resident struct {
	Point       geom.Coord
	SocialGroup string
	Count       int
}

// FacilityPoint is a raw facility location.
type FacilityPoint struct {
	Point geom.Coord
	model.Facility
}

// MemoryRepository is an in-process Repository. Block boundaries are used
// for point-in-polygon scans; the other levels are defined by parent links.
type MemoryRepository struct {
	mu         sync.RWMutex
	units      map[model.Level]map[int64]model.Unit
	boundaries map[int64]*geom.Polygon
	residents  []Resident
	facilities []FacilityPoint
	groups     map[string]model.SocialGroupAggregate
	services   map[string]model.ServiceAggregate
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		units:      make(map[model.Level]map[int64]model.Unit),
		boundaries: make(map[int64]*geom.Polygon),
		groups:     make(map[string]model.SocialGroupAggregate),
		services:   make(map[string]model.ServiceAggregate),
	}
}

// AddUnit registers u. Blocks may carry a boundary used by scans.
func (r *MemoryRepository) AddUnit(u model.Unit, boundary *geom.Polygon) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.units[u.Level] == nil {
		r.units[u.Level] = make(map[int64]model.Unit)
	}
	r.units[u.Level][u.ID] = u
	if boundary != nil && u.Level == model.LevelBlock {
		r.boundaries[u.ID] = boundary
	}
}

// AddResidents appends raw population points.
func (r *MemoryRepository) AddResidents(rs ...Resident) {
	r.mu.Lock()
	r.residents = append(r.residents, rs...)
	r.mu.Unlock()
}

// AddFacilities appends raw facility points.
func (r *MemoryRepository) AddFacilities(fs ...FacilityPoint) {
	r.mu.Lock()
	r.facilities = append(r.facilities, fs...)
	r.mu.Unlock()
}

func (r *MemoryRepository) Unit(_ context.Context, level model.Level, id int64) (model.Unit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.units[level][id]
	if !ok {
		return model.Unit{}, fmt.Errorf("%w: %s/%d", ErrUnitNotFound, level, id)
	}
	return u, nil
}

func (r *MemoryRepository) UnitByName(_ context.Context, level model.Level, name string) (model.Unit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.units[level] {
		if strings.EqualFold(u.Name, name) {
			return u, nil
		}
	}
	return model.Unit{}, fmt.Errorf("%w: %s %q", ErrUnitNotFound, level, name)
}

func (r *MemoryRepository) Units(_ context.Context, level model.Level) ([]model.Unit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedUnits(r.units[level], func(model.Unit) bool { return true }), nil
}

func (r *MemoryRepository) Children(_ context.Context, parent model.Unit) ([]model.Unit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch parent.Level {
	case model.LevelCity:
		var out []model.Unit
		out = append(out, sortedUnits(r.units[model.LevelDistrict], func(model.Unit) bool { return true })...)
		out = append(out, sortedUnits(r.units[model.LevelMunicipality], func(u model.Unit) bool { return u.ParentID == 0 })...)
		out = append(out, sortedUnits(r.units[model.LevelBlock], func(u model.Unit) bool { return u.ParentID == 0 })...)
		return out, nil
	case model.LevelDistrict, model.LevelMunicipality:
		return sortedUnits(r.units[parent.Level-1], func(u model.Unit) bool { return u.ParentID == parent.ID }), nil
	default:
		return nil, nil
	}
}

func (r *MemoryRepository) Lineage(_ context.Context, u model.Unit) (model.Lineage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ln model.Lineage
	cur, ok := r.units[u.Level][u.ID]
	if !ok {
		return ln, fmt.Errorf("%w: %s", ErrUnitNotFound, u.Key())
	}
	for {
		switch cur.Level {
		case model.LevelBlock:
			ln.Block = cur.ID
		case model.LevelMunicipality:
			ln.Municipality = cur.ID
		case model.LevelDistrict:
			ln.District = cur.ID
		}
		if cur.ParentID == 0 || cur.Level >= model.LevelDistrict {
			return ln, nil
		}
		next, ok := r.units[cur.Level+1][cur.ParentID]
		if !ok {
			return ln, nil
		}
		cur = next
	}
}

func (r *MemoryRepository) ScanSocialGroups(_ context.Context, u model.Unit) (model.SocialGroupAggregate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agg := model.SocialGroupAggregate{}
	ring := r.outerRing(u)
	if ring == nil {
		return agg, nil
	}
	for _, res := range r.residents {
		if xy.IsPointInRing(geom.XY, res.Point, ring) {
			agg[res.SocialGroup] += res.Count
		}
	}
	return agg, nil
}

func (r *MemoryRepository) ScanServices(_ context.Context, u model.Unit) (model.ServiceAggregate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agg := model.ServiceAggregate{}
	ring := r.outerRing(u)
	if ring == nil {
		return agg, nil
	}
	for _, f := range r.facilities {
		if xy.IsPointInRing(geom.XY, f.Point, ring) {
			agg.AddFacility(f.Facility)
		}
	}
	return agg, nil
}

func (r *MemoryRepository) outerRing(u model.Unit) []float64 {
	if u.Level != model.LevelBlock {
		return nil
	}
	b, ok := r.boundaries[u.ID]
	if !ok || b.NumLinearRings() == 0 {
		return nil
	}
	return b.LinearRing(0).FlatCoords()
}

func (r *MemoryRepository) LoadSocialGroups(_ context.Context, u model.Unit) (model.SocialGroupAggregate, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agg, ok := r.groups[u.Key()]
	if !ok {
		return nil, false, nil
	}
	out := model.SocialGroupAggregate{}
	out.Add(agg)
	return out, true, nil
}

func (r *MemoryRepository) SaveSocialGroups(_ context.Context, u model.Unit, agg model.SocialGroupAggregate) error {
	cp := model.SocialGroupAggregate{}
	cp.Add(agg)
	r.mu.Lock()
	r.groups[u.Key()] = cp
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) LoadServices(_ context.Context, u model.Unit) (model.ServiceAggregate, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agg, ok := r.services[u.Key()]
	if !ok {
		return nil, false, nil
	}
	out := model.ServiceAggregate{}
	out.Add(agg)
	return out, true, nil
}

func (r *MemoryRepository) SaveServices(_ context.Context, u model.Unit, agg model.ServiceAggregate) error {
	cp := model.ServiceAggregate{}
	cp.Add(agg)
	r.mu.Lock()
	r.services[u.Key()] = cp
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) DeleteAggregates(_ context.Context, u model.Unit) error {
	r.mu.Lock()
	delete(r.groups, u.Key())
	delete(r.services, u.Key())
	r.mu.Unlock()
	return nil
}

func sortedUnits(m map[int64]model.Unit, keep func(model.Unit) bool) []model.Unit {
	out := make([]model.Unit, 0, len(m))
	for _, u := range m {
		if keep(u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
