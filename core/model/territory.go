package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Level identifies a tier of the territorial hierarchy. Levels are ordered
// from the finest (House) to the coarsest (City).
type Level int

const (
	LevelHouse Level = iota
	LevelBlock
	LevelMunicipality
	LevelDistrict
	LevelCity
)

// String returns the wire name of the level.
func (l Level) String() string {
	switch l {
	case LevelHouse:
		return "house"
	case LevelBlock:
		return "block"
	case LevelMunicipality:
		return "municipality"
	case LevelDistrict:
		return "district"
	case LevelCity:
		return "city"
	default:
		return "unknown"
	}
}

// ParseLevel converts a wire name into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "house":
		return LevelHouse, nil
	case "block":
		return LevelBlock, nil
	case "municipality", "mo":
		return LevelMunicipality, nil
	case "district":
		return LevelDistrict, nil
	case "city":
		return LevelCity, nil
	default:
		return 0, fmt.Errorf("unknown territorial level %q", s)
	}
}

func (l Level) MarshalJSON() ([]byte, error) { return json.Marshal(l.String()) }

func (l *Level) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// Unit is a node of the territorial containment tree. ParentID is zero when
// the unit has no parent at the next level.
type Unit struct {
	ID       int64  `json:"id"`
	Level    Level  `json:"level"`
	Name     string `json:"name,omitempty"`
	ParentID int64  `json:"parent_id,omitempty"`
}

// Key returns a stable identifier combining level and id.
func (u Unit) Key() string { return fmt.Sprintf("%s/%d", u.Level, u.ID) }

// CityUnit is the single root of the hierarchy.
var CityUnit = Unit{ID: 0, Level: LevelCity, Name: "city"}

// Lineage holds the ancestors of a unit. Zero ids mark absent levels.
type Lineage struct {
	Block        int64 `json:"block,omitempty"`
	Municipality int64 `json:"municipality,omitempty"`
	District     int64 `json:"district,omitempty"`
}

// At returns the ancestor unit at level l, walking up past absent levels.
// The city is always available.
func (ln Lineage) At(l Level) Unit {
	for ; l < LevelCity; l++ {
		var id int64
		switch l {
		case LevelBlock:
			id = ln.Block
		case LevelMunicipality:
			id = ln.Municipality
		case LevelDistrict:
			id = ln.District
		}
		if id != 0 {
			return Unit{ID: id, Level: l}
		}
	}
	return CityUnit
}
