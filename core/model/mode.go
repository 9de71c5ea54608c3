package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Mode is a travel mode used for reachability thresholds and isochrones.
type Mode int

const (
	ModeWalking Mode = iota
	ModeTransit
	ModeCar
)

// Modes lists every travel mode in combination order.
var Modes = []Mode{ModeWalking, ModeTransit, ModeCar}

// String returns the wire name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeWalking:
		return "walking"
	case ModeTransit:
		return "transit"
	case ModeCar:
		return "car"
	default:
		return "unknown"
	}
}

// ParseMode converts a wire name into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "walking", "walk":
		return ModeWalking, nil
	case "transit", "public_transport":
		return ModeTransit, nil
	case "car", "driving":
		return ModeCar, nil
	default:
		return 0, fmt.Errorf("unknown travel mode %q", s)
	}
}

func (m Mode) MarshalJSON() ([]byte, error) { return json.Marshal(m.String()) }

func (m *Mode) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
