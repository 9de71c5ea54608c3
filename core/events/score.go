package events

import (
	"time"

	"github.com/kilianp07/provision/core/model"
)

// ScoreEvent is published for every completed aggregation run.
type ScoreEvent struct {
	RunID              string     `json:"run_id"`
	Target             model.Unit `json:"target"`
	SocialGroup        string     `json:"social_group,omitempty"`
	LivingSituation    string     `json:"living_situation,omitempty"`
	ServiceType        string     `json:"service_type,omitempty"`
	Loyalty            float64    `json:"loyalty"`
	AlternativeLoyalty float64    `json:"alternative_loyalty"`
	Calculations       int        `json:"calculations"`
	Time               time.Time  `json:"time"`
}
