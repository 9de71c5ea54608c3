package events

import (
	"time"

	"github.com/kilianp07/provision/core/model"
)

// Aggregate kinds.
const (
	KindSocialGroups = "social_groups"
	KindServices     = "services"
)

// AggregateEvent is published after a unit aggregate has been written.
// Exactly one of SocialGroups and Services is set, according to Kind.
type AggregateEvent struct {
	Unit         model.Unit                 `json:"unit"`
	Kind         string                     `json:"kind"`
	SocialGroups model.SocialGroupAggregate `json:"social_groups,omitempty"`
	Services     model.ServiceAggregate     `json:"services,omitempty"`
	Forced       bool                       `json:"forced"`
	Time         time.Time                  `json:"time"`
}

// InvalidatedEvent is published when a unit's aggregates are removed.
type InvalidatedEvent struct {
	Unit model.Unit `json:"unit"`
	Time time.Time  `json:"time"`
}
