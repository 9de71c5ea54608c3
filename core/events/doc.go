// Package events defines the provision events emitted on the event bus.
//
// Available event types:
//   - AggregateEvent: a territorial aggregate was recomputed and persisted
//   - InvalidatedEvent: persisted aggregates of a unit were dropped
//   - ScoreEvent: an aggregation run produced a provision score
package events
