// Package eventbus fans aggregate and score events out to in-process
// subscribers such as the MQTT publisher.
package eventbus

// Event is any value published on the bus.
type Event any

// EventBus is the publish/subscribe contract used by the core.
type EventBus interface {
	Publish(Event)
	Subscribe() <-chan Event
	Unsubscribe(<-chan Event)
	Close()
}

// Bus is the default EventBus.
type Bus struct {
	*TypedBus[Event]
}

// New creates a new Bus.
func New(opts ...Option) *Bus { return &Bus{TypedBus: NewTyped[Event](opts...)} }

var _ EventBus = (*Bus)(nil)
