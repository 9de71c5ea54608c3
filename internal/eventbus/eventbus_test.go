package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/provision/core/events"
	"github.com/kilianp07/provision/core/model"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := New()
	ch := bus.Subscribe()
	bus.Publish(events.InvalidatedEvent{Unit: model.Unit{ID: 7, Level: model.LevelBlock}})

	ev := <-ch
	inv, ok := ev.(events.InvalidatedEvent)
	require.True(t, ok, "unexpected event %T", ev)
	assert.Equal(t, int64(7), inv.Unit.ID)

	bus.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open, "channel closed after unsubscribe")
}

func TestBusClose(t *testing.T) {
	bus := New()
	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	bus.Close()
	for _, ch := range []<-chan Event{ch1, ch2} {
		_, open := <-ch
		assert.False(t, open)
	}
	_, open := <-bus.Subscribe()
	assert.False(t, open, "closed bus hands out closed channels")
	assert.NotPanics(t, func() { bus.Publish(events.ScoreEvent{}) })
}

func TestBusUnsubscribeAfterClose(t *testing.T) {
	bus := New()
	ch := bus.Subscribe()
	bus.Close()
	assert.NotPanics(t, func() { bus.Unsubscribe(ch) })
}
