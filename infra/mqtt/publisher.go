package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kilianp07/provision/core/events"
	"github.com/kilianp07/provision/core/logger"
	"github.com/kilianp07/provision/core/model"
	"github.com/kilianp07/provision/internal/eventbus"
)

type messagePublisher interface {
	Publish(topic string, payload []byte, retained bool) error
}

// Publisher forwards bus events to MQTT topics under a common prefix:
//
//	<prefix>/aggregates/<level>/<id>
//	<prefix>/scores/<level>/<id>
//	<prefix>/invalidated/<level>/<id>
type Publisher struct {
	client messagePublisher
	bus    eventbus.EventBus
	prefix string
	log    logger.Logger
}

func NewPublisher(client messagePublisher, bus eventbus.EventBus, prefix string, log logger.Logger) *Publisher {
	if prefix == "" {
		prefix = "provision"
	}
	return &Publisher{client: client, bus: bus, prefix: strings.TrimSuffix(prefix, "/"), log: logger.OrNop(log)}
}

// Topic builds the topic of kind for unit u.
func Topic(prefix, kind string, u model.Unit) string {
	return fmt.Sprintf("%s/%s/%s/%d", prefix, kind, u.Level, u.ID)
}

// Start subscribes to the bus and forwards events in the background until
// ctx is done or the bus is closed. The returned channel is closed once
// forwarding has stopped.
func (p *Publisher) Start(ctx context.Context) <-chan struct{} {
	ch := p.bus.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer p.bus.Unsubscribe(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if err := p.forward(ev); err != nil {
					p.log.Errorw("mqtt forward failed", map[string]any{"error": err.Error()})
				}
			}
		}
	}()
	return done
}

func (p *Publisher) forward(ev eventbus.Event) error {
	var (
		topic    string
		retained bool
	)
	switch e := ev.(type) {
	case events.AggregateEvent:
		topic, retained = Topic(p.prefix, "aggregates", e.Unit)+"/"+e.Kind, true
	case events.ScoreEvent:
		topic = Topic(p.prefix, "scores", e.Target)
	case events.InvalidatedEvent:
		topic = Topic(p.prefix, "invalidated", e.Unit)
	default:
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.client.Publish(topic, payload, retained)
}
