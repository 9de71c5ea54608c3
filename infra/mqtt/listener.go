package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/kilianp07/provision/core/logger"
	"github.com/kilianp07/provision/core/model"
	"github.com/kilianp07/provision/core/monitoring"
)

// InvalidationMessage asks for the aggregates of one unit to be rebuilt.
type InvalidationMessage struct {
	Level  model.Level `json:"level"`
	UnitID int64       `json:"unit_id"`
}

// Unit validates the message and returns the targeted unit.
func (m InvalidationMessage) Unit() (model.Unit, error) {
	if m.Level < model.LevelBlock || m.Level > model.LevelCity {
		return model.Unit{}, fmt.Errorf("invalid level %s", m.Level)
	}
	if m.Level == model.LevelCity {
		return model.CityUnit, nil
	}
	if m.UnitID <= 0 {
		return model.Unit{}, fmt.Errorf("unit_id is required for level %s", m.Level)
	}
	return model.Unit{ID: m.UnitID, Level: m.Level}, nil
}

// InvalidationHandler rebuilds the aggregates of u.
type InvalidationHandler func(ctx context.Context, u model.Unit) error

type messageSubscriber interface {
	Subscribe(topic string, h MessageHandler) error
}

// Listener consumes invalidation messages from a topic.
type Listener struct {
	sub    messageSubscriber
	topic  string
	handle InvalidationHandler
	log    logger.Logger
}

func NewListener(sub messageSubscriber, topic string, h InvalidationHandler, log logger.Logger) *Listener {
	return &Listener{sub: sub, topic: topic, handle: h, log: logger.OrNop(log)}
}

// Start subscribes to the invalidation topic. Messages are handled with ctx
// until it is canceled.
func (l *Listener) Start(ctx context.Context) error {
	if l.topic == "" {
		return fmt.Errorf("mqtt listener: empty topic")
	}
	return l.sub.Subscribe(l.topic, func(topic string, payload []byte) {
		l.onMessage(ctx, topic, payload)
	})
}

func (l *Listener) onMessage(ctx context.Context, topic string, payload []byte) {
	if ctx.Err() != nil {
		return
	}
	var msg InvalidationMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		l.log.Warnw("invalid invalidation message", map[string]any{"topic": topic, "error": err.Error()})
		return
	}
	u, err := msg.Unit()
	if err != nil {
		l.log.Warnw("invalid invalidation message", map[string]any{"topic": topic, "error": err.Error()})
		return
	}
	if err := l.handle(ctx, u); err != nil {
		l.log.Errorw("invalidation failed", map[string]any{"unit": u.Key(), "error": err.Error()})
		monitoring.CaptureException(err, map[string]string{
			"module":  "mqtt",
			"level":   u.Level.String(),
			"unit_id": strconv.FormatInt(u.ID, 10),
		})
		return
	}
	l.log.Infow("unit invalidated", map[string]any{"unit": u.Key()})
}
