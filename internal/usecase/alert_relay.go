package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"SetupScan/internal/domain/models"
	pkgkafka "SetupScan/pkg/kafka"
)

// Broadcaster pushes an encoded event to live subscribers.
type Broadcaster interface {
	Publish(ev models.PhaseEvent, raw []byte)
}

// AlertRelay consumes the alerts topic so every instance's websocket clients see events
// emitted by any scanner.
type AlertRelay struct {
	topic string
	out   Broadcaster
}

func NewAlertRelay(topic string, out Broadcaster) *AlertRelay {
	return &AlertRelay{topic: topic, out: out}
}

func (r *AlertRelay) Topic() string { return r.topic }

func (r *AlertRelay) Handle(_ context.Context, b []byte) error {
	var ev models.PhaseEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return fmt.Errorf("decode phase event: %w", err)
	}
	if ev.Type == "" || ev.ModelID == "" {
		return fmt.Errorf("phase event missing type or model_id")
	}
	r.out.Publish(ev, b)
	return nil
}

var _ pkgkafka.MessageHandler = (*AlertRelay)(nil)
