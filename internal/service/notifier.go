package service

import (
	"context"
	"fmt"
	"time"

	"github.com/camlink/gimbal-bridge/internal/domain"
	"github.com/camlink/gimbal-bridge/internal/registry"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Notifier publishes human-readable system messages about device status
// transitions to the shared system topic, for chat clients and other
// listeners.
type Notifier struct {
	publisher Publisher
	topic     string
	logger    zerolog.Logger
}

// NewNotifier creates a new transition notifier.
func NewNotifier(publisher Publisher, topic string, logger zerolog.Logger) *Notifier {
	if topic == "" {
		topic = "chatroom/system"
	}
	return &Notifier{
		publisher: publisher,
		topic:     topic,
		logger:    logger.With().Str("component", "transition-notifier").Logger(),
	}
}

// HandleTransition formats and publishes one transition. Publish failures
// are logged and dropped; a notification is not worth failing ingestion
// over.
func (n *Notifier) HandleTransition(t registry.Transition) {
	var text string
	switch t.To {
	case domain.DeviceStatusOnline:
		text = fmt.Sprintf("Gimbal device %s is online", t.ClientID)
	case domain.DeviceStatusOffline:
		text = fmt.Sprintf("Gimbal device %s is offline", t.ClientID)
	default:
		text = fmt.Sprintf("Gimbal device %s is %s", t.ClientID, t.To)
	}

	payload, err := json.Marshal(map[string]interface{}{
		"type":      "system_message",
		"message":   text,
		"client_id": t.ClientID,
		"status":    string(t.To),
		"timestamp": t.At.Format(time.RFC3339),
	})
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := n.publisher.Publish(ctx, n.topic, payload); err != nil {
		n.logger.Warn().Err(err).Str("client_id", t.ClientID).Msg("Failed to publish transition notification")
		return
	}

	n.logger.Debug().
		Str("client_id", t.ClientID).
		Str("from", string(t.From)).
		Str("to", string(t.To)).
		Msg("Transition notification published")
}
