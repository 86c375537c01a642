package service

import (
	"testing"
	"time"

	"github.com/camlink/gimbal-bridge/internal/domain"
	"github.com/camlink/gimbal-bridge/internal/registry"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifierPublishesSystemMessage(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNotifier(pub, "chatroom/system", zerolog.Nop())

	at := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	n.HandleTransition(registry.Transition{
		ClientID: "gimbal-1",
		From:     domain.DeviceStatusOnline,
		To:       domain.DeviceStatusOffline,
		At:       at,
	})

	require.Len(t, pub.messages, 1)
	assert.Equal(t, "chatroom/system", pub.messages[0].topic)

	var msg map[string]string
	require.NoError(t, json.Unmarshal(pub.messages[0].payload, &msg))
	assert.Equal(t, "system_message", msg["type"])
	assert.Equal(t, "Gimbal device gimbal-1 is offline", msg["message"])
	assert.Equal(t, "gimbal-1", msg["client_id"])
	assert.Equal(t, "offline", msg["status"])
	assert.Equal(t, "2026-08-28T10:00:00Z", msg["timestamp"])
}

func TestNotifierOnlineMessage(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNotifier(pub, "", zerolog.Nop())

	n.HandleTransition(registry.Transition{
		ClientID: "gimbal-2",
		From:     domain.DeviceStatusRegistered,
		To:       domain.DeviceStatusOnline,
		At:       time.Now(),
	})

	require.Len(t, pub.messages, 1)
	assert.Equal(t, "chatroom/system", pub.messages[0].topic, "empty topic falls back to the default")

	var msg map[string]string
	require.NoError(t, json.Unmarshal(pub.messages[0].payload, &msg))
	assert.Equal(t, "Gimbal device gimbal-2 is online", msg["message"])
}

func TestNotifierDropsPublishFailures(t *testing.T) {
	pub := &fakePublisher{err: &domain.TransportError{Op: "publish", Err: domain.ErrNotConnected}}
	n := NewNotifier(pub, "chatroom/system", zerolog.Nop())

	// Must not panic or propagate; a notification is best effort.
	n.HandleTransition(registry.Transition{
		ClientID: "gimbal-1",
		From:     domain.DeviceStatusOnline,
		To:       domain.DeviceStatusOffline,
		At:       time.Now(),
	})

	assert.Empty(t, pub.messages)
}
