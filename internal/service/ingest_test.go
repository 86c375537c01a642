package service

import (
	"testing"
	"time"

	"github.com/camlink/gimbal-bridge/internal/adapter/mqtt"
	"github.com/camlink/gimbal-bridge/internal/domain"
	"github.com/camlink/gimbal-bridge/internal/registry"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSubscriber captures topic handlers so tests can inject messages.
type fakeSubscriber struct {
	handlers map[string]mqtt.MessageHandler
}

func (f *fakeSubscriber) Subscribe(topic string, handler mqtt.MessageHandler) error {
	if f.handlers == nil {
		f.handlers = make(map[string]mqtt.MessageHandler)
	}
	f.handlers[topic] = handler
	return nil
}

func (f *fakeSubscriber) deliver(topic string, payload string, at time.Time) {
	f.handlers[topic](topic, []byte(payload), at)
}

func newTestIngest(t *testing.T) (*Ingest, *fakeSubscriber, *registry.Registry) {
	t.Helper()
	reg := registry.New(5*time.Second, zerolog.Nop(), nil)
	ing := NewIngest(DefaultIngestConfig(), reg, zerolog.Nop(), nil)
	sub := &fakeSubscriber{}
	require.NoError(t, ing.Start(sub))
	return ing, sub, reg
}

func TestIngestSubscribesBothTopics(t *testing.T) {
	_, sub, _ := newTestIngest(t)
	assert.Contains(t, sub.handlers, "device/gimbal/register")
	assert.Contains(t, sub.handlers, "device/gimbal/status")
}

func TestIngestRegistrationThenStatus(t *testing.T) {
	_, sub, reg := newTestIngest(t)
	now := time.Now()

	sub.deliver("device/gimbal/register", `{
		"client_id": "gimbal-1",
		"username": "Roof Gimbal",
		"device_type": "gimbal",
		"device_info": {"model": "GB-200"}
	}`, now)

	sub.deliver("device/gimbal/status", `{
		"client_id": "gimbal-1",
		"status": "online",
		"current_position": {"x": 2036, "y": 2125}
	}`, now.Add(time.Second))

	require.Equal(t, 1, reg.Count(), "registration and status for one device yield one record")

	dev, ok := reg.Get("gimbal-1")
	require.True(t, ok)
	assert.Equal(t, "Roof Gimbal", dev.DisplayName)
	assert.Equal(t, "GB-200", dev.Model)
	assert.Equal(t, domain.DeviceStatusOnline, dev.Status)
	assert.Equal(t, domain.Position{X: 2036, Y: 2125}, dev.Position)
}

func TestIngestStatusBeforeRegistration(t *testing.T) {
	_, sub, reg := newTestIngest(t)

	sub.deliver("device/gimbal/status", `{"client_id":"gimbal-9","status":"online"}`, time.Now())

	dev, ok := reg.Get("gimbal-9")
	require.True(t, ok)
	assert.Equal(t, domain.DeviceStatusOnline, dev.Status)
	assert.Equal(t, domain.DefaultPositionLimits(), dev.Limits)
}

func TestIngestFiresTransitions(t *testing.T) {
	ing, sub, _ := newTestIngest(t)

	var transitions []registry.Transition
	ing.SetTransitionHandler(func(tr registry.Transition) {
		transitions = append(transitions, tr)
	})

	now := time.Now()
	sub.deliver("device/gimbal/status", `{"client_id":"gimbal-1","status":"online"}`, now)
	sub.deliver("device/gimbal/status", `{"client_id":"gimbal-1","status":"online"}`, now.Add(time.Second))
	sub.deliver("device/gimbal/status", `{"client_id":"gimbal-1","status":"offline"}`, now.Add(2*time.Second))

	require.Len(t, transitions, 2, "repeat heartbeats must not re-fire transitions")
	assert.Equal(t, domain.DeviceStatusOnline, transitions[0].To)
	assert.Equal(t, domain.DeviceStatusOffline, transitions[1].To)
}

func TestIngestDiscardsMalformedPayloads(t *testing.T) {
	ing, sub, reg := newTestIngest(t)
	now := time.Now()

	sub.deliver("device/gimbal/status", `not json`, now)
	sub.deliver("device/gimbal/status", `{"status":"online"}`, now)
	sub.deliver("device/gimbal/status", `{"client_id":"gimbal-1","status":"bogus"}`, now)
	sub.deliver("device/gimbal/register", `{}`, now)

	assert.Equal(t, 0, reg.Count())
	assert.Equal(t, uint64(4), ing.Stats()["discarded_messages"])
}

func TestIngestIgnoresNonGimbalRegistration(t *testing.T) {
	_, sub, reg := newTestIngest(t)

	sub.deliver("device/gimbal/register", `{
		"client_id": "thermostat-1",
		"device_type": "thermostat"
	}`, time.Now())

	assert.Equal(t, 0, reg.Count())
}

func TestIngestStats(t *testing.T) {
	ing, sub, _ := newTestIngest(t)
	now := time.Now()

	sub.deliver("device/gimbal/register", `{"client_id":"gimbal-1"}`, now)
	sub.deliver("device/gimbal/status", `{"client_id":"gimbal-1","status":"online"}`, now)

	stats := ing.Stats()
	assert.Equal(t, uint64(1), stats["registration_messages"])
	assert.Equal(t, uint64(1), stats["status_messages"])
	assert.Equal(t, uint64(0), stats["discarded_messages"])
}
