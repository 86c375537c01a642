package service

import (
	"sync/atomic"
	"time"

	"github.com/camlink/gimbal-bridge/internal/adapter/mqtt"
	"github.com/camlink/gimbal-bridge/internal/domain"
	"github.com/camlink/gimbal-bridge/internal/metrics"
	"github.com/camlink/gimbal-bridge/internal/registry"
	"github.com/rs/zerolog"
)

// TopicSubscriber registers a handler for an inbound topic.
type TopicSubscriber interface {
	Subscribe(topic string, handler mqtt.MessageHandler) error
}

// TransitionFunc is notified when a device changes status.
type TransitionFunc func(t registry.Transition)

// IngestConfig holds the inbound topics.
type IngestConfig struct {
	RegisterTopic string
	StatusTopic   string
}

// DefaultIngestConfig returns the registration and status topics the
// gimbal fleet publishes on.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		RegisterTopic: "device/gimbal/register",
		StatusTopic:   "device/gimbal/status",
	}
}

// Ingest consumes device registration and status messages and applies them
// to the registry. It runs purely reactively on the transport's delivery
// callbacks; malformed payloads are logged and discarded, never raised.
type Ingest struct {
	config   IngestConfig
	registry *registry.Registry
	logger   zerolog.Logger
	metrics  *metrics.Registry

	onTransition TransitionFunc

	statusCount       atomic.Uint64
	registrationCount atomic.Uint64
	discarded         atomic.Uint64
}

// NewIngest creates a new status ingest.
func NewIngest(
	config IngestConfig,
	reg *registry.Registry,
	logger zerolog.Logger,
	metricsReg *metrics.Registry,
) *Ingest {
	if config.RegisterTopic == "" {
		config.RegisterTopic = "device/gimbal/register"
	}
	if config.StatusTopic == "" {
		config.StatusTopic = "device/gimbal/status"
	}

	return &Ingest{
		config:   config,
		registry: reg,
		logger:   logger.With().Str("component", "status-ingest").Logger(),
		metrics:  metricsReg,
	}
}

// SetTransitionHandler sets the callback fired on device status changes.
// Must be called before Start.
func (i *Ingest) SetTransitionHandler(fn TransitionFunc) {
	i.onTransition = fn
}

// Start subscribes the ingest handlers on the transport.
func (i *Ingest) Start(subscriber TopicSubscriber) error {
	if err := subscriber.Subscribe(i.config.RegisterTopic, i.handleRegistration); err != nil {
		return err
	}
	if err := subscriber.Subscribe(i.config.StatusTopic, i.handleStatus); err != nil {
		return err
	}

	i.logger.Info().
		Str("register_topic", i.config.RegisterTopic).
		Str("status_topic", i.config.StatusTopic).
		Msg("Status ingest started")

	return nil
}

// handleRegistration processes one registration message.
func (i *Ingest) handleRegistration(topic string, payload []byte, receivedAt time.Time) {
	reg, err := domain.ParseRegistration(payload)
	if err != nil {
		i.discard(topic, err)
		return
	}

	if reg.DeviceType != "gimbal" {
		i.logger.Warn().
			Str("client_id", reg.ClientID).
			Str("device_type", reg.DeviceType).
			Msg("Ignoring registration from non-gimbal device")
		return
	}

	i.registrationCount.Add(1)
	if i.metrics != nil {
		i.metrics.IncRegistrations()
	}

	i.registry.UpsertRegistration(reg, receivedAt)
}

// handleStatus processes one status heartbeat.
func (i *Ingest) handleStatus(topic string, payload []byte, receivedAt time.Time) {
	st, err := domain.ParseStatus(payload)
	if err != nil {
		i.discard(topic, err)
		return
	}

	i.statusCount.Add(1)

	outcome := i.registry.RecordStatus(st, receivedAt)

	if outcome.Created {
		i.logger.Info().
			Str("client_id", st.ClientID).
			Msg("Device created from status message before registration")
	}

	if outcome.Transition != nil && i.onTransition != nil {
		i.onTransition(*outcome.Transition)
	}
}

// discard logs and drops a malformed inbound payload. There is no waiting
// caller to propagate the fault to.
func (i *Ingest) discard(topic string, err error) {
	i.discarded.Add(1)
	if i.metrics != nil {
		i.metrics.IncParseErrors()
	}
	i.logger.Warn().Err(err).Str("topic", topic).Msg("Discarding malformed inbound message")
}

// Stats returns ingest counters for the status endpoint.
func (i *Ingest) Stats() map[string]interface{} {
	return map[string]interface{}{
		"status_messages":       i.statusCount.Load(),
		"registration_messages": i.registrationCount.Load(),
		"discarded_messages":    i.discarded.Load(),
	}
}
