// Package service contains the bridge logic between HTTP callers, the MQTT
// transport and the device registry: command validation and dispatch,
// status ingestion, staleness sweeping and the read-only query facade.
package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/camlink/gimbal-bridge/internal/domain"
	"github.com/camlink/gimbal-bridge/internal/metrics"
	"github.com/camlink/gimbal-bridge/internal/registry"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Publisher is the outbound transport surface the dispatcher needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// DispatcherConfig holds configuration for the command dispatcher.
type DispatcherConfig struct {
	// ControlTopic is where normalized command messages are published.
	ControlTopic string

	// ModeTopic receives declarative mode-switch envelopes.
	ModeTopic string

	// DefaultClientID is used when the caller does not name a device.
	DefaultClientID string

	// DefaultSpeed is applied to move commands that omit speed.
	DefaultSpeed float64

	// LegacyWireFormat publishes move targets as "Ang_X=..,Ang_Y=.."
	// instead of a JSON envelope, for firmware that predates the envelope.
	LegacyWireFormat bool
}

// DefaultDispatcherConfig returns the topics and defaults of the deployed
// gimbal fleet.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		ControlTopic:    "device/gimbal/control",
		ModeTopic:       "camera/manager/set_mode",
		DefaultClientID: "gimbal-1",
		DefaultSpeed:    1.0,
	}
}

// presetPositions are the named park positions, in device units.
var presetPositions = map[int]domain.Position{
	1: {X: 2036, Y: 2125}, // center
	2: {X: 2800, Y: 2200}, // right
	3: {X: 1500, Y: 2000}, // left
	4: {X: 2036, Y: 2300}, // up
}

// DispatcherStats tracks command dispatch statistics.
type DispatcherStats struct {
	CommandsAccepted  atomic.Uint64
	CommandsRejected  atomic.Uint64
	CommandsPublished atomic.Uint64
	PublishFailures   atomic.Uint64
}

// CommandAck describes what was sent and when, echoed back to the caller.
// Actual device execution is asynchronous and unconfirmed until a later
// status message reflects the new position.
type CommandAck struct {
	RequestID string                  `json:"request_id,omitempty"`
	ClientID  string                  `json:"client_id"`
	Topic     string                  `json:"topic"`
	Command   *domain.CommandEnvelope `json:"command,omitempty"`
	Mode      *domain.ModeEnvelope    `json:"mode,omitempty"`
	SentAt    time.Time               `json:"sent_at"`
}

// Dispatcher validates control requests against device axis limits and
// publishes accepted ones. Commands are fire-and-forget over pub/sub: a
// device being absent or offline does not block a publish.
type Dispatcher struct {
	config    DispatcherConfig
	publisher Publisher
	registry  *registry.Registry
	logger    zerolog.Logger
	metrics   *metrics.Registry
	stats     *DispatcherStats
}

// NewDispatcher creates a new command dispatcher.
func NewDispatcher(
	config DispatcherConfig,
	publisher Publisher,
	reg *registry.Registry,
	logger zerolog.Logger,
	metricsReg *metrics.Registry,
) *Dispatcher {
	if config.ControlTopic == "" {
		config.ControlTopic = "device/gimbal/control"
	}
	if config.ModeTopic == "" {
		config.ModeTopic = "camera/manager/set_mode"
	}
	if config.DefaultSpeed <= 0 {
		config.DefaultSpeed = 1.0
	}

	return &Dispatcher{
		config:    config,
		publisher: publisher,
		registry:  reg,
		logger:    logger.With().Str("component", "command-dispatcher").Logger(),
		metrics:   metricsReg,
		stats:     &DispatcherStats{},
	}
}

// SendControl validates and dispatches one control request. Validation
// failures return a ValidationError before anything is published or
// counted; transport failures return a TransportError after the per-device
// commands_received counter has been incremented.
func (d *Dispatcher) SendControl(ctx context.Context, req *domain.ControlRequest) (*CommandAck, error) {
	clientID := req.ClientID
	if clientID == "" {
		clientID = d.config.DefaultClientID
	}

	if req.Mode != nil {
		return d.sendMode(ctx, clientID, req.Mode)
	}
	if req.Command == nil {
		d.reject()
		return nil, domain.NewMissingFieldError("command")
	}

	env, err := d.validateCommand(clientID, req.Command)
	if err != nil {
		d.reject()
		d.logger.Warn().
			Err(err).
			Str("client_id", clientID).
			Str("command", req.Command.Command).
			Msg("Control request rejected")
		return nil, err
	}

	d.stats.CommandsAccepted.Add(1)
	if d.metrics != nil {
		d.metrics.IncCommandsAccepted()
	}

	payload, err := d.encodeCommand(env)
	if err != nil {
		// Marshalling a validated envelope cannot realistically fail, but
		// nothing may be published if it does.
		d.reject()
		return nil, domain.NewFieldError("command", err.Error())
	}

	now := time.Now()
	pubErr := d.publisher.Publish(ctx, d.config.ControlTopic, payload)
	d.registry.RecordCommand(clientID, pubErr == nil, now)

	if pubErr != nil {
		d.stats.PublishFailures.Add(1)
		d.logger.Error().
			Err(pubErr).
			Str("client_id", clientID).
			Str("topic", d.config.ControlTopic).
			Msg("Command publish failed")
		return nil, pubErr
	}

	d.stats.CommandsPublished.Add(1)
	if d.metrics != nil {
		d.metrics.IncCommandsPublished()
	}

	d.logger.Info().
		Str("client_id", clientID).
		Str("command", env.Command).
		Str("request_id", env.RequestID).
		Msg("Command published")

	return &CommandAck{
		RequestID: env.RequestID,
		ClientID:  clientID,
		Topic:     d.config.ControlTopic,
		Command:   env,
		SentAt:    now,
	}, nil
}

// sendMode publishes a declarative mode switch to the manager topic.
func (d *Dispatcher) sendMode(ctx context.Context, clientID string, mode *domain.ModeEnvelope) (*CommandAck, error) {
	if mode.Mode != domain.ModeAuto && mode.Mode != domain.ModeManual {
		d.reject()
		return nil, domain.NewFieldError("mode", "must be \"auto\" or \"manual\"")
	}

	payload, err := json.Marshal(mode)
	if err != nil {
		d.reject()
		return nil, domain.NewFieldError("mode", err.Error())
	}

	now := time.Now()
	if err := d.publisher.Publish(ctx, d.config.ModeTopic, payload); err != nil {
		d.stats.PublishFailures.Add(1)
		return nil, err
	}

	d.stats.CommandsPublished.Add(1)
	if d.metrics != nil {
		d.metrics.IncCommandsPublished()
	}

	d.logger.Info().Str("mode", mode.Mode).Msg("Mode switch published")

	return &CommandAck{
		ClientID: clientID,
		Topic:    d.config.ModeTopic,
		Mode:     mode,
		SentAt:   now,
	}, nil
}

// validateCommand checks one verb command against the target device's axis
// limits and returns the normalized envelope to publish.
func (d *Dispatcher) validateCommand(clientID string, cmd *domain.CommandEnvelope) (*domain.CommandEnvelope, error) {
	env := &domain.CommandEnvelope{
		RequestID: cmd.RequestID,
		Command:   cmd.Command,
		Timestamp: time.Now(),
	}
	if env.RequestID == "" {
		env.RequestID = uuid.NewString()
	}

	limits := d.registry.LimitsFor(clientID)

	switch cmd.Command {
	case domain.CommandMove:
		if cmd.X == nil {
			return nil, domain.NewMissingFieldError("x")
		}
		if cmd.Y == nil {
			return nil, domain.NewMissingFieldError("y")
		}
		if !limits.X.Contains(*cmd.X) {
			return nil, domain.NewRangeError("x", *cmd.X, limits.X.Min, limits.X.Max)
		}
		if !limits.Y.Contains(*cmd.Y) {
			return nil, domain.NewRangeError("y", *cmd.Y, limits.Y.Min, limits.Y.Max)
		}
		speed := d.config.DefaultSpeed
		if cmd.Speed != nil {
			if *cmd.Speed <= 0 {
				return nil, domain.NewFieldError("speed", "must be positive")
			}
			speed = *cmd.Speed
		}
		x, y := *cmd.X, *cmd.Y
		env.X, env.Y, env.Speed = &x, &y, &speed

	case domain.CommandZoom:
		if cmd.Zoom == nil {
			return nil, domain.NewMissingFieldError("zoom")
		}
		if *cmd.Zoom <= 0 {
			return nil, domain.NewFieldError("zoom", "must be positive")
		}
		z := *cmd.Zoom
		env.Zoom = &z

	case domain.CommandPreset:
		if cmd.PresetID == nil {
			return nil, domain.NewMissingFieldError("preset_id")
		}
		pos, ok := presetPositions[*cmd.PresetID]
		if !ok {
			return nil, domain.NewFieldError("preset_id", "unknown preset")
		}
		// Presets resolve to a move target so dumb firmware need not know
		// them; the resolved target still honors device-specific limits.
		if !limits.X.Contains(pos.X) {
			return nil, domain.NewRangeError("x", pos.X, limits.X.Min, limits.X.Max)
		}
		if !limits.Y.Contains(pos.Y) {
			return nil, domain.NewRangeError("y", pos.Y, limits.Y.Min, limits.Y.Max)
		}
		id := *cmd.PresetID
		x, y := pos.X, pos.Y
		env.PresetID, env.X, env.Y = &id, &x, &y

	case domain.CommandCalibrate, domain.CommandReset:
		// No parameters.

	default:
		return nil, domain.NewFieldError("command", "unknown command")
	}

	return env, nil
}

// encodeCommand renders the wire payload for a normalized envelope.
func (d *Dispatcher) encodeCommand(env *domain.CommandEnvelope) ([]byte, error) {
	if d.config.LegacyWireFormat && env.Command == domain.CommandMove {
		return []byte(domain.FormatLegacyCommand(*env.X, *env.Y)), nil
	}
	return json.Marshal(env)
}

func (d *Dispatcher) reject() {
	d.stats.CommandsRejected.Add(1)
	if d.metrics != nil {
		d.metrics.IncCommandsRejected()
	}
}

// Stats returns dispatcher counters for the status endpoint.
func (d *Dispatcher) Stats() map[string]interface{} {
	return map[string]interface{}{
		"commands_accepted":  d.stats.CommandsAccepted.Load(),
		"commands_rejected":  d.stats.CommandsRejected.Load(),
		"commands_published": d.stats.CommandsPublished.Load(),
		"publish_failures":   d.stats.PublishFailures.Load(),
	}
}
