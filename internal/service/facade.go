package service

import (
	"time"

	"github.com/camlink/gimbal-bridge/internal/domain"
	"github.com/camlink/gimbal-bridge/internal/registry"
	"github.com/rs/zerolog"
)

// StatusResponse is a point-in-time snapshot of one or all devices.
type StatusResponse struct {
	Devices   []domain.Device `json:"devices"`
	Count     int             `json:"count"`
	Timestamp time.Time       `json:"timestamp"`
}

// DeviceSummary is the compact listing entry.
type DeviceSummary struct {
	ClientID    string              `json:"client_id"`
	DisplayName string              `json:"display_name"`
	Model       string              `json:"model,omitempty"`
	Status      domain.DeviceStatus `json:"status"`
	LastSeen    time.Time           `json:"last_seen"`
}

// ListResponse enumerates registered devices in insertion order.
type ListResponse struct {
	Devices   []DeviceSummary `json:"devices"`
	Count     int             `json:"count"`
	Timestamp time.Time       `json:"timestamp"`
}

// Facade serves read-only device views to the HTTP layer. Staleness is
// evaluated lazily before every answer, with the same timeout the
// background sweeper uses, so a silent device reads offline even if no
// sweep has run yet. All returned data is a defensive copy.
type Facade struct {
	registry     *registry.Registry
	logger       zerolog.Logger
	onTransition TransitionFunc
}

// NewFacade creates a new query facade.
func NewFacade(reg *registry.Registry, logger zerolog.Logger) *Facade {
	return &Facade{
		registry: reg,
		logger:   logger.With().Str("component", "query-facade").Logger(),
	}
}

// SetTransitionHandler sets the callback fired for staleness transitions
// detected during lazy sweeps.
func (f *Facade) SetTransitionHandler(fn TransitionFunc) {
	f.onTransition = fn
}

// Status returns a snapshot of one device, or of all devices when clientID
// is empty or "all".
func (f *Facade) Status(clientID string) (*StatusResponse, error) {
	now := time.Now()
	f.sweep(now)

	if clientID == "" || clientID == "all" {
		devices := f.registry.List()
		return &StatusResponse{Devices: devices, Count: len(devices), Timestamp: now}, nil
	}

	dev, ok := f.registry.Get(clientID)
	if !ok {
		return nil, domain.ErrDeviceNotFound
	}
	return &StatusResponse{Devices: []domain.Device{dev}, Count: 1, Timestamp: now}, nil
}

// List returns summaries of all registered devices in insertion order.
func (f *Facade) List() *ListResponse {
	now := time.Now()
	f.sweep(now)

	devices := f.registry.List()
	summaries := make([]DeviceSummary, 0, len(devices))
	for _, dev := range devices {
		summaries = append(summaries, DeviceSummary{
			ClientID:    dev.ClientID,
			DisplayName: dev.DisplayName,
			Model:       dev.Model,
			Status:      dev.Status,
			LastSeen:    dev.LastSeen,
		})
	}

	return &ListResponse{Devices: summaries, Count: len(summaries), Timestamp: now}
}

// sweep runs the staleness check and forwards any transitions it caused.
func (f *Facade) sweep(now time.Time) {
	for _, t := range f.registry.MarkStaleIfTimedOut(now) {
		if f.onTransition != nil {
			f.onTransition(t)
		}
	}
}
