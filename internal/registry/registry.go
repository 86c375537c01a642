// Package registry holds the in-memory device table. It is the single
// owner of Device records; the dispatcher, status ingest and query facade
// all go through it, and everything it hands out is a copy.
package registry

import (
	"sync"
	"time"

	"github.com/camlink/gimbal-bridge/internal/domain"
	"github.com/camlink/gimbal-bridge/internal/metrics"
	"github.com/rs/zerolog"
)

// Transition describes a device status change observed by the registry.
type Transition struct {
	ClientID string
	From     domain.DeviceStatus
	To       domain.DeviceStatus
	At       time.Time
}

// StatusOutcome reports what applying one status message changed.
type StatusOutcome struct {
	Created         bool
	PositionChanged bool
	Transition      *Transition
}

// Registry is the in-memory device table. A single registry-wide lock is
// used; message rates are on the order of one status per second per device.
type Registry struct {
	mu             sync.Mutex
	devices        map[string]*domain.Device
	order          []string
	offlineTimeout time.Duration
	logger         zerolog.Logger
	metrics        *metrics.Registry
}

// New creates an empty registry. offlineTimeout is the staleness window
// after which a silent device is flipped to offline; the lazy query-time
// sweep and the background sweeper both use this same value.
func New(offlineTimeout time.Duration, logger zerolog.Logger, metricsReg *metrics.Registry) *Registry {
	return &Registry{
		devices:        make(map[string]*domain.Device),
		offlineTimeout: offlineTimeout,
		logger:         logger.With().Str("component", "device-registry").Logger(),
		metrics:        metricsReg,
	}
}

// OfflineTimeout returns the configured staleness window.
func (r *Registry) OfflineTimeout() time.Duration {
	return r.offlineTimeout
}

// UpsertRegistration creates or updates a device from a registration
// message. Re-registration with a known client_id updates metadata in
// place rather than creating a duplicate. Returns a copy of the record and
// whether it was newly created.
func (r *Registry) UpsertRegistration(reg *domain.RegistrationEnvelope, now time.Time) (domain.Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, exists := r.devices[reg.ClientID]
	if !exists {
		dev = &domain.Device{
			ClientID:     reg.ClientID,
			Status:       domain.DeviceStatusRegistered,
			RegisteredAt: now,
		}
		r.devices[reg.ClientID] = dev
		r.order = append(r.order, reg.ClientID)
	}

	dev.DisplayName = reg.Username
	if dev.DisplayName == "" {
		dev.DisplayName = reg.ClientID
	}
	dev.Model = reg.DeviceInfo.Model
	if reg.DeviceInfo.Capabilities != nil {
		dev.Capabilities = append([]string(nil), reg.DeviceInfo.Capabilities...)
	}
	if reg.DeviceInfo.PositionLimits.IsZero() {
		dev.Limits = domain.DefaultPositionLimits()
	} else {
		dev.Limits = reg.DeviceInfo.PositionLimits
	}
	if reg.DeviceInfo.CurrentPosition != nil {
		dev.Position = *reg.DeviceInfo.CurrentPosition
		dev.PositionKnown = true
	}
	dev.LastSeen = now

	if r.metrics != nil {
		r.metrics.SetDevicesRegistered(len(r.devices))
	}

	r.logger.Info().
		Str("client_id", reg.ClientID).
		Str("display_name", dev.DisplayName).
		Str("model", dev.Model).
		Bool("created", !exists).
		Msg("Device registered")

	return dev.Clone(), !exists
}

// RecordStatus applies one device heartbeat. Unknown devices are created on
// the fly so a status message arriving before (or instead of) registration
// still yields exactly one record.
func (r *Registry) RecordStatus(st *domain.StatusEnvelope, now time.Time) StatusOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	var outcome StatusOutcome

	dev, exists := r.devices[st.ClientID]
	if !exists {
		dev = &domain.Device{
			ClientID:     st.ClientID,
			DisplayName:  st.ClientID,
			Limits:       domain.DefaultPositionLimits(),
			Status:       domain.DeviceStatusRegistered,
			RegisteredAt: now,
		}
		r.devices[st.ClientID] = dev
		r.order = append(r.order, st.ClientID)
		outcome.Created = true
		if r.metrics != nil {
			r.metrics.SetDevicesRegistered(len(r.devices))
		}
	}

	newStatus := domain.DeviceStatusOnline
	if st.Status == "offline" {
		newStatus = domain.DeviceStatusOffline
	}
	if dev.Status != newStatus {
		outcome.Transition = &Transition{
			ClientID: st.ClientID,
			From:     dev.Status,
			To:       newStatus,
			At:       now,
		}
		dev.Status = newStatus
	}

	if st.CurrentPosition != nil {
		pos := *st.CurrentPosition
		if !dev.Limits.X.Contains(pos.X) || !dev.Limits.Y.Contains(pos.Y) {
			// Device-reported positions outside the registered limits are
			// tolerated: the device is the authority on where it actually is.
			r.logger.Warn().
				Str("client_id", st.ClientID).
				Int("x", pos.X).
				Int("y", pos.Y).
				Msg("Reported position outside registered limits")
		}
		if dev.PositionKnown && dev.Position != pos {
			dev.Stats.PositionChanges++
			outcome.PositionChanged = true
		}
		dev.Position = pos
		dev.PositionKnown = true
	}

	if st.Mode != "" {
		dev.Mode = st.Mode
	}
	if st.Battery != nil {
		b := *st.Battery
		dev.Battery = &b
	}
	dev.LastSeen = now

	if r.metrics != nil {
		r.metrics.IncStatusMessages()
		r.metrics.SetDevicesOnline(r.onlineCountLocked())
	}

	return outcome
}

// RecordCommand updates the per-device command counters after a dispatch
// attempt. It reports whether the device was known; commands for unknown
// devices are still published fire-and-forget, they just have no record to
// count against.
func (r *Registry) RecordCommand(clientID string, executed bool, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, exists := r.devices[clientID]
	if !exists {
		return false
	}

	dev.Stats.CommandsReceived++
	if executed {
		dev.Stats.CommandsExecuted++
	}
	t := now
	dev.Stats.LastCommandTime = &t
	return true
}

// Get returns a copy of the device record.
func (r *Registry) Get(clientID string) (domain.Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, exists := r.devices[clientID]
	if !exists {
		return domain.Device{}, false
	}
	return dev.Clone(), true
}

// LimitsFor returns the axis limits to validate commands for clientID
// against, falling back to the stock limits when the device is unknown.
func (r *Registry) LimitsFor(clientID string) domain.PositionLimits {
	r.mu.Lock()
	defer r.mu.Unlock()

	if dev, exists := r.devices[clientID]; exists {
		return dev.Limits
	}
	return domain.DefaultPositionLimits()
}

// List returns copies of all device records in insertion order.
func (r *Registry) List() []domain.Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Device, 0, len(r.order))
	for _, id := range r.order {
		if dev, exists := r.devices[id]; exists {
			out = append(out, dev.Clone())
		}
	}
	return out
}

// MarkStaleIfTimedOut sweeps all devices and flips any that has been silent
// longer than the offline timeout to offline. Returns the transitions made.
func (r *Registry) MarkStaleIfTimedOut(now time.Time) []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()

	var transitions []Transition
	for _, id := range r.order {
		dev, exists := r.devices[id]
		if !exists || dev.Status == domain.DeviceStatusOffline {
			continue
		}
		if now.Sub(dev.LastSeen) > r.offlineTimeout {
			transitions = append(transitions, Transition{
				ClientID: id,
				From:     dev.Status,
				To:       domain.DeviceStatusOffline,
				At:       now,
			})
			dev.Status = domain.DeviceStatusOffline
			r.logger.Info().
				Str("client_id", id).
				Time("last_seen", dev.LastSeen).
				Dur("timeout", r.offlineTimeout).
				Msg("Device marked offline after silence")
		}
	}

	if len(transitions) > 0 && r.metrics != nil {
		for range transitions {
			r.metrics.IncStaleTransitions()
		}
		r.metrics.SetDevicesOnline(r.onlineCountLocked())
	}

	return transitions
}

// Evict removes a device record. This is an administrative operation; the
// registry never garbage-collects on its own.
func (r *Registry) Evict(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[clientID]; !exists {
		return false
	}
	delete(r.devices, clientID)
	for i, id := range r.order {
		if id == clientID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	if r.metrics != nil {
		r.metrics.SetDevicesRegistered(len(r.devices))
		r.metrics.SetDevicesOnline(r.onlineCountLocked())
	}

	r.logger.Info().Str("client_id", clientID).Msg("Device evicted")
	return true
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}

// OnlineCount returns the number of devices currently online.
func (r *Registry) OnlineCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.onlineCountLocked()
}

func (r *Registry) onlineCountLocked() int {
	n := 0
	for _, dev := range r.devices {
		if dev.Status == domain.DeviceStatusOnline {
			n++
		}
	}
	return n
}

// Stats returns registry counters for the status endpoint.
func (r *Registry) Stats() map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	return map[string]interface{}{
		"devices_registered": len(r.devices),
		"devices_online":     r.onlineCountLocked(),
		"offline_timeout":    r.offlineTimeout.String(),
	}
}
