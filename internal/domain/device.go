// Package domain contains the core entities of the gimbal bridge.
// These are transport-agnostic and shared by the registry, the command
// dispatcher and the status ingest.
package domain

import (
	"time"
)

// DeviceStatus represents the reachability of a registered device.
type DeviceStatus string

const (
	// DeviceStatusRegistered is the initial state after a registration
	// message, before any status heartbeat has been seen.
	DeviceStatusRegistered DeviceStatus = "registered"
	DeviceStatusOnline     DeviceStatus = "online"
	DeviceStatusOffline    DeviceStatus = "offline"
)

// Default axis limits for gimbal hardware that registers without its own.
const (
	DefaultMinX = 1024
	DefaultMaxX = 3048
	DefaultMinY = 1850
	DefaultMaxY = 2400
)

// Position holds the two gimbal axis values in device units.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// AxisLimits is a closed interval of accepted axis values.
type AxisLimits struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Contains reports whether v lies within the closed interval.
func (l AxisLimits) Contains(v int) bool {
	return v >= l.Min && v <= l.Max
}

// PositionLimits holds the per-axis limits for one device.
type PositionLimits struct {
	X AxisLimits `json:"x"`
	Y AxisLimits `json:"y"`
}

// DefaultPositionLimits returns the stock gimbal travel range.
func DefaultPositionLimits() PositionLimits {
	return PositionLimits{
		X: AxisLimits{Min: DefaultMinX, Max: DefaultMaxX},
		Y: AxisLimits{Min: DefaultMinY, Max: DefaultMaxY},
	}
}

// IsZero reports whether no limits were supplied at registration.
func (l PositionLimits) IsZero() bool {
	return l.X == (AxisLimits{}) && l.Y == (AxisLimits{})
}

// DeviceStats tracks per-device counters. CommandsReceived and
// CommandsExecuted are mutated by the dispatcher, PositionChanges by the
// status ingest.
type DeviceStats struct {
	CommandsReceived uint64     `json:"commands_received"`
	CommandsExecuted uint64     `json:"commands_executed"`
	PositionChanges  uint64     `json:"position_changes"`
	LastCommandTime  *time.Time `json:"last_command_time,omitempty"`
}

// Device represents one registered gimbal actuator. Records are owned
// exclusively by the registry; everything handed out is a copy.
type Device struct {
	// ClientID is the stable identity the device asserts at registration.
	ClientID string `json:"client_id"`

	// DisplayName is the human label from the registration payload.
	DisplayName string `json:"display_name"`

	// Model and Capabilities are static metadata, immutable after
	// registration.
	Model        string   `json:"model,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`

	// Limits is the per-axis travel range, immutable after registration.
	Limits PositionLimits `json:"position_limits"`

	// Position is the last device-reported axis state. Known reports false
	// until the first status message carries a position.
	Position      Position `json:"current_position"`
	PositionKnown bool     `json:"-"`

	Status DeviceStatus `json:"status"`

	// Mode and Battery mirror the most recent status heartbeat.
	Mode    string `json:"mode,omitempty"`
	Battery *int   `json:"battery,omitempty"`

	LastSeen     time.Time `json:"last_seen"`
	RegisteredAt time.Time `json:"registered_at"`

	Stats DeviceStats `json:"stats"`
}

// Clone returns a deep copy safe to hand outside the registry lock.
func (d *Device) Clone() Device {
	c := *d
	if d.Capabilities != nil {
		c.Capabilities = append([]string(nil), d.Capabilities...)
	}
	if d.Battery != nil {
		b := *d.Battery
		c.Battery = &b
	}
	if d.Stats.LastCommandTime != nil {
		t := *d.Stats.LastCommandTime
		c.Stats.LastCommandTime = &t
	}
	return c
}
