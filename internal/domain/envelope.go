package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Verb commands accepted in a CommandEnvelope.
const (
	CommandMove      = "move"
	CommandZoom      = "zoom"
	CommandPreset    = "preset"
	CommandCalibrate = "calibrate"
	CommandReset     = "reset"
)

// Modes accepted in a ModeEnvelope.
const (
	ModeAuto   = "auto"
	ModeManual = "manual"
)

// CommandEnvelope is the verb-based control shape. Axis and option fields
// are pointers so the validator can tell absent from zero.
type CommandEnvelope struct {
	RequestID string    `json:"request_id,omitempty"`
	Command   string    `json:"command"`
	X         *int      `json:"x,omitempty"`
	Y         *int      `json:"y,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Zoom      *float64  `json:"zoom,omitempty"`
	PresetID  *int      `json:"preset_id,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ModeEnvelope is the declarative mode-switch shape.
type ModeEnvelope struct {
	Mode string `json:"mode"`
}

// ControlRequest is the decoded inbound control message: exactly one of
// Command or Mode is set.
type ControlRequest struct {
	ClientID string
	Command  *CommandEnvelope
	Mode     *ModeEnvelope
}

// legacyCommandRe matches the wire format older gimbal firmware speaks.
var legacyCommandRe = regexp.MustCompile(`^Ang_X=(\d+),Ang_Y=(\d+)$`)

// ParseControl decodes a control payload. It accepts the legacy
// "Ang_X=<x>,Ang_Y=<y>" text form, a JSON command envelope, or a JSON mode
// envelope, distinguished by the command/mode keys. Anything else is
// rejected rather than interpreted best-effort.
func ParseControl(payload []byte) (*ControlRequest, error) {
	if m := legacyCommandRe.FindStringSubmatch(strings.TrimSpace(string(payload))); m != nil {
		x, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("legacy command: %w", err)
		}
		y, err := strconv.Atoi(m[2])
		if err != nil {
			return nil, fmt.Errorf("legacy command: %w", err)
		}
		return &ControlRequest{
			Command: &CommandEnvelope{Command: CommandMove, X: &x, Y: &y},
		}, nil
	}

	var probe struct {
		ClientID string  `json:"client_id"`
		Command  *string `json:"command"`
		Mode     *string `json:"mode"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownEnvelope, err)
	}

	switch {
	case probe.Command != nil && probe.Mode != nil:
		return nil, fmt.Errorf("%w: both command and mode present", ErrUnknownEnvelope)
	case probe.Command != nil:
		var cmd CommandEnvelope
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return nil, fmt.Errorf("command envelope: %w", err)
		}
		return &ControlRequest{ClientID: probe.ClientID, Command: &cmd}, nil
	case probe.Mode != nil:
		return &ControlRequest{ClientID: probe.ClientID, Mode: &ModeEnvelope{Mode: *probe.Mode}}, nil
	default:
		return nil, ErrUnknownEnvelope
	}
}

// FormatLegacyCommand renders a move target in the legacy wire format.
func FormatLegacyCommand(x, y int) string {
	return fmt.Sprintf("Ang_X=%d,Ang_Y=%d", x, y)
}

// EventTime accepts epoch-millisecond numbers and RFC3339 strings, the two
// timestamp encodings devices have been observed to send.
type EventTime struct {
	time.Time
}

func (t *EventTime) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		t.Time = time.Time{}
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		parsed, err := time.Parse(time.RFC3339Nano, s[1:len(s)-1])
		if err != nil {
			parsed, err = time.Parse(time.RFC3339, s[1:len(s)-1])
		}
		if err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		t.Time = parsed
		return nil
	}
	millis, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	t.Time = time.UnixMilli(millis)
	return nil
}

func (t EventTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(t.UnixMilli(), 10)), nil
}

// StatusEnvelope is the periodic device heartbeat.
type StatusEnvelope struct {
	ClientID        string    `json:"client_id"`
	Status          string    `json:"status"`
	Mode            string    `json:"mode,omitempty"`
	CurrentPosition *Position `json:"current_position,omitempty"`
	Battery         *int      `json:"battery,omitempty"`
	Timestamp       EventTime `json:"timestamp"`
}

// ParseStatus decodes and validates a status payload.
func ParseStatus(payload []byte) (*StatusEnvelope, error) {
	var st StatusEnvelope
	if err := json.Unmarshal(payload, &st); err != nil {
		return nil, fmt.Errorf("status envelope: %w", err)
	}
	if st.ClientID == "" {
		return nil, ErrMissingClientID
	}
	if st.Status != "online" && st.Status != "offline" {
		return nil, fmt.Errorf("%w: status %q", ErrUnknownEnvelope, st.Status)
	}
	return &st, nil
}

// DeviceInfo is the static metadata block inside a registration payload.
type DeviceInfo struct {
	Model           string         `json:"model,omitempty"`
	Capabilities    []string       `json:"capabilities,omitempty"`
	PositionLimits  PositionLimits `json:"position_limits,omitempty"`
	CurrentPosition *Position      `json:"current_position,omitempty"`
}

// RegistrationEnvelope announces a device and its static metadata.
type RegistrationEnvelope struct {
	ClientID   string     `json:"client_id"`
	Username   string     `json:"username"`
	DeviceType string     `json:"device_type"`
	DeviceInfo DeviceInfo `json:"device_info"`
}

// ParseRegistration decodes and validates a registration payload.
func ParseRegistration(payload []byte) (*RegistrationEnvelope, error) {
	var reg RegistrationEnvelope
	if err := json.Unmarshal(payload, &reg); err != nil {
		return nil, fmt.Errorf("registration envelope: %w", err)
	}
	if reg.ClientID == "" {
		return nil, ErrMissingClientID
	}
	if reg.DeviceType == "" {
		reg.DeviceType = "gimbal"
	}
	return &reg, nil
}
