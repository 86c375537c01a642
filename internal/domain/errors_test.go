package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRangeErrorMessage(t *testing.T) {
	err := NewRangeError("x", 5000, 1024, 3048)
	assert.Equal(t, "x out of range: 5000, expected 1024-3048", err.Error())
	assert.Equal(t, "x", err.Field)
}

func TestMissingFieldErrorMessage(t *testing.T) {
	assert.Equal(t, "command is required", NewMissingFieldError("command").Error())
}

func TestIsValidation(t *testing.T) {
	err := NewFieldError("speed", "must be positive")
	assert.True(t, IsValidation(err))
	assert.True(t, IsValidation(fmt.Errorf("rejected: %w", err)))
	assert.False(t, IsValidation(errors.New("boom")))
	assert.False(t, IsValidation(nil))
}

func TestIsTransport(t *testing.T) {
	err := &TransportError{Op: "publish", Err: ErrNotConnected}
	assert.True(t, IsTransport(err))
	assert.False(t, IsValidation(err))
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, "transport publish: mqtt client not connected", err.Error())
}

func TestDeviceCloneIsDeep(t *testing.T) {
	battery := 90
	dev := &Device{
		ClientID:     "gimbal-1",
		Capabilities: []string{"move"},
		Battery:      &battery,
	}

	c := dev.Clone()
	c.Capabilities[0] = "zoom"
	*c.Battery = 10

	assert.Equal(t, "move", dev.Capabilities[0])
	assert.Equal(t, 90, *dev.Battery)
}

func TestAxisLimitsContains(t *testing.T) {
	l := AxisLimits{Min: 1024, Max: 3048}
	assert.True(t, l.Contains(1024))
	assert.True(t, l.Contains(3048))
	assert.False(t, l.Contains(1023))
	assert.False(t, l.Contains(3049))
}
