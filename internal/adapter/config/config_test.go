package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "service:\n  name: gimbal-bridge\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.BrokerURL)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Contains(t, cfg.MQTT.ClientID, "gimbal-bridge-")
	assert.Equal(t, "device/gimbal/control", cfg.Bridge.ControlTopic)
	assert.Equal(t, "camera/manager/set_mode", cfg.Bridge.ModeTopic)
	assert.Equal(t, "device/gimbal/register", cfg.Bridge.RegisterTopic)
	assert.Equal(t, "device/gimbal/status", cfg.Bridge.StatusTopic)
	assert.Equal(t, "chatroom/system", cfg.Bridge.SystemTopic)
	assert.Equal(t, "gimbal-1", cfg.Bridge.DefaultClientID)
	assert.Equal(t, 1.0, cfg.Bridge.DefaultSpeed)
	assert.Equal(t, 5*time.Second, cfg.Bridge.OfflineTimeout)
	assert.Equal(t, time.Second, cfg.Bridge.SweepInterval)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadParsesValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
http:
  port: 9090
mqtt:
  broker_url: tcp://broker.local:1883
  qos: 2
bridge:
  legacy_wire_format: true
  offline_timeout: 10s
  sweep_interval: 2s
logging:
  level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "tcp://broker.local:1883", cfg.MQTT.BrokerURL)
	assert.Equal(t, byte(2), cfg.MQTT.QoS)
	assert.True(t, cfg.Bridge.LegacyWireFormat)
	assert.Equal(t, 10*time.Second, cfg.Bridge.OfflineTimeout)
	assert.Equal(t, 2*time.Second, cfg.Bridge.SweepInterval)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("TEST_BROKER", "tcp://env-broker:1883")

	cfg, err := Load(writeConfig(t, `
mqtt:
  broker_url: ${TEST_BROKER:tcp://fallback:1883}
  username: ${TEST_MISSING_USER:guest}
`))
	require.NoError(t, err)

	assert.Equal(t, "tcp://env-broker:1883", cfg.MQTT.BrokerURL)
	assert.Equal(t, "guest", cfg.MQTT.Username)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BRIDGE_MQTT_BROKER_URL", "tcp://override:1883")
	t.Setenv("BRIDGE_OFFLINE_TIMEOUT", "8s")
	t.Setenv("BRIDGE_LOGGING_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, "service:\n  name: gimbal-bridge\n"))
	require.NoError(t, err)

	assert.Equal(t, "tcp://override:1883", cfg.MQTT.BrokerURL)
	assert.Equal(t, 8*time.Second, cfg.Bridge.OfflineTimeout)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadRejectsSweepLargerThanTimeout(t *testing.T) {
	_, err := Load(writeConfig(t, `
bridge:
  offline_timeout: 1s
  sweep_interval: 5s
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sweep_interval")
}

func TestLoadRejectsMissingProductionPassword(t *testing.T) {
	_, err := Load(writeConfig(t, `
service:
  environment: production
mqtt:
  username: bridge
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
