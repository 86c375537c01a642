package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// expandEnvBraces expands only ${VAR} and ${VAR:default} patterns, leaving
// bare $ sequences (MQTT shared-subscription prefixes) alone.
func expandEnvBraces(s string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}

// Config represents the complete service configuration
type Config struct {
	Service ServiceConfig `yaml:"service"`
	HTTP    HTTPConfig    `yaml:"http"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServiceConfig contains service identification
type ServiceConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
}

// HTTPConfig contains HTTP server settings
type HTTPConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// MQTTConfig contains MQTT connection settings
type MQTTConfig struct {
	BrokerURL      string        `yaml:"broker_url"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	QoS            byte          `yaml:"qos"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
	CleanSession   bool          `yaml:"clean_session"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

// BridgeConfig contains the gimbal bridge settings
type BridgeConfig struct {
	ControlTopic     string        `yaml:"control_topic"`
	ModeTopic        string        `yaml:"mode_topic"`
	RegisterTopic    string        `yaml:"register_topic"`
	StatusTopic      string        `yaml:"status_topic"`
	SystemTopic      string        `yaml:"system_topic"`
	DefaultClientID  string        `yaml:"default_client_id"`
	DefaultSpeed     float64       `yaml:"default_speed"`
	LegacyWireFormat bool          `yaml:"legacy_wire_format"`
	OfflineTimeout   time.Duration `yaml:"offline_timeout"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables (only ${VAR} syntax, not $VAR)
	expanded := expandEnvBraces(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = "gimbal-bridge"
	}
	if cfg.Service.Environment == "" {
		cfg.Service.Environment = "development"
	}

	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 10 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 10 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}

	if cfg.MQTT.BrokerURL == "" {
		cfg.MQTT.BrokerURL = "tcp://localhost:1883"
	}
	if cfg.MQTT.ClientID == "" {
		hostname, _ := os.Hostname()
		cfg.MQTT.ClientID = fmt.Sprintf("gimbal-bridge-%s", hostname)
	}
	if cfg.MQTT.QoS == 0 {
		cfg.MQTT.QoS = 1
	}
	if cfg.MQTT.KeepAlive == 0 {
		cfg.MQTT.KeepAlive = 30 * time.Second
	}
	if cfg.MQTT.ConnectTimeout == 0 {
		cfg.MQTT.ConnectTimeout = 30 * time.Second
	}
	if cfg.MQTT.PublishTimeout == 0 {
		cfg.MQTT.PublishTimeout = 5 * time.Second
	}
	if cfg.MQTT.ReconnectDelay == 0 {
		cfg.MQTT.ReconnectDelay = 5 * time.Second
	}

	if cfg.Bridge.ControlTopic == "" {
		cfg.Bridge.ControlTopic = "device/gimbal/control"
	}
	if cfg.Bridge.ModeTopic == "" {
		cfg.Bridge.ModeTopic = "camera/manager/set_mode"
	}
	if cfg.Bridge.RegisterTopic == "" {
		cfg.Bridge.RegisterTopic = "device/gimbal/register"
	}
	if cfg.Bridge.StatusTopic == "" {
		cfg.Bridge.StatusTopic = "device/gimbal/status"
	}
	if cfg.Bridge.SystemTopic == "" {
		cfg.Bridge.SystemTopic = "chatroom/system"
	}
	if cfg.Bridge.DefaultClientID == "" {
		cfg.Bridge.DefaultClientID = "gimbal-1"
	}
	if cfg.Bridge.DefaultSpeed == 0 {
		cfg.Bridge.DefaultSpeed = 1.0
	}
	if cfg.Bridge.OfflineTimeout == 0 {
		// Devices heartbeat roughly once a second; five missed beats
		// counts as offline.
		cfg.Bridge.OfflineTimeout = 5 * time.Second
	}
	if cfg.Bridge.SweepInterval == 0 {
		cfg.Bridge.SweepInterval = time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BRIDGE_HTTP_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.HTTP.Port)
	}
	if v := os.Getenv("BRIDGE_MQTT_BROKER_URL"); v != "" {
		cfg.MQTT.BrokerURL = v
	}
	if v := os.Getenv("BRIDGE_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.ClientID = v
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("BRIDGE_CONTROL_TOPIC"); v != "" {
		cfg.Bridge.ControlTopic = v
	}
	if v := os.Getenv("BRIDGE_STATUS_TOPIC"); v != "" {
		cfg.Bridge.StatusTopic = v
	}
	if v := os.Getenv("BRIDGE_OFFLINE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Bridge.OfflineTimeout = d
		}
	}
	if v := os.Getenv("BRIDGE_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func validate(cfg *Config) error {
	if cfg.Bridge.OfflineTimeout <= 0 {
		return fmt.Errorf("offline_timeout must be positive")
	}
	if cfg.Bridge.SweepInterval > cfg.Bridge.OfflineTimeout {
		return fmt.Errorf("sweep_interval cannot be larger than offline_timeout")
	}
	if cfg.Bridge.DefaultSpeed <= 0 {
		return fmt.Errorf("default_speed must be positive")
	}
	if cfg.MQTT.Password == "" && cfg.MQTT.Username != "" && cfg.Service.Environment == "production" {
		return fmt.Errorf("mqtt password is required in production when a username is set")
	}
	return nil
}
