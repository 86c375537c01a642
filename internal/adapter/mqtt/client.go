// Package mqtt wraps the paho client behind the small pub/sub surface the
// bridge needs: connect, publish, subscribe, disconnect, plus connection
// state events for dependent components.
package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/camlink/gimbal-bridge/internal/domain"
	"github.com/camlink/gimbal-bridge/internal/metrics"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Config contains MQTT client configuration
type Config struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	KeepAlive      time.Duration
	CleanSession   bool
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	ReconnectDelay time.Duration
}

// MessageHandler is called for each received MQTT message
type MessageHandler func(topic string, payload []byte, receivedAt time.Time)

// ConnectionHandler is notified when the broker connection comes or goes
type ConnectionHandler func(connected bool)

// Client handles the broker connection, inbound subscriptions and outbound
// publishes. Publishes fail fast while disconnected and run through a
// circuit breaker so a flapping broker cannot stall callers.
type Client struct {
	config  Config
	client  paho.Client
	logger  zerolog.Logger
	metrics *metrics.Registry
	breaker *gobreaker.CircuitBreaker[struct{}]

	handlers    map[string]MessageHandler
	handlersMu  sync.RWMutex
	connHandler ConnectionHandler
	connMu      sync.RWMutex
	isConnected atomic.Bool

	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	publishFailures  atomic.Uint64
}

// NewClient creates a new MQTT client
func NewClient(config Config, logger zerolog.Logger, metricsReg *metrics.Registry) (*Client, error) {
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 30 * time.Second
	}
	if config.PublishTimeout == 0 {
		config.PublishTimeout = 5 * time.Second
	}
	if config.ReconnectDelay == 0 {
		config.ReconnectDelay = 5 * time.Second
	}

	c := &Client{
		config:   config,
		logger:   logger.With().Str("component", "mqtt-client").Logger(),
		metrics:  metricsReg,
		handlers: make(map[string]MessageHandler),
	}

	c.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "mqtt-publish",
		Timeout: config.ReconnectDelay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Publish circuit breaker state change")
		},
	})

	opts := paho.NewClientOptions().
		AddBroker(config.BrokerURL).
		SetClientID(config.ClientID).
		SetKeepAlive(config.KeepAlive).
		SetCleanSession(config.CleanSession).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(config.ReconnectDelay).
		SetConnectionLostHandler(c.onConnectionLost).
		SetOnConnectHandler(c.onConnect)

	if config.Username != "" {
		opts.SetUsername(config.Username)
	}
	if config.Password != "" {
		opts.SetPassword(config.Password)
	}

	c.client = paho.NewClient(opts)

	return c, nil
}

// Connect establishes connection to the MQTT broker
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Info().
		Str("broker", c.config.BrokerURL).
		Str("client_id", c.config.ClientID).
		Msg("Connecting to MQTT broker")

	token := c.client.Connect()
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		return fmt.Errorf("connection timeout")
	}
	if token.Error() != nil {
		return fmt.Errorf("connection failed: %w", token.Error())
	}

	return nil
}

// Publish sends a payload to a topic. It fails fast with a TransportError
// while disconnected rather than queueing indefinitely, and the wait on the
// broker acknowledgement is bounded by PublishTimeout.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	if !c.IsConnected() {
		c.publishFailures.Add(1)
		if c.metrics != nil {
			c.metrics.IncPublishErrors()
		}
		return &domain.TransportError{Op: "publish", Err: domain.ErrNotConnected}
	}

	startTime := time.Now()

	_, err := c.breaker.Execute(func() (struct{}, error) {
		token := c.client.Publish(topic, c.config.QoS, false, payload)
		if !token.WaitTimeout(c.config.PublishTimeout) {
			return struct{}{}, domain.ErrPublishTimeout
		}
		return struct{}{}, token.Error()
	})

	if c.metrics != nil {
		c.metrics.ObservePublishDuration(time.Since(startTime).Seconds())
	}

	if err != nil {
		c.publishFailures.Add(1)
		if c.metrics != nil {
			c.metrics.IncPublishErrors()
		}
		c.logger.Error().Err(err).Str("topic", topic).Msg("Publish failed")
		return &domain.TransportError{Op: "publish", Err: err}
	}

	c.messagesSent.Add(1)
	return nil
}

// Subscribe registers a handler for a topic filter. The subscription is
// re-established automatically after a reconnect.
func (c *Client) Subscribe(topic string, handler MessageHandler) error {
	c.handlersMu.Lock()
	c.handlers[topic] = handler
	c.handlersMu.Unlock()

	if !c.IsConnected() {
		// Deferred until onConnect resubscribes everything registered.
		return nil
	}
	return c.subscribe(topic, handler)
}

func (c *Client) subscribe(topic string, handler MessageHandler) error {
	token := c.client.Subscribe(topic, c.config.QoS, func(_ paho.Client, msg paho.Message) {
		c.messagesReceived.Add(1)
		handler(msg.Topic(), msg.Payload(), time.Now())
	})
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("%w: timeout on %s", domain.ErrMQTTSubscribeFailed, topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("%w: %v", domain.ErrMQTTSubscribeFailed, token.Error())
	}

	c.logger.Info().Str("topic", topic).Msg("Subscribed to topic")
	return nil
}

// SetConnectionHandler sets the callback notified on connection changes
func (c *Client) SetConnectionHandler(handler ConnectionHandler) {
	c.connMu.Lock()
	c.connHandler = handler
	c.connMu.Unlock()
}

// Disconnect cleanly disconnects from the broker
func (c *Client) Disconnect() {
	c.client.Disconnect(5000)
	c.isConnected.Store(false)
	c.logger.Info().Msg("Disconnected from MQTT broker")
}

// IsConnected returns current connection status
func (c *Client) IsConnected() bool {
	return c.isConnected.Load() && c.client.IsConnected()
}

// Stats returns client statistics
func (c *Client) Stats() map[string]interface{} {
	return map[string]interface{}{
		"connected":         c.IsConnected(),
		"broker":            c.config.BrokerURL,
		"client_id":         c.config.ClientID,
		"messages_received": c.messagesReceived.Load(),
		"messages_sent":     c.messagesSent.Load(),
		"publish_failures":  c.publishFailures.Load(),
	}
}

// onConnect is called when connection is established
func (c *Client) onConnect(client paho.Client) {
	c.isConnected.Store(true)
	c.logger.Info().Msg("Connected to MQTT broker")

	// Resubscribe on reconnection
	c.handlersMu.RLock()
	handlers := make(map[string]MessageHandler, len(c.handlers))
	for topic, handler := range c.handlers {
		handlers[topic] = handler
	}
	c.handlersMu.RUnlock()

	for topic, handler := range handlers {
		if err := c.subscribe(topic, handler); err != nil {
			c.logger.Error().Err(err).Str("topic", topic).Msg("Failed to resubscribe after reconnection")
		}
	}

	c.notifyConnection(true)
}

// onConnectionLost is called when connection is lost
func (c *Client) onConnectionLost(client paho.Client, err error) {
	c.isConnected.Store(false)
	c.logger.Warn().Err(err).Msg("Connection lost to MQTT broker")
	c.notifyConnection(false)
}

func (c *Client) notifyConnection(connected bool) {
	c.connMu.RLock()
	handler := c.connHandler
	c.connMu.RUnlock()

	if handler != nil {
		handler(connected)
	}
}
