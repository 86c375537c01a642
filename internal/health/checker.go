package health

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/camlink/gimbal-bridge/internal/adapter/mqtt"
	"github.com/camlink/gimbal-bridge/internal/registry"
	"github.com/rs/zerolog"
)

// Checker provides health check endpoints
type Checker struct {
	client   *mqtt.Client
	registry *registry.Registry
	logger   zerolog.Logger
}

// NewChecker creates a new health checker
func NewChecker(client *mqtt.Client, reg *registry.Registry, logger zerolog.Logger) *Checker {
	return &Checker{
		client:   client,
		registry: reg,
		logger:   logger.With().Str("component", "health-checker").Logger(),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components"`
}

// HealthHandler returns the overall health status
func (c *Checker) HealthHandler(w http.ResponseWriter, r *http.Request) {
	mqttStatus := "healthy"
	if !c.client.IsConnected() {
		mqttStatus = "unhealthy"
	}

	overallStatus := "healthy"
	if mqttStatus != "healthy" {
		overallStatus = "degraded"
	}

	response := HealthResponse{
		Status:    overallStatus,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Components: map[string]string{
			"mqtt": mqttStatus,
		},
	}

	w.Header().Set("Content-Type", "application/json")

	if overallStatus != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(response)
}

// LiveHandler returns 200 if the process is running
func (c *Checker) LiveHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ReadyHandler returns 200 if the service is ready to accept traffic.
// Readiness requires the broker connection; the registry is always ready.
func (c *Checker) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ready := c.client.IsConnected()

	w.Header().Set("Content-Type", "application/json")

	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "not_ready",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"mqtt":      false,
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"devices":   c.registry.Count(),
	})
}
