package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all Prometheus metrics for the bridge
type Registry struct {
	commandsAccepted  prometheus.Counter
	commandsRejected  prometheus.Counter
	commandsPublished prometheus.Counter
	publishErrors     prometheus.Counter
	statusMessages    prometheus.Counter
	registrations     prometheus.Counter
	parseErrors       prometheus.Counter
	staleTransitions  prometheus.Counter
	devicesRegistered prometheus.Gauge
	devicesOnline     prometheus.Gauge
	publishDuration   prometheus.Histogram
}

// NewRegistry creates a new metrics registry
func NewRegistry() *Registry {
	return &Registry{
		commandsAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gimbal_bridge_commands_accepted_total",
			Help: "Total number of control requests that passed validation",
		}),
		commandsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gimbal_bridge_commands_rejected_total",
			Help: "Total number of control requests rejected by validation",
		}),
		commandsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gimbal_bridge_commands_published_total",
			Help: "Total number of command messages handed to the broker",
		}),
		publishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gimbal_bridge_publish_errors_total",
			Help: "Total number of failed MQTT publish attempts",
		}),
		statusMessages: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gimbal_bridge_status_messages_total",
			Help: "Total number of device status messages ingested",
		}),
		registrations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gimbal_bridge_registrations_total",
			Help: "Total number of device registration messages ingested",
		}),
		parseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gimbal_bridge_parse_errors_total",
			Help: "Total number of malformed inbound payloads discarded",
		}),
		staleTransitions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gimbal_bridge_stale_transitions_total",
			Help: "Total number of online-to-offline staleness transitions",
		}),
		devicesRegistered: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gimbal_bridge_devices_registered",
			Help: "Current number of devices in the registry",
		}),
		devicesOnline: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gimbal_bridge_devices_online",
			Help: "Current number of devices reporting online",
		}),
		publishDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gimbal_bridge_publish_duration_seconds",
			Help:    "Duration of MQTT publish operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
	}
}

// IncCommandsAccepted increments the accepted commands counter
func (r *Registry) IncCommandsAccepted() {
	r.commandsAccepted.Inc()
}

// IncCommandsRejected increments the rejected commands counter
func (r *Registry) IncCommandsRejected() {
	r.commandsRejected.Inc()
}

// IncCommandsPublished increments the published commands counter
func (r *Registry) IncCommandsPublished() {
	r.commandsPublished.Inc()
}

// IncPublishErrors increments the publish errors counter
func (r *Registry) IncPublishErrors() {
	r.publishErrors.Inc()
}

// IncStatusMessages increments the status messages counter
func (r *Registry) IncStatusMessages() {
	r.statusMessages.Inc()
}

// IncRegistrations increments the registrations counter
func (r *Registry) IncRegistrations() {
	r.registrations.Inc()
}

// IncParseErrors increments the parse errors counter
func (r *Registry) IncParseErrors() {
	r.parseErrors.Inc()
}

// IncStaleTransitions increments the staleness transitions counter
func (r *Registry) IncStaleTransitions() {
	r.staleTransitions.Inc()
}

// SetDevicesRegistered sets the registered devices gauge
func (r *Registry) SetDevicesRegistered(n int) {
	r.devicesRegistered.Set(float64(n))
}

// SetDevicesOnline sets the online devices gauge
func (r *Registry) SetDevicesOnline(n int) {
	r.devicesOnline.Set(float64(n))
}

// ObservePublishDuration records an MQTT publish duration
func (r *Registry) ObservePublishDuration(seconds float64) {
	r.publishDuration.Observe(seconds)
}
