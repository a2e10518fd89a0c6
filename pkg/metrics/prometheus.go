package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for a service
type Metrics struct {
	registry *prometheus.Registry

	// HTTP Request Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Call Metrics
	callsTotal       *prometheus.CounterVec
	callsActive      prometheus.Gauge
	callDuration     prometheus.Histogram
	callsFailedTotal *prometheus.CounterVec

	// Notification Metrics
	notificationsProcessedTotal *prometheus.CounterVec
	notificationsDroppedTotal   *prometheus.CounterVec
	notificationsPushedTotal    *prometheus.CounterVec

	// Event Log Metrics
	eventsPublishedTotal *prometheus.CounterVec
	eventsConsumedTotal  *prometheus.CounterVec
	eventLogErrorsTotal  *prometheus.CounterVec

	// WebSocket Metrics
	websocketConnections   prometheus.Gauge
	websocketMessagesTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics on a private registry
func NewMetrics(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	labels := prometheus.Labels{"service": serviceName}

	return &Metrics{
		registry: registry,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: labels,
			},
		),

		callsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "calls_total",
				Help:        "Total number of calls by type and terminal status",
				ConstLabels: labels,
			},
			[]string{"type", "status"},
		),
		callsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "calls_active",
				Help:        "Number of currently connected calls",
				ConstLabels: labels,
			},
		),
		callDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:        "call_duration_seconds",
				Help:        "Duration of completed calls in seconds",
				ConstLabels: labels,
				Buckets:     []float64{10, 30, 60, 180, 600, 1800, 3600},
			},
		),
		callsFailedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "calls_failed_total",
				Help:        "Total number of failed call operations",
				ConstLabels: labels,
			},
			[]string{"operation", "reason"},
		),

		notificationsProcessedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "notifications_processed_total",
				Help:        "Total number of notifications created from event log messages",
				ConstLabels: labels,
			},
			[]string{"type"},
		),
		notificationsDroppedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "notifications_dropped_total",
				Help:        "Total number of event log messages dropped during classification",
				ConstLabels: labels,
			},
			[]string{"topic", "reason"},
		),
		notificationsPushedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "notifications_pushed_total",
				Help:        "Total number of notifications pushed to delivery channels",
				ConstLabels: labels,
			},
			[]string{"channel"},
		),

		eventsPublishedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "eventlog_published_total",
				Help:        "Total number of events published to the event log",
				ConstLabels: labels,
			},
			[]string{"topic"},
		),
		eventsConsumedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "eventlog_consumed_total",
				Help:        "Total number of events consumed from the event log",
				ConstLabels: labels,
			},
			[]string{"topic"},
		),
		eventLogErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "eventlog_errors_total",
				Help:        "Total number of event log errors",
				ConstLabels: labels,
			},
			[]string{"topic", "operation"},
		),

		websocketConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of live delivery sessions",
				ConstLabels: labels,
			},
		),
		websocketMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_messages_total",
				Help:        "Total number of WebSocket messages by direction and event",
				ConstLabels: labels,
			},
			[]string{"direction", "event"},
		),
	}
}

// GetRegistry returns the private Prometheus registry for this service
func (m *Metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request with its outcome
func (m *Metrics) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the in-flight request gauge
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the in-flight request gauge
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Dec()
}

// RecordCall records a call reaching a terminal status
func (m *Metrics) RecordCall(callType, status string) {
	m.callsTotal.WithLabelValues(callType, status).Inc()
}

// RecordCallConnected tracks a call becoming connected
func (m *Metrics) RecordCallConnected() {
	m.callsActive.Inc()
}

// RecordCallFinished tracks a connected call ending and observes its duration
func (m *Metrics) RecordCallFinished(duration time.Duration) {
	m.callsActive.Dec()
	m.callDuration.Observe(duration.Seconds())
}

// RecordCallFailure records a failed call operation
func (m *Metrics) RecordCallFailure(operation, reason string) {
	m.callsFailedTotal.WithLabelValues(operation, reason).Inc()
}

// RecordNotificationProcessed records a notification created from an event
func (m *Metrics) RecordNotificationProcessed(notificationType string) {
	m.notificationsProcessedTotal.WithLabelValues(notificationType).Inc()
}

// RecordNotificationDropped records an event dropped during classification
func (m *Metrics) RecordNotificationDropped(topic, reason string) {
	m.notificationsDroppedTotal.WithLabelValues(topic, reason).Inc()
}

// RecordNotificationPushed records a notification pushed to a delivery channel
func (m *Metrics) RecordNotificationPushed(channel string) {
	m.notificationsPushedTotal.WithLabelValues(channel).Inc()
}

// RecordEventPublished records an event published to the log
func (m *Metrics) RecordEventPublished(topic string) {
	m.eventsPublishedTotal.WithLabelValues(topic).Inc()
}

// RecordEventConsumed records an event consumed from the log
func (m *Metrics) RecordEventConsumed(topic string) {
	m.eventsConsumedTotal.WithLabelValues(topic).Inc()
}

// RecordEventLogError records an event log failure
func (m *Metrics) RecordEventLogError(topic, operation string) {
	m.eventLogErrorsTotal.WithLabelValues(topic, operation).Inc()
}

// IncrementWebSocketConnections increments the live session gauge
func (m *Metrics) IncrementWebSocketConnections() {
	m.websocketConnections.Inc()
}

// DecrementWebSocketConnections decrements the live session gauge
func (m *Metrics) DecrementWebSocketConnections() {
	m.websocketConnections.Dec()
}

// RecordWebSocketMessage records a WebSocket message
func (m *Metrics) RecordWebSocketMessage(direction, event string) {
	m.websocketMessagesTotal.WithLabelValues(direction, event).Inc()
}
