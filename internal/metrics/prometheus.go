package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the caption service
type Metrics struct {
	// Command metrics
	CommandsReceived *prometheus.CounterVec
	CommandErrors    *prometheus.CounterVec

	// Session metrics
	ActiveSessions    prometheus.Gauge
	SessionsCreated   prometheus.Counter
	SessionsPreempted prometheus.Counter
	SessionsCompleted prometheus.Counter
	SessionsCancelled prometheus.Counter
	SessionDuration   prometheus.Histogram

	// Audio chunk metrics
	ChunksProcessed    prometheus.Counter
	ChunkSize          prometheus.Histogram
	AudioBytesReceived prometheus.Counter

	// Engine invocation metrics
	EngineInvocations prometheus.Counter
	EngineFailures    *prometheus.CounterVec
	EngineDuration    prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Command metrics
		CommandsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "asr_commands_received_total",
			Help: "Total number of inbound commands by type",
		}, []string{"type"}),
		CommandErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "asr_command_errors_total",
			Help: "Total number of commands answered with an error ack",
		}, []string{"type"}),

		// Session metrics
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "asr_active_sessions",
			Help: "Current number of registered transcription sessions",
		}),
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asr_sessions_created_total",
			Help: "Total number of transcription sessions created",
		}),
		SessionsPreempted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asr_sessions_preempted_total",
			Help: "Total number of sessions cancelled by a newer session",
		}),
		SessionsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asr_sessions_completed_total",
			Help: "Total number of sessions finalized normally",
		}),
		SessionsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asr_sessions_cancelled_total",
			Help: "Total number of sessions torn down by cancel or cleanup",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "asr_session_duration_seconds",
			Help:    "Wall-clock lifetime of transcription sessions",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),

		// Audio chunk metrics
		ChunksProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asr_chunks_processed_total",
			Help: "Total number of audio chunks processed",
		}),
		ChunkSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "asr_chunk_size_bytes",
			Help:    "Size of received audio chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),
		AudioBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asr_audio_bytes_received_total",
			Help: "Total audio payload bytes received across all sessions",
		}),

		// Engine invocation metrics
		EngineInvocations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asr_engine_invocations_total",
			Help: "Total number of recognition engine invocations",
		}),
		EngineFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "asr_engine_failures_total",
			Help: "Total number of failed engine invocations by kind",
		}, []string{"kind"}),
		EngineDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "asr_engine_invocation_duration_seconds",
			Help:    "Duration of recognition engine invocations",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "asr_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "asr_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "asr_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordCommand increments the received-command counter for a command type
func (m *Metrics) RecordCommand(commandType string) {
	m.CommandsReceived.WithLabelValues(commandType).Inc()
}

// RecordCommandError increments the error-ack counter for a command type
func (m *Metrics) RecordCommandError(commandType string) {
	m.CommandErrors.WithLabelValues(commandType).Inc()
}

// SetActiveSessions sets the current number of registered sessions
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionCreated increments the sessions created counter
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreated.Inc()
}

// RecordSessionPreempted increments the preemption counter
func (m *Metrics) RecordSessionPreempted() {
	m.SessionsPreempted.Inc()
}

// RecordSessionCompleted increments the completion counter and records duration
func (m *Metrics) RecordSessionCompleted(durationSeconds float64) {
	m.SessionsCompleted.Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSessionCancelled increments the cancellation counter
func (m *Metrics) RecordSessionCancelled() {
	m.SessionsCancelled.Inc()
}

// RecordChunk records one processed audio chunk
func (m *Metrics) RecordChunk(sizeBytes int) {
	m.ChunksProcessed.Inc()
	m.ChunkSize.Observe(float64(sizeBytes))
	m.AudioBytesReceived.Add(float64(sizeBytes))
}

// RecordEngineInvocation records one engine invocation and its duration
func (m *Metrics) RecordEngineInvocation(durationSeconds float64) {
	m.EngineInvocations.Inc()
	m.EngineDuration.Observe(durationSeconds)
}

// RecordEngineFailure increments the engine failure counter for a failure kind
func (m *Metrics) RecordEngineFailure(kind string) {
	m.EngineFailures.WithLabelValues(kind).Inc()
}

// RecordHTTPRequest records an HTTP request with its duration
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
