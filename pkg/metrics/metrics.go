// Package metrics exposes Prometheus collectors for the streaming loop,
// the message channel and the capture device.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Streaming loop
	FramesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "framestream_frames_sent_total",
			Help: "Total number of frames sent to the processing service",
		},
	)

	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framestream_frames_dropped_total",
			Help: "Total number of frames dropped before a response",
		},
		[]string{"reason"}, // "read", "encode", "send", "channel_error", "timeout"
	)

	Responses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framestream_responses_total",
			Help: "Total number of responses received",
		},
		[]string{"result"}, // "drawn", "hidden", "discarded", "decode_error", "server_error"
	)

	RoundTrip = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "framestream_round_trip_seconds",
			Help:    "Time from frame send to processed response",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	InFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "framestream_in_flight",
			Help: "Outstanding frame requests (0 or 1)",
		},
	)

	SessionRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "framestream_session_running",
			Help: "1 while a capture session is active",
		},
	)

	Detections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framestream_detections_total",
			Help: "Detections received, by label",
		},
		[]string{"label"},
	)

	// Capture device
	CaptureAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framestream_capture_attempts_total",
			Help: "Device acquisition attempts",
		},
		[]string{"result"}, // "ok" or a capture.Kind value
	)

	// Message channel
	ChannelConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "framestream_channel_connected",
			Help: "1 while the message channel is connected",
		},
	)

	ChannelReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "framestream_channel_reconnects_total",
			Help: "Total number of channel reconnects",
		},
	)

	ChannelMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framestream_channel_messages_total",
			Help: "Channel messages by direction and type",
		},
		[]string{"direction", "type"},
	)

	ChannelLatency = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "framestream_channel_ping_seconds",
			Help: "Last measured ping round trip",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "framestream_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framestream_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Dashboard
	DashboardClients = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "framestream_dashboard_clients",
			Help: "Connected dashboard websocket clients by stream",
		},
		[]string{"stream"},
	)
)

// RecordSend records a sent frame.
func RecordSend() {
	FramesSent.Inc()
	InFlight.Set(1)
}

// RecordDrop records a frame that never got a response.
func RecordDrop(reason string) {
	FramesDropped.WithLabelValues(reason).Inc()
	InFlight.Set(0)
}

// RecordResponse records a response and, when rtt > 0, its round trip.
func RecordResponse(result string, rtt time.Duration) {
	Responses.WithLabelValues(result).Inc()
	if rtt > 0 {
		RoundTrip.Observe(rtt.Seconds())
	}
	InFlight.Set(0)
}

// RecordDetections counts detections by label.
func RecordDetections(labels []string) {
	for _, l := range labels {
		Detections.WithLabelValues(l).Inc()
	}
}

// SetSessionRunning updates the session gauge.
func SetSessionRunning(running bool) {
	SessionRunning.Set(boolToFloat(running))
	if !running {
		InFlight.Set(0)
	}
}

// SetChannelConnected updates the channel gauge.
func SetChannelConnected(connected bool) {
	ChannelConnected.Set(boolToFloat(connected))
}

// RecordChannelMessage counts one channel message.
func RecordChannelMessage(direction, msgType string) {
	ChannelMessages.WithLabelValues(direction, msgType).Inc()
}

// RecordCaptureAttempt counts one acquisition attempt. An empty kind is a success.
func RecordCaptureAttempt(kind string) {
	if kind == "" {
		kind = "ok"
	}
	CaptureAttempts.WithLabelValues(kind).Inc()
}

// RecordBreakerTransition records a circuit breaker state change.
func RecordBreakerTransition(name, from, to string, state float64) {
	CircuitBreakerState.WithLabelValues(name).Set(state)
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
