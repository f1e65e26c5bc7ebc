package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the segmenter service
type Metrics struct {
	// Ingest metrics
	PacketsReceived  prometheus.Counter
	PacketsProcessed prometheus.Counter
	PacketsDropped   prometheus.Counter
	ParseErrors      prometheus.Counter
	QueueSize        prometheus.Gauge
	WSConnections    prometheus.Gauge

	// Stream metrics
	ActiveStreams    prometheus.Gauge
	StreamsCreated   prometheus.Counter
	StreamsDestroyed prometheus.Counter
	StreamDuration   prometheus.Histogram
	PacketsLost      prometheus.Counter

	// VAD metrics
	FramesProcessed     prometheus.Counter
	SpeechFrames        prometheus.Counter
	ClassifierErrors    prometheus.Counter
	FrameProcessingTime prometheus.Histogram

	// Utterance metrics
	UtterancesEmitted prometheus.Counter
	UtteranceDuration prometheus.Histogram
	UtteranceSize     prometheus.Histogram

	// Dispatch metrics
	Deliveries       *prometheus.CounterVec
	DeliveryDuration *prometheus.HistogramVec
	DeliveryInFlight prometheus.Gauge

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Ingest metrics
		PacketsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "vad_packets_received_total",
			Help: "Total number of UDP packets received",
		}),
		PacketsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "vad_packets_processed_total",
			Help: "Total number of UDP packets successfully processed",
		}),
		PacketsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "vad_packets_dropped_total",
			Help: "Total number of UDP packets dropped because a worker queue was full",
		}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "vad_parse_errors_total",
			Help: "Total number of packet parsing errors",
		}),
		QueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vad_packet_queue_size",
			Help: "Current number of packets waiting in worker queues",
		}),
		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vad_websocket_connections",
			Help: "Current number of WebSocket audio connections",
		}),

		// Stream metrics
		ActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vad_active_streams",
			Help: "Current number of active audio streams",
		}),
		StreamsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "vad_streams_created_total",
			Help: "Total number of streams created",
		}),
		StreamsDestroyed: factory.NewCounter(prometheus.CounterOpts{
			Name: "vad_streams_destroyed_total",
			Help: "Total number of streams destroyed",
		}),
		StreamDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vad_stream_duration_seconds",
			Help:    "Duration of audio streams in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),
		PacketsLost: factory.NewCounter(prometheus.CounterOpts{
			Name: "vad_packets_lost_total",
			Help: "Total number of audio packets missing from sequence numbering",
		}),

		// VAD metrics
		FramesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "vad_frames_processed_total",
			Help: "Total number of frames classified",
		}),
		SpeechFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "vad_speech_frames_total",
			Help: "Total number of frames classified as speech",
		}),
		ClassifierErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "vad_classifier_errors_total",
			Help: "Total number of frames the classifier failed on",
		}),
		FrameProcessingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vad_frame_processing_duration_seconds",
			Help:    "Time spent classifying and evaluating one frame",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 12), // 10us to ~20ms
		}),

		// Utterance metrics
		UtterancesEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "vad_utterances_total",
			Help: "Total number of utterances emitted",
		}),
		UtteranceDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vad_utterance_duration_seconds",
			Help:    "Duration of emitted utterances",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 9), // 0.25s to ~1 minute
		}),
		UtteranceSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vad_utterance_size_bytes",
			Help:    "Size of emitted utterances in PCM bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),

		// Dispatch metrics
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vad_deliveries_total",
			Help: "Total number of consumer calls by outcome",
		}, []string{"consumer", "result"}),
		DeliveryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vad_delivery_duration_seconds",
			Help:    "Duration of consumer calls",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}, []string{"consumer"}),
		DeliveryInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vad_deliveries_in_flight",
			Help: "Consumer calls currently running",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vad_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vad_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordPacketReceived increments the packets received counter
func (m *Metrics) RecordPacketReceived() {
	m.PacketsReceived.Inc()
}

// RecordPacketProcessed increments the packets processed counter
func (m *Metrics) RecordPacketProcessed() {
	m.PacketsProcessed.Inc()
}

// RecordPacketDropped increments the dropped packets counter
func (m *Metrics) RecordPacketDropped() {
	m.PacketsDropped.Inc()
}

// RecordParseError increments the parse errors counter
func (m *Metrics) RecordParseError() {
	m.ParseErrors.Inc()
}

// SetQueueSize sets the current queue size
func (m *Metrics) SetQueueSize(size int) {
	m.QueueSize.Set(float64(size))
}

// WSConnected tracks a WebSocket connection opening (delta 1) or closing (delta -1)
func (m *Metrics) WSConnected(delta int) {
	m.WSConnections.Add(float64(delta))
}

// SetActiveStreams sets the current number of active streams
func (m *Metrics) SetActiveStreams(count int) {
	m.ActiveStreams.Set(float64(count))
}

// RecordStreamCreated increments the streams created counter
func (m *Metrics) RecordStreamCreated() {
	m.StreamsCreated.Inc()
}

// RecordStreamDestroyed increments the streams destroyed counter and records duration
func (m *Metrics) RecordStreamDestroyed(durationSeconds float64) {
	m.StreamsDestroyed.Inc()
	m.StreamDuration.Observe(durationSeconds)
}

// RecordPacketsLost adds n to the lost packets counter
func (m *Metrics) RecordPacketsLost(n int) {
	m.PacketsLost.Add(float64(n))
}

// RecordFrame records one classified frame
func (m *Metrics) RecordFrame(speech bool, took time.Duration) {
	m.FramesProcessed.Inc()
	if speech {
		m.SpeechFrames.Inc()
	}
	m.FrameProcessingTime.Observe(took.Seconds())
}

// RecordClassifierError increments the classifier errors counter
func (m *Metrics) RecordClassifierError() {
	m.ClassifierErrors.Inc()
}

// RecordUtterance records an emitted utterance
func (m *Metrics) RecordUtterance(seconds float64, bytes int) {
	m.UtterancesEmitted.Inc()
	m.UtteranceDuration.Observe(seconds)
	m.UtteranceSize.Observe(float64(bytes))
}

// RecordDispatch records one consumer call
func (m *Metrics) RecordDispatch(consumer string, ok bool, took time.Duration) {
	result := "success"
	if !ok {
		result = "failure"
	}
	m.Deliveries.WithLabelValues(consumer, result).Inc()
	m.DeliveryDuration.WithLabelValues(consumer).Observe(took.Seconds())
}

// SetInFlight sets the number of running consumer calls
func (m *Metrics) SetInFlight(n int) {
	m.DeliveryInFlight.Set(float64(n))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
