package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/vad-segmenter/internal/config"
	"github.com/skypro1111/vad-segmenter/internal/dispatch"
	"github.com/skypro1111/vad-segmenter/internal/metrics"
	"github.com/skypro1111/vad-segmenter/internal/stream"
)

// ServiceName is reported by /health and the root endpoint
const ServiceName = "vad-segmenter"

// Version is reported by /health and the root endpoint
const Version = "1.0.0"

// HTTPServer provides the monitoring API, Prometheus metrics and WebSocket ingest
type HTTPServer struct {
	server     *http.Server
	handler    http.Handler
	logger     *slog.Logger
	config     *config.Config
	streamMgr  *stream.Manager
	udpServer  *UDPServer // nil when UDP ingest is disabled
	dispatcher *dispatch.Dispatcher
	metrics    *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server. gatherer backs /metrics.
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config,
	streamMgr *stream.Manager, udpServer *UDPServer, dispatcher *dispatch.Dispatcher,
	m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	h := &HTTPServer{
		logger:     logger,
		config:     appConfig,
		streamMgr:  streamMgr,
		udpServer:  udpServer,
		dispatcher: dispatcher,
		metrics:    m,
		startTime:  time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux, gatherer)
	h.handler = mux

	// No read/write timeouts: WebSocket ingest connections are long-lived
	h.server = &http.Server{
		Addr:              net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port)),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux, gatherer prometheus.Gatherer) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	mux.HandleFunc("/streams", h.withMetrics("/streams", h.handleStreams))
	mux.HandleFunc("/streams/", h.withMetrics("/streams/{id}", h.handleStreamDetail))

	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// The upgrade needs the raw ResponseWriter, so no metrics wrapper
	mux.HandleFunc("/ws/audio", h.handleWebSocket)

	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, ww.statusCode, time.Since(startTime).Seconds())
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Handler returns the routed handler, for embedding or tests
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// Serve listens and serves until Stop is called. It returns nil after a
// graceful shutdown.
func (h *HTTPServer) Serve() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	components := map[string]any{
		"stream_manager": map[string]any{
			"status":         "running",
			"active_streams": h.streamMgr.GetActiveSessionCount(),
		},
		"dispatcher": map[string]any{
			"status":    "running",
			"in_flight": h.dispatcher.Stats().InFlight,
		},
	}

	if h.udpServer != nil {
		udpStats := h.udpServer.GetStatistics()
		components["udp_server"] = map[string]any{
			"status":            "running",
			"packets_received":  udpStats.PacketsReceived,
			"packets_processed": udpStats.PacketsProcessed,
			"parse_errors":      udpStats.ParseErrors,
			"queue_size":        udpStats.QueueSize,
		}
	}

	writeJSON(w, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]any{
			"name":    ServiceName,
			"version": Version,
		},
		"components": components,
	})
}

// handleStreams implements the /streams endpoint
func (h *HTTPServer) handleStreams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions := h.streamMgr.GetAllSessions()
	sessionInfos := make([]stream.SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		sessionInfos = append(sessionInfos, session.Info())
	}

	writeJSON(w, map[string]any{
		"total_streams": len(sessionInfos),
		"timestamp":     time.Now().UTC(),
		"streams":       sessionInfos,
	})
}

// handleStreamDetail implements the /streams/{stream_id} endpoint
func (h *HTTPServer) handleStreamDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	streamIDStr := r.URL.Path[len("/streams/"):]
	if streamIDStr == "" {
		http.Error(w, "Stream ID required", http.StatusBadRequest)
		return
	}

	streamID, err := strconv.ParseUint(streamIDStr, 10, 32)
	if err != nil {
		http.Error(w, "Invalid stream ID", http.StatusBadRequest)
		return
	}

	session, exists := h.streamMgr.GetSession(uint32(streamID))
	if !exists {
		http.Error(w, "Stream not found", http.StatusNotFound)
		return
	}

	writeJSON(w, session.Info())
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, map[string]any{
		"server": map[string]any{
			"enabled":                h.config.Server.Enabled,
			"udp_port":               h.config.Server.UDPPort,
			"bind_address":           h.config.Server.BindAddress,
			"buffer_size":            h.config.Server.BufferSize,
			"max_concurrent_streams": h.config.Server.MaxConcurrentStreams,
			"workers":                h.config.Server.Workers,
			"queue_size":             h.config.Server.QueueSize,
		},
		"audio": map[string]any{
			"sample_rate":       h.config.Audio.SampleRate,
			"frame_duration_ms": h.config.Audio.FrameDurationMs,
			"stream_timeout":    h.config.Audio.StreamTimeout,
			"reorder_window":    h.config.Audio.ReorderWindow,
		},
		"vad": map[string]any{
			"classifier":       h.config.VAD.Classifier,
			"energy_threshold": h.config.VAD.EnergyThreshold,
			"engine":           h.config.EngineConfig(),
		},
		"dispatch": map[string]any{
			"max_concurrent":   h.config.Dispatch.MaxConcurrent,
			"consumer_timeout": h.config.Dispatch.ConsumerTimeout,
		},
		"transcription": map[string]any{
			"enabled":        h.config.Transcription.Enabled,
			"endpoint":       h.config.Transcription.Endpoint,
			"timeout":        h.config.Transcription.Timeout,
			"max_retries":    h.config.Transcription.MaxRetries,
			"max_concurrent": h.config.Transcription.MaxConcurrent,
			"language":       h.config.Transcription.Language,
			// API key omitted
		},
		"sink": map[string]any{
			"enabled":   h.config.Sink.Enabled,
			"directory": h.config.Sink.Directory,
		},
		"logging": map[string]any{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	})
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]any{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"dispatch":  h.dispatcher.Stats(),
		"streams": map[string]any{
			"active_count": h.streamMgr.GetActiveSessionCount(),
		},
	}

	if h.udpServer != nil {
		stats["udp"] = h.udpServer.GetStatistics()
	}

	writeJSON(w, stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, map[string]any{
		"service": ServiceName,
		"version": Version,
		"endpoints": map[string]any{
			"GET /":                                   "API documentation",
			"GET /health":                             "Service health check",
			"GET /streams":                            "List all active streams",
			"GET /streams/{stream_id}":                "Get detailed stream information",
			"GET /config":                             "Get service configuration",
			"GET /stats":                              "Get service statistics",
			"GET /metrics":                            "Prometheus metrics",
			"GET /ws/audio?sample_rate=&label= (WS)": "Stream PCM16 audio as binary messages",
		},
		"timestamp": time.Now().UTC(),
	})
}
