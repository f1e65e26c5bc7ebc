package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/skypro1111/vad-segmenter/internal/audio"
	"github.com/skypro1111/vad-segmenter/internal/config"
	"github.com/skypro1111/vad-segmenter/internal/dispatch"
	"github.com/skypro1111/vad-segmenter/internal/metrics"
	"github.com/skypro1111/vad-segmenter/internal/protocol"
	"github.com/skypro1111/vad-segmenter/internal/stream"
	"github.com/skypro1111/vad-segmenter/internal/vad"
)

type collector struct {
	mu         sync.Mutex
	utterances []vad.Utterance
}

func (c *collector) Dispatch(u vad.Utterance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.utterances = append(c.utterances, u)
}

func (c *collector) snapshot() []vad.Utterance {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]vad.Utterance(nil), c.utterances...)
}

type testStack struct {
	cfg        *config.Config
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	manager    *stream.Manager
	dispatcher *dispatch.Dispatcher
	sink       *collector
	logger     *slog.Logger
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	cfg := config.Default()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)
	sink := &collector{}

	manager, err := stream.NewManager(logger, stream.ManagerConfig{
		VAD: cfg.EngineConfig(),
		Classifier: func() (vad.Classifier, error) {
			return vad.NewEnergyClassifier(0.1)
		},
		Timeout:       time.Minute,
		MaxStreams:    4,
		ReorderWindow: 4,
	}, sink, m)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	t.Cleanup(manager.Stop)

	dispatcher := dispatch.New(dispatch.Config{}, logger, m)
	t.Cleanup(func() { dispatcher.Close(context.Background()) })

	return &testStack{
		cfg:        &cfg,
		registry:   registry,
		metrics:    m,
		manager:    manager,
		dispatcher: dispatcher,
		sink:       sink,
		logger:     logger,
	}
}

func (s *testStack) httpServer(udp *UDPServer) *HTTPServer {
	return NewHTTPServer(s.cfg.HTTP, s.logger, s.cfg, s.manager, udp, s.dispatcher, s.metrics, s.registry)
}

// speechFrames returns 10ms frames at 16kHz: loud ones then silent ones
func speechFrames(loud, silent int) [][]byte {
	samples := make([]int16, 160)
	for i := range samples {
		samples[i] = 8000
	}
	loudFrame := audio.SamplesToBytes(samples)

	frames := make([][]byte, 0, loud+silent)
	for i := 0; i < loud; i++ {
		frames = append(frames, loudFrame)
	}
	for i := 0; i < silent; i++ {
		frames = append(frames, make([]byte, 320))
	}
	return frames
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func getJSON(t *testing.T, h http.Handler, path string, expectedStatus int) map[string]any {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != expectedStatus {
		t.Fatalf("GET %s: expected status %d, got %d (%s)", path, expectedStatus, rec.Code, rec.Body.String())
	}
	if expectedStatus != http.StatusOK {
		return nil
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("GET %s: invalid JSON: %v", path, err)
	}
	return body
}

func TestHTTPEndpoints(t *testing.T) {
	stack := newTestStack(t)
	stack.manager.CreateSession(42, "desk", 0)
	h := stack.httpServer(nil).Handler()

	health := getJSON(t, h, "/health", http.StatusOK)
	if health["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", health["status"])
	}

	streams := getJSON(t, h, "/streams", http.StatusOK)
	if streams["total_streams"] != float64(1) {
		t.Errorf("Expected 1 stream, got %v", streams["total_streams"])
	}

	detail := getJSON(t, h, "/streams/42", http.StatusOK)
	if detail["label"] != "desk" {
		t.Errorf("Expected label desk, got %v", detail["label"])
	}

	getJSON(t, h, "/streams/7", http.StatusNotFound)
	getJSON(t, h, "/streams/abc", http.StatusBadRequest)
	getJSON(t, h, "/nope", http.StatusNotFound)

	stats := getJSON(t, h, "/stats", http.StatusOK)
	if _, ok := stats["dispatch"]; !ok {
		t.Error("Expected dispatch section in stats")
	}
	if _, ok := stats["udp"]; ok {
		t.Error("Expected no udp section without a UDP server")
	}

	root := getJSON(t, h, "/", http.StatusOK)
	if root["service"] != ServiceName {
		t.Errorf("Expected service %s, got %v", ServiceName, root["service"])
	}
}

func TestHTTPConfigOmitsAPIKey(t *testing.T) {
	stack := newTestStack(t)
	stack.cfg.Transcription.APIKey = "secret-key"
	h := stack.httpServer(nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret-key") {
		t.Error("Expected API key to be omitted from /config")
	}
	if !strings.Contains(rec.Body.String(), "voice_threshold") {
		t.Error("Expected engine settings in /config")
	}
}

func TestHTTPMethodNotAllowed(t *testing.T) {
	stack := newTestStack(t)
	h := stack.httpServer(nil).Handler()

	for _, path := range []string{"/health", "/streams", "/streams/1", "/config", "/stats", "/"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, path, nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("Expected status 405, got %d", rec.Code)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	stack := newTestStack(t)
	h := stack.httpServer(nil).Handler()

	// One request so the HTTP counters have a sample
	getJSON(t, h, "/health", http.StatusOK)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "vad_http_requests_total") {
		t.Error("Expected vad_http_requests_total in /metrics output")
	}
}

func TestWebSocketIngest(t *testing.T) {
	stack := newTestStack(t)
	srv := httptest.NewServer(stack.httpServer(nil).Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/audio?sample_rate=16000&label=browser"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}

	waitFor(t, "session", func() bool { return stack.manager.GetActiveSessionCount() == 1 })

	for _, frame := range speechFrames(40, 40) {
		if err := conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
			t.Fatalf("Failed to write: %v", err)
		}
	}

	waitFor(t, "utterance", func() bool { return len(stack.sink.snapshot()) == 1 })

	u := stack.sink.snapshot()[0]
	if u.Source != "browser" {
		t.Errorf("Expected source browser, got %s", u.Source)
	}
	if u.SampleRate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", u.SampleRate)
	}

	conn.Close(websocket.StatusNormalClosure, "")
	waitFor(t, "session removal", func() bool { return stack.manager.GetActiveSessionCount() == 0 })
}

func TestWebSocketRejectsBadSampleRate(t *testing.T) {
	stack := newTestStack(t)
	h := stack.httpServer(nil).Handler()

	for _, query := range []string{"sample_rate=abc", "sample_rate=-1", "sample_rate=44100"} {
		t.Run(query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws/audio?"+query, nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", rec.Code)
			}
		})
	}

	if stack.manager.GetActiveSessionCount() != 0 {
		t.Errorf("Expected no sessions, got %d", stack.manager.GetActiveSessionCount())
	}
}

func TestUDPServer(t *testing.T) {
	stack := newTestStack(t)

	udp := NewUDPServer(&config.ServerConfig{
		BindAddress: "127.0.0.1",
		UDPPort:     0,
		BufferSize:  65536,
		Workers:     2,
		QueueSize:   256,
	}, stack.logger, stack.manager, stack.metrics)
	if err := udp.Start(); err != nil {
		t.Fatalf("Failed to start UDP server: %v", err)
	}
	defer udp.Stop()

	conn, err := net.Dial("udp", udp.Addr().String())
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer conn.Close()

	open, _ := protocol.EncodeOpen(7, 16000, "phone")
	conn.Write(open)
	waitFor(t, "open", func() bool {
		_, ok := stack.manager.GetSession(7)
		return ok
	})

	for seq, frame := range speechFrames(40, 40) {
		packet, err := protocol.EncodeAudio(7, uint32(seq), frame)
		if err != nil {
			t.Fatalf("Failed to encode audio: %v", err)
		}
		conn.Write(packet)
	}

	// Garbage is counted and ignored
	conn.Write([]byte{0xFF, 0x00})

	waitFor(t, "utterance", func() bool { return len(stack.sink.snapshot()) == 1 })
	if src := stack.sink.snapshot()[0].Source; src != "phone" {
		t.Errorf("Expected source phone, got %s", src)
	}

	conn.Write(protocol.EncodeClose(7))
	waitFor(t, "close", func() bool {
		_, ok := stack.manager.GetSession(7)
		return !ok
	})

	stats := udp.GetStatistics()
	if stats.ParseErrors != 1 {
		t.Errorf("Expected 1 parse error, got %d", stats.ParseErrors)
	}
	if stats.PacketsProcessed != 82 {
		t.Errorf("Expected 82 processed packets, got %d", stats.PacketsProcessed)
	}
	if stats.Workers != 2 {
		t.Errorf("Expected 2 workers, got %d", stats.Workers)
	}

	// UDP stats show up in /stats once a server is attached
	body := getJSON(t, stack.httpServer(udp).Handler(), "/stats", http.StatusOK)
	if _, ok := body["udp"]; !ok {
		t.Error("Expected udp section in stats")
	}
}

func TestUDPServerStopTwice(t *testing.T) {
	stack := newTestStack(t)

	udp := NewUDPServer(&config.ServerConfig{
		BindAddress: "127.0.0.1",
		BufferSize:  2048,
		Workers:     2,
		QueueSize:   8,
	}, stack.logger, stack.manager, stack.metrics)
	if err := udp.Start(); err != nil {
		t.Fatalf("Failed to start UDP server: %v", err)
	}

	if err := udp.Stop(); err != nil {
		t.Fatalf("First Stop failed: %v", err)
	}
	if err := udp.Stop(); err != nil {
		t.Errorf("Expected second Stop to succeed, got %v", err)
	}
}

func TestHealthServer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hs := NewHealthServer("127.0.0.1", 0, logger)
	if err := hs.Listen(); err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- hs.Serve() }()

	conn, err := grpc.NewClient(hs.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := healthgrpc.NewHealthClient(conn)
	for _, service := range []string{"", ServiceName} {
		resp, err := client.Check(ctx, &healthgrpc.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("Health check %q failed: %v", service, err)
		}
		if resp.GetStatus() != healthgrpc.HealthCheckResponse_SERVING {
			t.Errorf("Expected SERVING for %q, got %v", service, resp.GetStatus())
		}
	}

	hs.Stop(time.Second)
	if err := <-done; err != nil {
		t.Errorf("Expected clean Serve return, got %v", err)
	}
}
