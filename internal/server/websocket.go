package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/coder/websocket"

	"github.com/skypro1111/vad-segmenter/internal/stream"
)

// maxMessageSize bounds one binary PCM message
const maxMessageSize = 1 << 20

// handleWebSocket turns one connection into one stream. Binary messages are
// PCM16 chunks; the stream is removed when the connection ends.
func (h *HTTPServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	sampleRate := 0
	if raw := query.Get("sample_rate"); raw != "" {
		rate, err := strconv.Atoi(raw)
		if err != nil || rate <= 0 {
			http.Error(w, "Invalid sample_rate", http.StatusBadRequest)
			return
		}
		sampleRate = rate
	}

	streamID := h.streamMgr.AllocateID()
	session, err := h.streamMgr.CreateSession(streamID, query.Get("label"), sampleRate)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, stream.ErrTooManyStreams) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}
	defer h.streamMgr.RemoveSession(streamID)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("WebSocket accept error", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxMessageSize)

	h.metrics.WSConnected(1)
	defer h.metrics.WSConnected(-1)

	logger := h.logger.With(
		slog.Uint64("stream_id", uint64(streamID)),
		slog.String("label", session.Label),
		slog.String("remote", r.RemoteAddr),
	)
	logger.Info("WebSocket stream connected", slog.Int("sample_rate", session.SampleRate))

	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				logger.Info("WebSocket stream closed")
			default:
				logger.Debug("WebSocket read error", slog.String("error", err.Error()))
			}
			return
		}

		if typ != websocket.MessageBinary {
			conn.Close(websocket.StatusUnsupportedData, "binary PCM16 expected")
			return
		}

		if err := session.Write(data); err != nil {
			logger.Error("Failed to feed audio", slog.String("error", err.Error()))
			conn.Close(websocket.StatusInternalError, "stream closed")
			return
		}
	}
}
