package stream

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/vad-segmenter/internal/vad"
)

// Session is one active audio stream and its segmentation engine
type Session struct {
	ID         uint32
	Label      string
	SampleRate int
	StartTime  time.Time

	engine  *vad.Engine
	reorder *reorderBuffer
	logger  *slog.Logger
	manager *Manager

	lastActivity  time.Time
	pinned        bool
	packets       uint64
	lostPackets   uint64
	stalePackets  uint64
	bytesReceived uint64

	// feedMu keeps payloads from one session entering the engine in order
	feedMu sync.Mutex
	mu     sync.RWMutex
}

// SessionInfo represents session information for monitoring and APIs
type SessionInfo struct {
	StreamID      uint32          `json:"stream_id"`
	Label         string          `json:"label"`
	SampleRate    int             `json:"sample_rate"`
	StartTime     time.Time       `json:"start_time"`
	LastActivity  time.Time       `json:"last_activity"`
	Pinned        bool            `json:"pinned"`
	Duration      time.Duration   `json:"duration"`
	Packets       uint64          `json:"packets"`
	LostPackets   uint64          `json:"lost_packets"`
	StalePackets  uint64          `json:"stale_packets"`
	HeldPackets   int             `json:"held_packets"`
	BytesReceived uint64          `json:"bytes_received"`
	Engine        vad.EngineStats `json:"engine"`
}

// AddAudio accepts a sequenced audio packet. Duplicate and late packets are
// rejected with ErrStalePacket; gaps larger than the reorder window are
// counted as lost.
func (s *Session) AddAudio(sequence uint32, data []byte) error {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()

	s.mu.Lock()
	s.lastActivity = time.Now()
	s.packets++
	ready, lost, err := s.reorder.push(sequence, data)
	if err != nil {
		s.stalePackets++
	}
	s.lostPackets += uint64(lost)
	s.mu.Unlock()

	if err != nil {
		return err
	}

	if lost > 0 {
		s.manager.recorder.RecordPacketsLost(lost)
		s.logger.Debug("Packets lost",
			slog.Int("count", lost),
			slog.Uint64("sequence", uint64(sequence)))
	}

	for _, payload := range ready {
		if err := s.feed(payload); err != nil {
			return err
		}
	}

	return nil
}

// Write feeds unsequenced audio, as delivered by ordered transports
func (s *Session) Write(data []byte) error {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()

	s.mu.Lock()
	s.lastActivity = time.Now()
	s.packets++
	s.mu.Unlock()

	return s.feed(data)
}

// feed pushes one payload into the engine, skipping frames the classifier
// rejects so a single bad frame does not stall the stream
func (s *Session) feed(data []byte) error {
	s.mu.Lock()
	s.bytesReceived += uint64(len(data))
	s.mu.Unlock()

	err := s.engine.Feed(data)
	for err != nil {
		var frameErr *vad.FrameError
		if !errors.As(err, &frameErr) {
			return err
		}

		s.logger.Warn("Frame dropped",
			slog.Uint64("frame", frameErr.Index),
			slog.String("error", frameErr.Err.Error()))

		err = s.engine.Feed(nil)
	}

	return nil
}

// Touch refreshes the activity timestamp without feeding audio
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// Pin exempts the session from idle cleanup. Sessions owned by a local
// source, such as the microphone, are removed explicitly instead.
func (s *Session) Pin() {
	s.mu.Lock()
	s.pinned = true
	s.mu.Unlock()
}

// Pinned reports whether idle cleanup skips the session
func (s *Session) Pinned() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pinned
}

// LastActivity returns when the session last received data
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// Engine returns the session's segmentation engine
func (s *Session) Engine() *vad.Engine {
	return s.engine
}

// Info returns a snapshot of the session for monitoring
func (s *Session) Info() SessionInfo {
	engineStats := s.engine.Stats()

	s.mu.RLock()
	defer s.mu.RUnlock()

	return SessionInfo{
		StreamID:      s.ID,
		Label:         s.Label,
		SampleRate:    s.SampleRate,
		StartTime:     s.StartTime,
		LastActivity:  s.lastActivity,
		Pinned:        s.pinned,
		Duration:      time.Since(s.StartTime),
		Packets:       s.packets,
		LostPackets:   s.lostPackets,
		StalePackets:  s.stalePackets,
		HeldPackets:   s.reorder.held(),
		BytesReceived: s.bytesReceived,
		Engine:        engineStats,
	}
}
