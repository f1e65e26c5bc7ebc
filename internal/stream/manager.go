package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skypro1111/vad-segmenter/internal/vad"
)

// ErrTooManyStreams is returned when MaxStreams sessions are already active
var ErrTooManyStreams = errors.New("too many concurrent streams")

// ClassifierFactory builds a fresh classifier for each new session
type ClassifierFactory func() (vad.Classifier, error)

// Recorder collects stream lifecycle measurements alongside engine metrics
type Recorder interface {
	vad.Recorder
	RecordStreamCreated()
	RecordStreamDestroyed(durationSeconds float64)
	SetActiveStreams(count int)
	RecordPacketsLost(n int)
}

type nopRecorder struct{}

func (nopRecorder) RecordFrame(bool, time.Duration) {}
func (nopRecorder) RecordClassifierError()          {}
func (nopRecorder) RecordUtterance(float64, int)    {}
func (nopRecorder) RecordStreamCreated()            {}
func (nopRecorder) RecordStreamDestroyed(float64)   {}
func (nopRecorder) SetActiveStreams(int)            {}
func (nopRecorder) RecordPacketsLost(int)           {}

// ManagerConfig contains configuration for the stream manager
type ManagerConfig struct {
	VAD             vad.Config
	Classifier      ClassifierFactory
	Timeout         time.Duration // Inactivity before a session is removed
	MaxStreams      int
	ReorderWindow   int
	CleanupInterval time.Duration // Defaults to 30s
}

// Manager manages all active stream sessions
type Manager struct {
	sessions map[uint32]*Session
	mu       sync.RWMutex
	logger   *slog.Logger
	config   ManagerConfig
	sink     vad.Sink
	recorder Recorder

	// Identifiers handed out to transports without their own stream ids
	nextID atomic.Uint32

	// Cleanup management
	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// NewManager creates a stream manager whose engines deliver utterances to sink
func NewManager(logger *slog.Logger, config ManagerConfig, sink vad.Sink, recorder Recorder) (*Manager, error) {
	if err := config.VAD.Validate(); err != nil {
		return nil, fmt.Errorf("invalid vad config: %w", err)
	}

	if config.Classifier == nil {
		return nil, fmt.Errorf("classifier factory is required")
	}

	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}

	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	if config.MaxStreams <= 0 {
		config.MaxStreams = 1000
	}

	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 30 * time.Second
	}

	if logger == nil {
		logger = slog.Default()
	}

	if recorder == nil {
		recorder = nopRecorder{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	mgr := &Manager{
		sessions: make(map[uint32]*Session),
		logger:   logger,
		config:   config,
		sink:     sink,
		recorder: recorder,
		ctx:      ctx,
		cancel:   cancel,
		cleanup:  make(chan struct{}),
	}
	// Internally allocated ids live in the upper half of the id space
	mgr.nextID.Store(1 << 31)

	go mgr.startCleanupRoutine()

	return mgr, nil
}

// AllocateID returns a stream id for a transport that does not carry one
func (m *Manager) AllocateID() uint32 {
	return m.nextID.Add(1)
}

// CreateSession opens a session with its own engine. A sampleRate of zero
// selects the configured default. Opening an existing stream returns it.
func (m *Manager) CreateSession(streamID uint32, label string, sampleRate int) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, exists := m.sessions[streamID]; exists {
		m.logger.Warn("Session already exists",
			slog.Uint64("stream_id", uint64(streamID)),
			slog.String("label", existing.Label),
			slog.String("new_label", label),
		)
		existing.Touch()
		return existing, nil
	}

	if len(m.sessions) >= m.config.MaxStreams {
		return nil, fmt.Errorf("%w: limit %d", ErrTooManyStreams, m.config.MaxStreams)
	}

	if label == "" {
		label = fmt.Sprintf("stream-%d", streamID)
	}

	cfg := m.config.VAD
	if sampleRate != 0 {
		cfg.SampleRate = sampleRate
	}

	classifier, err := m.config.Classifier()
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier: %w", err)
	}

	logger := m.logger.With(
		slog.Uint64("stream_id", uint64(streamID)),
		slog.String("label", label),
	)

	engine, err := vad.NewEngine(cfg, classifier, m.sink,
		vad.WithLogger(logger),
		vad.WithSource(label),
		vad.WithRecorder(m.recorder),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine for stream %d: %w", streamID, err)
	}

	now := time.Now()
	session := &Session{
		ID:           streamID,
		Label:        label,
		SampleRate:   cfg.SampleRate,
		StartTime:    now,
		lastActivity: now,
		engine:       engine,
		reorder:      newReorderBuffer(m.config.ReorderWindow),
		logger:       logger,
		manager:      m,
	}

	m.sessions[streamID] = session
	m.recorder.RecordStreamCreated()
	m.recorder.SetActiveStreams(len(m.sessions))

	m.logger.Info("Created new stream session",
		slog.Uint64("stream_id", uint64(streamID)),
		slog.String("label", label),
		slog.Int("sample_rate", cfg.SampleRate),
	)

	return session, nil
}

// GetSession retrieves an existing stream session
func (m *Manager) GetSession(streamID uint32) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[streamID]
	return session, exists
}

// GetActiveSessionCount returns the number of currently active sessions
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// GetAllSessions returns a snapshot of all active sessions (for monitoring)
func (m *Manager) GetAllSessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}

	return sessions
}

// RemoveSession closes a session's engine and forgets it. An utterance still
// being recorded is discarded.
func (m *Manager) RemoveSession(streamID uint32) bool {
	m.mu.Lock()
	session, exists := m.sessions[streamID]
	if exists {
		delete(m.sessions, streamID)
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	if !exists {
		return false
	}

	m.closeSession(session)
	m.recorder.SetActiveStreams(remaining)

	return true
}

func (m *Manager) closeSession(session *Session) {
	// Wait for a feed in progress so the engine is not closed mid-payload
	session.feedMu.Lock()
	if err := session.engine.Close(); err != nil {
		m.logger.Warn("Error closing engine",
			slog.Uint64("stream_id", uint64(session.ID)),
			slog.String("error", err.Error()))
	}
	session.feedMu.Unlock()

	info := session.Info()
	m.recorder.RecordStreamDestroyed(info.Duration.Seconds())

	m.logger.Info("Stream session removed",
		slog.Uint64("stream_id", uint64(session.ID)),
		slog.String("label", session.Label),
		slog.Duration("duration", info.Duration),
		slog.Uint64("packets", info.Packets),
		slog.Uint64("lost_packets", info.LostPackets),
		slog.Uint64("utterances", info.Engine.Utterances),
	)
}

// Stop closes every session and stops the cleanup routine
func (m *Manager) Stop() {
	m.logger.Info("Stopping stream manager...")

	m.cancel()
	<-m.cleanup

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, session := range m.sessions {
		sessions = append(sessions, session)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, session := range sessions {
		m.closeSession(session)
	}
	m.recorder.SetActiveStreams(0)

	m.logger.Info("Stream manager stopped",
		slog.Int("closed_sessions", len(sessions)),
	)
}

// startCleanupRoutine runs in a separate goroutine to clean up expired sessions
func (m *Manager) startCleanupRoutine() {
	defer close(m.cleanup)

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	m.logger.Info("Stream cleanup routine started",
		slog.Duration("timeout", m.config.Timeout),
		slog.Duration("check_interval", m.config.CleanupInterval),
	)

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("Stream cleanup routine stopping")
			return

		case <-ticker.C:
			m.cleanupExpiredSessions()
		}
	}
}

// cleanupExpiredSessions removes unpinned sessions that have been inactive for too long
func (m *Manager) cleanupExpiredSessions() {
	now := time.Now()
	expiredSessions := make([]uint32, 0)

	m.mu.RLock()
	for streamID, session := range m.sessions {
		if session.Pinned() {
			continue
		}
		if now.Sub(session.LastActivity()) > m.config.Timeout {
			expiredSessions = append(expiredSessions, streamID)
		}
	}
	m.mu.RUnlock()

	if len(expiredSessions) > 0 {
		m.logger.Info("Cleaning up expired sessions",
			slog.Int("expired_count", len(expiredSessions)),
		)

		for _, streamID := range expiredSessions {
			m.RemoveSession(streamID)
		}
	}
}
