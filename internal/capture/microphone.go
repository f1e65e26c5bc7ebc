package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skypro1111/vad-segmenter/internal/audio"
	"github.com/skypro1111/vad-segmenter/internal/vad"
)

// Consecutive read failures before the read loop starts backing off, and the
// bounds of that backoff
const (
	readErrorThreshold = 3
	minReadBackoff     = 10 * time.Millisecond
	maxReadBackoff     = time.Second
)

// ErrUnavailable is returned when the binary was built without device support
var ErrUnavailable = errors.New("audio capture unavailable: built without the portaudio tag")

// FeedFunc receives captured PCM16 chunks, typically Session.Write
type FeedFunc func(pcm []byte) error

// Config describes the capture stream
type Config struct {
	SampleRate      int
	FramesPerBuffer int // Samples per device read
	QueueSize       int // Chunks buffered between the device and FeedFunc; defaults to 64
}

// source is a started-on-demand blocking reader of mono samples
type source interface {
	start() error
	read() ([]int16, error)
	stop() error
	close() error
}

// Microphone reads from a device on one goroutine and feeds chunks from
// another, so a slow consumer drops chunks instead of overrunning the device.
type Microphone struct {
	config Config
	src    source
	feed   FeedFunc
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	queue   chan []byte
	readWG  sync.WaitGroup
	feedWG  sync.WaitGroup

	chunks     atomic.Uint64
	dropped    atomic.Uint64
	readErrors atomic.Uint64
}

func newMicrophone(config Config, src source, feed FeedFunc, logger *slog.Logger) (*Microphone, error) {
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}
	if config.FramesPerBuffer <= 0 {
		return nil, fmt.Errorf("frames per buffer must be positive, got %d", config.FramesPerBuffer)
	}
	if feed == nil {
		return nil, fmt.Errorf("feed function cannot be nil")
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Microphone{
		config: config,
		src:    src,
		feed:   feed,
		logger: logger,
	}, nil
}

// Start opens the device stream and begins feeding. Calling Start on a
// running microphone does nothing.
func (m *Microphone) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	if err := m.src.start(); err != nil {
		return fmt.Errorf("failed to start input stream: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.queue = make(chan []byte, m.config.QueueSize)
	m.running = true

	m.feedWG.Add(1)
	go m.feedLoop(m.queue, cancel)

	m.readWG.Add(1)
	go m.readLoop(ctx, m.queue)

	m.logger.Info("Audio capture started",
		slog.Int("sample_rate", m.config.SampleRate),
		slog.Int("frames_per_buffer", m.config.FramesPerBuffer),
	)

	return nil
}

// Stop halts the device stream and waits until every queued chunk has been fed
func (m *Microphone) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false

	m.cancel()
	err := m.src.stop()

	m.readWG.Wait()
	close(m.queue)
	m.feedWG.Wait()

	m.logger.Info("Audio capture stopped",
		slog.Uint64("chunks", m.chunks.Load()),
		slog.Uint64("dropped", m.dropped.Load()),
		slog.Uint64("read_errors", m.readErrors.Load()),
	)

	if err != nil {
		return fmt.Errorf("failed to stop input stream: %w", err)
	}
	return nil
}

// Close stops capture and releases the device
func (m *Microphone) Close() error {
	if err := m.Stop(); err != nil {
		return err
	}
	return m.src.close()
}

// Running reports whether capture is active
func (m *Microphone) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Dropped returns the number of chunks lost to a full queue or a closed feed
func (m *Microphone) Dropped() uint64 {
	return m.dropped.Load()
}

// ReadErrors returns the number of failed device reads
func (m *Microphone) ReadErrors() uint64 {
	return m.readErrors.Load()
}

func (m *Microphone) readLoop(ctx context.Context, queue chan<- []byte) {
	defer m.readWG.Done()

	failures := 0
	backoff := minReadBackoff

	for {
		samples, err := m.src.read()

		select {
		case <-ctx.Done():
			return
		default:
		}

		if err != nil {
			m.readErrors.Add(1)
			failures++

			if failures == 1 {
				m.logger.Warn("Audio read error", slog.String("error", err.Error()))
			}
			if failures < readErrorThreshold {
				continue
			}
			if failures == readErrorThreshold {
				m.logger.Error("Audio device keeps failing, backing off",
					slog.Int("failures", failures),
					slog.String("error", err.Error()))
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxReadBackoff)
			continue
		}

		if failures > 0 {
			m.logger.Info("Audio device recovered", slog.Int("failures", failures))
			failures = 0
			backoff = minReadBackoff
		}

		chunk := audio.SamplesToBytes(samples)
		select {
		case queue <- chunk:
		default:
			m.dropped.Add(1)
			m.logger.Warn("Capture queue full, dropping chunk",
				slog.Int("samples", len(samples)))
		}
	}
}

// feedLoop hands queued chunks to the feed. Once the feed reports that its
// stream is closed, reading stops and the remaining chunks are dropped.
func (m *Microphone) feedLoop(queue <-chan []byte, cancelRead context.CancelFunc) {
	defer m.feedWG.Done()

	closed := false
	for chunk := range queue {
		if closed {
			m.dropped.Add(1)
			continue
		}

		m.chunks.Add(1)
		err := m.feed(chunk)
		switch {
		case err == nil:
		case errors.Is(err, vad.ErrClosed):
			closed = true
			cancelRead()
			m.logger.Error("Capture stream closed, no longer reading the device")
		default:
			m.logger.Error("Failed to feed captured audio", slog.String("error", err.Error()))
		}
	}
}
