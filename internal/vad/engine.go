package vad

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/vad-segmenter/internal/audio"
)

var (
	// ErrClosed is returned by Feed after Close
	ErrClosed = errors.New("engine closed")

	// ErrClassifier marks errors raised by the frame classifier
	ErrClassifier = errors.New("classifier failed")
)

// FrameError reports a frame the classifier could not decide on. The frame
// was dropped without touching the ring or the state machine.
type FrameError struct {
	Index uint64
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame %d: %v: %v", e.Index, ErrClassifier, e.Err)
}

// Unwrap exposes both ErrClassifier and the underlying classifier error
func (e *FrameError) Unwrap() []error {
	return []error{ErrClassifier, e.Err}
}

// Sink receives finished utterances. Dispatch is called on the Feed goroutine
// and must return without waiting for consumers.
type Sink interface {
	Dispatch(u Utterance)
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(u Utterance)

// Dispatch calls f(u)
func (f SinkFunc) Dispatch(u Utterance) {
	f(u)
}

// Recorder collects per-frame and per-utterance measurements
type Recorder interface {
	RecordFrame(speech bool, took time.Duration)
	RecordClassifierError()
	RecordUtterance(seconds float64, bytes int)
}

type nopRecorder struct{}

func (nopRecorder) RecordFrame(bool, time.Duration) {}
func (nopRecorder) RecordClassifierError()          {}
func (nopRecorder) RecordUtterance(float64, int)    {}

// EngineStats is a snapshot of engine counters
type EngineStats struct {
	State             string  `json:"state"`
	Activation        float64 `json:"activation"`
	Frames            uint64  `json:"frames"`
	SpeechFrames      uint64  `json:"speech_frames"`
	Utterances        uint64  `json:"utterances"`
	ClassifierErrors  uint64  `json:"classifier_errors"`
	DiscardedSegments uint64  `json:"discarded_segments"`
	PendingBytes      int     `json:"pending_bytes"`
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithSource labels utterances produced by the engine
func WithSource(source string) Option {
	return func(e *Engine) {
		e.source = source
	}
}

// WithRecorder attaches a metrics recorder
func WithRecorder(recorder Recorder) Option {
	return func(e *Engine) {
		if recorder != nil {
			e.recorder = recorder
		}
	}
}

// Engine runs the segmentation pipeline for a single audio stream. Engines
// share nothing, so any number can run side by side.
type Engine struct {
	cfg        Config
	classifier Classifier
	sink       Sink
	logger     *slog.Logger
	recorder   Recorder
	source     string

	segmenter  *audio.FrameSegmenter
	ring       *audio.Ring
	machine    machine
	activation float64
	closed     bool

	frames            uint64
	speechFrames      uint64
	utterances        uint64
	classifierErrors  uint64
	discardedSegments uint64

	mu sync.Mutex
}

// NewEngine validates cfg and builds an engine writing utterances to sink
func NewEngine(cfg Config, classifier Classifier, sink Sink, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid vad config: %w", err)
	}

	if classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}

	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}

	segmenter, err := audio.NewFrameSegmenter(cfg.FrameSamples())
	if err != nil {
		return nil, err
	}

	ring, err := audio.NewRing(cfg.BufferSize)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		classifier: classifier,
		sink:       sink,
		logger:     slog.Default(),
		recorder:   nopRecorder{},
		segmenter:  segmenter,
		ring:       ring,
		machine:    newMachine(cfg),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Feed pushes raw little-endian PCM16 bytes through the pipeline. Every
// complete frame is classified, stored and evaluated before Feed returns.
// A classifier failure stops processing at that frame and returns a
// *FrameError; the remaining bytes stay buffered and Feed(nil) resumes.
func (e *Engine) Feed(chunk []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	return e.segmenter.Push(chunk, e.processFrame)
}

// processFrame runs classify, store, activation and state step for one frame
func (e *Engine) processFrame(frame audio.Frame) error {
	start := time.Now()

	speech, err := e.classifier.IsSpeech(frame.Samples, e.cfg.SampleRate)
	if err != nil {
		e.classifierErrors++
		e.recorder.RecordClassifierError()
		return &FrameError{Index: frame.Index, Err: err}
	}

	e.ring.Store(frame, speech)
	e.activation = Activation(e.ring, e.cfg.WindowSize)

	e.frames++
	if speech {
		e.speechFrames++
	}

	prev := e.machine.state
	segment, done := e.machine.step(e.ring, frame, e.activation)
	if prev == Idle && e.machine.state == Recording {
		e.logger.Debug("Speech started",
			slog.String("source", e.source),
			slog.Uint64("frame", frame.Index),
			slog.Float64("activation", e.activation))
	}

	if done {
		e.emit(segment)
	}

	e.recorder.RecordFrame(speech, time.Since(start))
	return nil
}

func (e *Engine) emit(segment []audio.Frame) {
	u := newUtterance(e.source, e.cfg.SampleRate, segment)
	e.utterances++

	seconds := u.Duration().Seconds()
	e.recorder.RecordUtterance(seconds, len(u.Samples)*audio.BytesPerSample)

	e.logger.Debug(fmt.Sprintf("Utterance %.2fs", seconds),
		slog.String("utterance_id", u.ID),
		slog.String("source", e.source),
		slog.Uint64("start_frame", u.StartFrame),
		slog.Uint64("end_frame", u.EndFrame),
		slog.Int("frames", u.Frames))

	e.sink.Dispatch(u)
}

// Activation returns the activation computed for the most recent frame
func (e *Engine) Activation() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activation
}

// State returns the current state of the utterance machine
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.machine.state
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// Stats returns a snapshot of the engine counters
func (e *Engine) Stats() EngineStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	return EngineStats{
		State:             e.machine.state.String(),
		Activation:        e.activation,
		Frames:            e.frames,
		SpeechFrames:      e.speechFrames,
		Utterances:        e.utterances,
		ClassifierErrors:  e.classifierErrors,
		DiscardedSegments: e.discardedSegments,
		PendingBytes:      e.segmenter.Pending(),
	}
}

// Close stops the engine. A segment still being recorded is discarded rather
// than emitted. Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if e.machine.discard() {
		e.discardedSegments++
		e.logger.Debug("Discarded unfinished utterance on close",
			slog.String("source", e.source))
	}

	return nil
}
