package vad

import (
	"fmt"
	"time"

	"github.com/skypro1111/vad-segmenter/internal/audio"
)

// Config holds the tuning parameters of one engine
type Config struct {
	SampleRate        int     `json:"sample_rate"`
	FrameDurationMs   int     `json:"frame_duration_ms"`
	BufferSize        int     `json:"buffer_size"`        // Ring capacity in frames
	WindowSize        int     `json:"window_size"`        // Decisions averaged into the activation
	VoiceThreshold    float64 `json:"voice_threshold"`    // Activation above which recording starts
	NonVoiceThreshold float64 `json:"nonvoice_threshold"` // Activation at or below which recording stops
	PaddingFrames     int     `json:"padding_frames"`     // Copies of the closing frame appended on stop
	Mode              int     `json:"mode"`               // Classifier aggressiveness 0..3
}

// DefaultConfig returns the standard tuning for the given sample rate
func DefaultConfig(sampleRate int) Config {
	const window = 20
	return Config{
		SampleRate:        sampleRate,
		FrameDurationMs:   10,
		BufferSize:        100,
		WindowSize:        window,
		VoiceThreshold:    0.6,
		NonVoiceThreshold: 0.3,
		PaddingFrames:     window / 2,
		Mode:              3,
	}
}

// Validate rejects configurations the engine cannot run with
func (c Config) Validate() error {
	switch c.SampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return fmt.Errorf("sample_rate must be one of 8000, 16000, 32000, 48000, got %d", c.SampleRate)
	}

	switch c.FrameDurationMs {
	case 10, 20, 30:
	default:
		return fmt.Errorf("frame_duration_ms must be 10, 20 or 30, got %d", c.FrameDurationMs)
	}

	if c.BufferSize < 1 {
		return fmt.Errorf("buffer_size must be at least 1, got %d", c.BufferSize)
	}

	if c.WindowSize < 1 || c.WindowSize > c.BufferSize {
		return fmt.Errorf("window_size must be between 1 and buffer_size (%d), got %d", c.BufferSize, c.WindowSize)
	}

	if c.VoiceThreshold < 0 || c.VoiceThreshold > 1 {
		return fmt.Errorf("voice_threshold must be between 0 and 1, got %f", c.VoiceThreshold)
	}

	if c.NonVoiceThreshold < 0 || c.NonVoiceThreshold > 1 {
		return fmt.Errorf("nonvoice_threshold must be between 0 and 1, got %f", c.NonVoiceThreshold)
	}

	if c.VoiceThreshold <= c.NonVoiceThreshold {
		return fmt.Errorf("voice_threshold (%f) must be greater than nonvoice_threshold (%f)",
			c.VoiceThreshold, c.NonVoiceThreshold)
	}

	if c.PaddingFrames < 0 {
		return fmt.Errorf("padding_frames cannot be negative, got %d", c.PaddingFrames)
	}

	if c.Mode < 0 || c.Mode > 3 {
		return fmt.Errorf("mode must be between 0 and 3, got %d", c.Mode)
	}

	return nil
}

// FrameSamples returns the number of samples in one frame
func (c Config) FrameSamples() int {
	return c.SampleRate * c.FrameDurationMs / 1000
}

// FrameBytes returns the size of one frame in PCM16 bytes
func (c Config) FrameBytes() int {
	return c.FrameSamples() * audio.BytesPerSample
}

// FrameDuration returns the duration of one frame
func (c Config) FrameDuration() time.Duration {
	return time.Duration(c.FrameDurationMs) * time.Millisecond
}
