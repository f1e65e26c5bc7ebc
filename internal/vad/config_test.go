package vad

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(16000)

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}

	if cfg.FrameDurationMs != 10 {
		t.Errorf("Expected 10ms frames, got %d", cfg.FrameDurationMs)
	}

	if cfg.BufferSize != 100 {
		t.Errorf("Expected buffer size 100, got %d", cfg.BufferSize)
	}

	if cfg.PaddingFrames != cfg.WindowSize/2 {
		t.Errorf("Expected padding of half the window (%d), got %d", cfg.WindowSize/2, cfg.PaddingFrames)
	}

	if cfg.Mode != 3 {
		t.Errorf("Expected aggressiveness 3, got %d", cfg.Mode)
	}

	if cfg.FrameSamples() != 160 {
		t.Errorf("Expected 160 samples per frame, got %d", cfg.FrameSamples())
	}

	if cfg.FrameBytes() != 320 {
		t.Errorf("Expected 320 bytes per frame, got %d", cfg.FrameBytes())
	}

	if cfg.FrameDuration() != 10*time.Millisecond {
		t.Errorf("Expected 10ms frame duration, got %v", cfg.FrameDuration())
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		expectErr bool
	}{
		{"valid default", func(c *Config) {}, false},
		{"30ms frames at 48kHz", func(c *Config) { c.FrameDurationMs = 30; c.SampleRate = 48000 }, false},
		{"unsupported sample rate", func(c *Config) { c.SampleRate = 44100 }, true},
		{"unsupported frame duration", func(c *Config) { c.FrameDurationMs = 25 }, true},
		{"zero buffer", func(c *Config) { c.BufferSize = 0 }, true},
		{"zero window", func(c *Config) { c.WindowSize = 0 }, true},
		{"window larger than buffer", func(c *Config) { c.WindowSize = c.BufferSize + 1 }, true},
		{"window equal to buffer", func(c *Config) { c.WindowSize = c.BufferSize }, false},
		{"voice threshold above 1", func(c *Config) { c.VoiceThreshold = 1.2 }, true},
		{"negative nonvoice threshold", func(c *Config) { c.NonVoiceThreshold = -0.1 }, true},
		{"entry equal to exit", func(c *Config) { c.VoiceThreshold = 0.4; c.NonVoiceThreshold = 0.4 }, true},
		{"entry below exit", func(c *Config) { c.VoiceThreshold = 0.2; c.NonVoiceThreshold = 0.5 }, true},
		{"negative padding", func(c *Config) { c.PaddingFrames = -1 }, true},
		{"zero padding", func(c *Config) { c.PaddingFrames = 0 }, false},
		{"mode out of range", func(c *Config) { c.Mode = 4 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(16000)
			tt.modify(&cfg)

			err := cfg.Validate()
			if tt.expectErr && err == nil {
				t.Error("Expected validation error but got none")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}
