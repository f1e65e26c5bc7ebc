package vad

import (
	"errors"
	"testing"
)

func constantFrame(n int, value int16) []int16 {
	frame := make([]int16, n)
	for i := range frame {
		frame[i] = value
	}
	return frame
}

func TestEnergyClassifier(t *testing.T) {
	c, err := NewEnergyClassifier(0.1)
	if err != nil {
		t.Fatalf("Failed to create classifier: %v", err)
	}

	tests := []struct {
		name     string
		frame    []int16
		expected bool
	}{
		{"silence", constantFrame(160, 0), false},
		{"quiet noise", constantFrame(160, 300), false},
		{"loud tone", constantFrame(160, 8000), true},
		{"clipped", constantFrame(160, -32768), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			speech, err := c.IsSpeech(tt.frame, 16000)
			if err != nil {
				t.Fatalf("IsSpeech failed: %v", err)
			}
			if speech != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, speech)
			}
		})
	}

	if _, err := c.IsSpeech(nil, 16000); err == nil {
		t.Error("Expected error for empty frame")
	}
}

func TestEnergyNormalization(t *testing.T) {
	if e := Energy(constantFrame(10, 5000)); e != 0.5 {
		t.Errorf("Expected energy 0.5, got %f", e)
	}

	if e := Energy(constantFrame(10, 32000)); e != 1.0 {
		t.Errorf("Expected energy clamped to 1.0, got %f", e)
	}

	if e := Energy(nil); e != 0 {
		t.Errorf("Expected zero energy for no samples, got %f", e)
	}
}

func TestNewEnergyClassifierValidation(t *testing.T) {
	if _, err := NewEnergyClassifier(-0.1); err == nil {
		t.Error("Expected error for negative threshold")
	}
	if _, err := NewEnergyClassifier(1.5); err == nil {
		t.Error("Expected error for threshold above 1")
	}
}

func TestNewClassifier(t *testing.T) {
	c, err := NewClassifier(KindEnergy, 3, 0.2)
	if err != nil {
		t.Fatalf("Failed to create energy classifier: %v", err)
	}
	if _, ok := c.(*EnergyClassifier); !ok {
		t.Errorf("Expected *EnergyClassifier, got %T", c)
	}

	if _, err := NewClassifier("silero", 3, 0.2); err == nil {
		t.Error("Expected error for unknown classifier kind")
	}

	auto, err := NewClassifier(KindAuto, 3, 0.2)
	if err != nil {
		t.Fatalf("Auto classifier failed: %v", err)
	}
	if WebRTCAvailable() {
		if _, ok := auto.(*WebRTCClassifier); !ok {
			t.Errorf("Expected webrtc classifier when available, got %T", auto)
		}
	} else if _, ok := auto.(*EnergyClassifier); !ok {
		t.Errorf("Expected energy fallback, got %T", auto)
	}

	_, err = NewClassifier(KindWebRTC, 3, 0.2)
	if !WebRTCAvailable() && !errors.Is(err, ErrWebRTCUnavailable) {
		t.Errorf("Expected ErrWebRTCUnavailable without cgo, got %v", err)
	}
}

func TestWebRTCClassifier(t *testing.T) {
	if !WebRTCAvailable() {
		t.Skip("webrtc vad requires cgo")
	}

	c, err := NewWebRTCClassifier(3)
	if err != nil {
		t.Fatalf("Failed to create webrtc classifier: %v", err)
	}

	speech, err := c.IsSpeech(constantFrame(160, 0), 16000)
	if err != nil {
		t.Fatalf("IsSpeech failed: %v", err)
	}
	if speech {
		t.Error("Expected silence to be classified as non-speech")
	}

	// 7ms is not a frame length the detector accepts
	if _, err := c.IsSpeech(constantFrame(112, 0), 16000); err == nil {
		t.Error("Expected error for invalid frame length")
	}

	if _, err := NewWebRTCClassifier(7); err == nil {
		t.Error("Expected error for invalid mode")
	}
}
