//go:build cgo

package vad

import (
	"fmt"
	"sync"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"github.com/skypro1111/vad-segmenter/internal/audio"
)

// WebRTCClassifier wraps the WebRTC voice activity detector
type WebRTCClassifier struct {
	vad *webrtcvad.VAD
	mu  sync.Mutex
}

// NewWebRTCClassifier creates a detector with aggressiveness mode 0..3
func NewWebRTCClassifier(mode int) (*WebRTCClassifier, error) {
	if mode < 0 || mode > 3 {
		return nil, fmt.Errorf("mode must be between 0 and 3, got %d", mode)
	}

	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create webrtc vad: %w", err)
	}

	if err := v.SetMode(mode); err != nil {
		return nil, fmt.Errorf("failed to set webrtc vad mode %d: %w", mode, err)
	}

	return &WebRTCClassifier{vad: v}, nil
}

// IsSpeech implements Classifier
func (c *WebRTCClassifier) IsSpeech(frame []int16, sampleRate int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.vad.ValidRateAndFrameLength(sampleRate, len(frame)) {
		return false, fmt.Errorf("invalid rate/frame length for webrtc vad: %d Hz, %d samples", sampleRate, len(frame))
	}

	return c.vad.Process(sampleRate, audio.SamplesToBytes(frame))
}

// WebRTCAvailable reports whether the WebRTC detector is compiled in
func WebRTCAvailable() bool {
	return true
}
