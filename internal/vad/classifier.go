package vad

import (
	"errors"
	"fmt"
	"math"
)

// Classifier decides whether a single frame contains speech.
// Implementations need not be safe for concurrent use; every engine owns its own.
type Classifier interface {
	IsSpeech(frame []int16, sampleRate int) (bool, error)
}

// ClassifierFunc adapts a plain function to the Classifier interface
type ClassifierFunc func(frame []int16, sampleRate int) (bool, error)

// IsSpeech calls f(frame, sampleRate)
func (f ClassifierFunc) IsSpeech(frame []int16, sampleRate int) (bool, error) {
	return f(frame, sampleRate)
}

// Classifier kinds accepted by NewClassifier
const (
	KindWebRTC = "webrtc"
	KindEnergy = "energy"
	KindAuto   = "auto"
)

// ErrWebRTCUnavailable is returned when the binary was built without cgo
var ErrWebRTCUnavailable = errors.New("webrtc vad not available in this build")

// NewClassifier builds a classifier by kind. "auto" picks webrtc when the
// build supports it and falls back to the energy classifier otherwise.
func NewClassifier(kind string, mode int, energyThreshold float64) (Classifier, error) {
	switch kind {
	case KindWebRTC:
		return NewWebRTCClassifier(mode)
	case KindEnergy:
		return NewEnergyClassifier(energyThreshold)
	case KindAuto, "":
		if WebRTCAvailable() {
			return NewWebRTCClassifier(mode)
		}
		return NewEnergyClassifier(energyThreshold)
	default:
		return nil, fmt.Errorf("unknown classifier %q", kind)
	}
}

// EnergyClassifier marks a frame as speech when its normalized RMS energy
// reaches the threshold. It needs no native code and is deterministic.
type EnergyClassifier struct {
	threshold float64
}

// NewEnergyClassifier creates an energy classifier; threshold is in [0,1]
// relative to an RMS of 10000.
func NewEnergyClassifier(threshold float64) (*EnergyClassifier, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("energy threshold must be between 0 and 1, got %f", threshold)
	}
	return &EnergyClassifier{threshold: threshold}, nil
}

// IsSpeech implements Classifier
func (c *EnergyClassifier) IsSpeech(frame []int16, sampleRate int) (bool, error) {
	if len(frame) == 0 {
		return false, fmt.Errorf("empty frame")
	}
	return Energy(frame) >= c.threshold, nil
}

// Energy returns the RMS of the samples normalized to [0,1]
func Energy(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}
	rms := math.Sqrt(sum / float64(len(samples)))

	// Normalize assuming max speech energy around 10000
	normalized := rms / 10000.0
	if normalized > 1.0 {
		normalized = 1.0
	}
	return normalized
}
