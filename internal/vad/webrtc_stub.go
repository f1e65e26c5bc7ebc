//go:build !cgo

package vad

// WebRTCClassifier is unavailable without cgo
type WebRTCClassifier struct{}

// NewWebRTCClassifier always fails without cgo
func NewWebRTCClassifier(mode int) (*WebRTCClassifier, error) {
	return nil, ErrWebRTCUnavailable
}

// IsSpeech implements Classifier
func (c *WebRTCClassifier) IsSpeech(frame []int16, sampleRate int) (bool, error) {
	return false, ErrWebRTCUnavailable
}

// WebRTCAvailable reports whether the WebRTC detector is compiled in
func WebRTCAvailable() bool {
	return false
}
