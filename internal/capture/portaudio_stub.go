//go:build !portaudio

package capture

import "log/slog"

// NewMicrophone always fails without the portaudio build tag
func NewMicrophone(config Config, feed FeedFunc, logger *slog.Logger) (*Microphone, error) {
	return nil, ErrUnavailable
}

// Available reports whether device capture was compiled in
func Available() bool {
	return false
}
