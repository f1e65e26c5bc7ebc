//go:build portaudio

package capture

import (
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"
)

// deviceSource reads mono int16 buffers from the default input device
type deviceSource struct {
	stream *portaudio.Stream
	buf    []int16
}

// NewMicrophone opens the default input device. Close releases it.
func NewMicrophone(config Config, feed FeedFunc, logger *slog.Logger) (*Microphone, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	buf := make([]int16, config.FramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(config.SampleRate), len(buf), buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open default input stream: %w", err)
	}

	mic, err := newMicrophone(config, &deviceSource{stream: stream, buf: buf}, feed, logger)
	if err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, err
	}
	return mic, nil
}

func (d *deviceSource) start() error {
	return d.stream.Start()
}

// read blocks until the device fills the buffer and returns a copy of it
func (d *deviceSource) read() ([]int16, error) {
	if err := d.stream.Read(); err != nil {
		return nil, err
	}
	return append([]int16(nil), d.buf...), nil
}

func (d *deviceSource) stop() error {
	return d.stream.Stop()
}

func (d *deviceSource) close() error {
	err := d.stream.Close()
	if termErr := portaudio.Terminate(); err == nil {
		err = termErr
	}
	return err
}

// Available reports whether device capture was compiled in
func Available() bool {
	return true
}
