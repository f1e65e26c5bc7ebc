package sink

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/skypro1111/vad-segmenter/internal/audio"
	"github.com/skypro1111/vad-segmenter/internal/vad"
)

// WAVDir writes each utterance to <dir>/<source>-<id>.wav
type WAVDir struct {
	dir    string
	logger *slog.Logger
}

// NewWAVDir creates dir if needed and returns a consumer writing into it
func NewWAVDir(dir string, logger *slog.Logger) (*WAVDir, error) {
	if dir == "" {
		return nil, fmt.Errorf("directory cannot be empty")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &WAVDir{dir: dir, logger: logger}, nil
}

// Name identifies the consumer in logs and metrics
func (s *WAVDir) Name() string {
	return "wav_dir"
}

// Path returns the file an utterance is written to
func (s *WAVDir) Path(u vad.Utterance) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-%s.wav", sanitize(u.Source), u.ID))
}

// OnUtterance writes u as a WAV file. The file appears under its final name
// only once complete.
func (s *WAVDir) OnUtterance(ctx context.Context, u vad.Utterance) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := s.Path(u)
	tmp, err := os.CreateTemp(s.dir, ".utterance-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := audio.WriteWAV(tmp, u.Samples, u.SampleRate); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename to %s: %w", path, err)
	}

	s.logger.Debug("Utterance written",
		slog.String("utterance_id", u.ID),
		slog.String("path", path),
		slog.Float64("duration", u.Duration().Seconds()),
	)

	return nil
}

// sanitize keeps source labels from escaping the directory
func sanitize(source string) string {
	if source == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, source)
}
