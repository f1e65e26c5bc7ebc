package transcription

import (
	"context"
	"log/slog"

	"github.com/skypro1111/vad-segmenter/internal/vad"
)

// Consumer delivers utterances to a Client and logs the resulting text
type Consumer struct {
	client *Client
	logger *slog.Logger

	// OnResult, when set, receives every successful transcription
	OnResult func(*Response)
}

// NewConsumer wraps client for use with the utterance dispatcher
func NewConsumer(client *Client, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{client: client, logger: logger}
}

// Name identifies the consumer in logs and metrics
func (c *Consumer) Name() string {
	return "transcription"
}

// OnUtterance transcribes u
func (c *Consumer) OnUtterance(ctx context.Context, u vad.Utterance) error {
	resp, err := c.client.Transcribe(ctx, u)
	if err != nil {
		return err
	}

	c.logger.Info("Transcription received",
		slog.String("utterance_id", u.ID),
		slog.String("source", u.Source),
		slog.Float64("duration", u.Duration().Seconds()),
		slog.String("text", resp.Text),
	)

	if c.OnResult != nil {
		c.OnResult(resp)
	}

	return nil
}
