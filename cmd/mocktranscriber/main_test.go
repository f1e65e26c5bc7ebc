package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/skypro1111/vad-segmenter/internal/transcription"
	"github.com/skypro1111/vad-segmenter/internal/vad"
)

func TestMockAnswersTranscriptionClient(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(transcribeHandler(logger, 0, "hello there"))
	defer srv.Close()

	tests := []struct {
		format string
	}{
		{"json"},
		{"text"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			client, err := transcription.NewClient(transcription.Config{
				Endpoint:     srv.URL,
				APIKey:       "dev",
				OutputFormat: tt.format,
			})
			if err != nil {
				t.Fatalf("Failed to create client: %v", err)
			}

			u := vad.Utterance{
				ID:         "u1",
				Source:     "mic",
				SampleRate: 16000,
				Samples:    make([]int16, 3200),
				CreatedAt:  time.Now(),
			}

			resp, err := client.Transcribe(context.Background(), u)
			if err != nil {
				t.Fatalf("Transcribe failed: %v", err)
			}
			if resp.Text != "hello there" {
				t.Errorf("Expected text 'hello there', got %q", resp.Text)
			}
			if resp.UtteranceID != "u1" {
				t.Errorf("Expected utterance id u1, got %s", resp.UtteranceID)
			}
		})
	}
}

func TestMockRejectsBadRequests(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := transcribeHandler(logger, 0, "x")

	req := httptest.NewRequest(http.MethodGet, "/transcribe", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/transcribe", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}
