// Command mocktranscriber is a development stand-in for the transcription API.
// It accepts the multipart uploads sent by the transcription consumer, logs
// them and answers with a fixed transcript.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/skypro1111/vad-segmenter/internal/audio"
	"github.com/skypro1111/vad-segmenter/internal/transcription"
)

func main() {
	addr := flag.String("addr", ":9000", "Listen address")
	delay := flag.Duration("delay", 200*time.Millisecond, "Simulated processing time")
	text := flag.String("text", "This is a test transcription", "Transcript returned for every request")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	mux := http.NewServeMux()
	mux.Handle("/transcribe", transcribeHandler(logger, *delay, *text))

	logger.Info("Mock transcription server starting",
		slog.String("address", *addr),
		slog.String("endpoint", "/transcribe"),
	)

	if err := http.ListenAndServe(*addr, mux); err != nil {
		logger.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func transcribeHandler(logger *slog.Logger, delay time.Duration, text string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, "Error parsing form", http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "Error getting audio file", http.StatusBadRequest)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, "Error reading audio file", http.StatusInternalServerError)
			return
		}

		info, err := audio.GetWAVInfo(data)
		if err != nil {
			http.Error(w, "Invalid WAV file: "+err.Error(), http.StatusBadRequest)
			return
		}

		logger.Info("Transcription request received",
			slog.String("utterance_id", r.FormValue("utterance_id")),
			slog.String("source", r.FormValue("source")),
			slog.String("filename", header.Filename),
			slog.Int("bytes", len(data)),
			slog.Uint64("sample_rate", uint64(info.SampleRate)),
			slog.Float64("duration", info.Duration),
			slog.String("language", r.FormValue("language")),
			slog.Bool("authorized", r.Header.Get("Authorization") != ""),
		)

		time.Sleep(delay)

		if r.FormValue("response_format") == "text" {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			io.WriteString(w, text)
			return
		}

		duration, _ := strconv.ParseFloat(r.FormValue("duration"), 64)
		resp := transcription.Response{
			UtteranceID: r.FormValue("utterance_id"),
			Source:      r.FormValue("source"),
			Text:        text,
			Confidence:  0.95,
			Language:    r.FormValue("language"),
			Duration:    duration,
			ProcessedAt: time.Now(),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}
