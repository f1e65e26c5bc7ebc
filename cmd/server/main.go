package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/skypro1111/vad-segmenter/internal/capture"
	"github.com/skypro1111/vad-segmenter/internal/config"
	"github.com/skypro1111/vad-segmenter/internal/dispatch"
	"github.com/skypro1111/vad-segmenter/internal/metrics"
	"github.com/skypro1111/vad-segmenter/internal/server"
	"github.com/skypro1111/vad-segmenter/internal/sink"
	"github.com/skypro1111/vad-segmenter/internal/stream"
	"github.com/skypro1111/vad-segmenter/internal/transcription"
	"github.com/skypro1111/vad-segmenter/internal/vad"
)

const (
	defaultConfigPath = "configs/config.yaml"
	shutdownTimeout   = 10 * time.Second
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("Service starting",
		slog.String("service", server.ServiceName),
		slog.String("version", server.Version),
		slog.String("config_path", *configPath),
	)

	engineCfg := cfg.EngineConfig()
	logger.Info("Configuration loaded",
		slog.Bool("udp_enabled", cfg.Server.Enabled),
		slog.Int("udp_port", cfg.Server.UDPPort),
		slog.Int("sample_rate", engineCfg.SampleRate),
		slog.Int("frame_duration_ms", engineCfg.FrameDurationMs),
		slog.String("classifier", cfg.VAD.Classifier),
		slog.Int("buffer_size", engineCfg.BufferSize),
		slog.Int("window_size", engineCfg.WindowSize),
		slog.Float64("voice_threshold", engineCfg.VoiceThreshold),
		slog.Float64("nonvoice_threshold", engineCfg.NonVoiceThreshold),
		slog.Int("padding_frames", engineCfg.PaddingFrames),
		slog.Bool("transcription_enabled", cfg.Transcription.Enabled),
		slog.Bool("sink_enabled", cfg.Sink.Enabled),
		slog.Bool("capture_enabled", cfg.Capture.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Service stopped")
}

// run wires the pipeline and blocks until SIGINT/SIGTERM or a server failure
func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(registry)

	consumers, transcriber, err := buildConsumers(cfg, logger)
	if err != nil {
		return err
	}
	if len(consumers) == 0 {
		logger.Warn("No utterance consumers enabled, utterances will only be logged and counted")
	}

	dispatcher := dispatch.New(dispatch.Config{
		MaxConcurrent:   cfg.Dispatch.MaxConcurrent,
		ConsumerTimeout: cfg.Dispatch.GetConsumerTimeoutDuration(),
	}, logger, appMetrics, consumers...)

	classifierFactory := func() (vad.Classifier, error) {
		return vad.NewClassifier(cfg.VAD.Classifier, cfg.VAD.Mode, cfg.VAD.EnergyThreshold)
	}
	if cfg.VAD.Classifier != vad.KindEnergy && !vad.WebRTCAvailable() {
		logger.Warn("WebRTC VAD not compiled in (cgo disabled), using energy classifier",
			slog.String("classifier", cfg.VAD.Classifier))
	}
	// Fail at startup rather than on the first stream
	if _, err := classifierFactory(); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}

	// Bind the health port before anything else starts so a conflict fails cleanly
	var healthServer *server.HealthServer
	if cfg.GRPC.Enabled {
		healthServer = server.NewHealthServer(cfg.GRPC.Address, cfg.GRPC.Port, logger)
		if err := healthServer.Listen(); err != nil {
			return err
		}
	}

	streamMgr, err := stream.NewManager(logger, stream.ManagerConfig{
		VAD:           cfg.EngineConfig(),
		Classifier:    classifierFactory,
		Timeout:       cfg.Audio.GetStreamTimeoutDuration(),
		MaxStreams:    cfg.Server.MaxConcurrentStreams,
		ReorderWindow: cfg.Audio.ReorderWindow,
	}, dispatcher, appMetrics)
	if err != nil {
		return fmt.Errorf("failed to create stream manager: %w", err)
	}

	var udpServer *server.UDPServer
	if cfg.Server.Enabled {
		udpServer = server.NewUDPServer(&cfg.Server, logger, streamMgr, appMetrics)
		if err := udpServer.Start(); err != nil {
			streamMgr.Stop()
			return err
		}
	}

	var mic *capture.Microphone
	if cfg.Capture.Enabled {
		mic, err = startCapture(cfg, logger, streamMgr)
		if err != nil {
			logger.Error("Microphone capture disabled", slog.String("error", err.Error()))
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.HTTP.Enabled {
		httpServer := server.NewHTTPServer(cfg.HTTP, logger, cfg, streamMgr, udpServer, dispatcher, appMetrics, registry)
		g.Go(httpServer.Serve)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpServer.Stop(shutdownCtx)
		})
	}

	if healthServer != nil {
		g.Go(healthServer.Serve)
		g.Go(func() error {
			<-gctx.Done()
			healthServer.Stop(shutdownTimeout)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Starting graceful shutdown...")
		return nil
	})

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("udp_address", net.JoinHostPort(cfg.Server.BindAddress, strconv.Itoa(cfg.Server.UDPPort))),
		slog.String("http_address", net.JoinHostPort(cfg.HTTP.Address, strconv.Itoa(cfg.HTTP.Port))),
	)

	runErr := g.Wait()

	// Stop producers first so nothing new reaches the dispatcher
	if mic != nil {
		if err := mic.Close(); err != nil {
			logger.Error("Error stopping microphone", slog.String("error", err.Error()))
		}
	}

	if udpServer != nil {
		if err := udpServer.Stop(); err != nil {
			logger.Error("Error stopping UDP server", slog.String("error", err.Error()))
		}
	}

	streamMgr.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Error("Dispatcher did not drain in time", slog.String("error", err.Error()))
	}

	if transcriber != nil {
		if err := transcriber.Close(shutdownCtx); err != nil {
			logger.Error("Error closing transcription client", slog.String("error", err.Error()))
		}
	}

	stats := dispatcher.Stats()
	logger.Info("Final dispatch statistics",
		slog.Uint64("dispatched", stats.Dispatched),
		slog.Uint64("delivered", stats.Delivered),
		slog.Uint64("failed", stats.Failed),
		slog.Uint64("dropped", stats.Dropped),
	)

	if udpServer != nil {
		udpStats := udpServer.GetStatistics()
		logger.Info("Final server statistics",
			slog.Uint64("packets_received", udpStats.PacketsReceived),
			slog.Uint64("packets_processed", udpStats.PacketsProcessed),
			slog.Uint64("packets_dropped", udpStats.PacketsDropped),
			slog.Uint64("parse_errors", udpStats.ParseErrors),
		)
	}

	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// buildConsumers creates the enabled utterance consumers
func buildConsumers(cfg *config.Config, logger *slog.Logger) ([]dispatch.Consumer, *transcription.Client, error) {
	var consumers []dispatch.Consumer
	var client *transcription.Client

	if cfg.Transcription.Enabled {
		var err error
		client, err = transcription.NewClient(transcription.Config{
			Endpoint:      cfg.Transcription.Endpoint,
			APIKey:        cfg.Transcription.APIKey,
			Timeout:       cfg.Transcription.GetTimeoutDuration(),
			MaxRetries:    cfg.Transcription.MaxRetries,
			MaxConcurrent: cfg.Transcription.MaxConcurrent,
			Language:      cfg.Transcription.Language,
			OutputFormat:  cfg.Transcription.OutputFormat,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create transcription client: %w", err)
		}
		consumers = append(consumers, transcription.NewConsumer(client, logger))
		logger.Info("Transcription consumer enabled",
			slog.String("endpoint", cfg.Transcription.Endpoint))
	}

	if cfg.Sink.Enabled {
		wavDir, err := sink.NewWAVDir(cfg.Sink.Directory, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create WAV sink: %w", err)
		}
		consumers = append(consumers, wavDir)
		logger.Info("WAV sink enabled", slog.String("directory", cfg.Sink.Directory))
	}

	return consumers, client, nil
}

// startCapture opens a stream for the local microphone and starts feeding it
func startCapture(cfg *config.Config, logger *slog.Logger, streamMgr *stream.Manager) (*capture.Microphone, error) {
	streamID := streamMgr.AllocateID()
	session, err := streamMgr.CreateSession(streamID, cfg.Capture.Label, 0)
	if err != nil {
		return nil, err
	}
	session.Pin()

	mic, err := capture.NewMicrophone(capture.Config{
		SampleRate:      session.SampleRate,
		FramesPerBuffer: cfg.Capture.FramesPerBuffer,
	}, session.Write, logger.With(slog.String("label", session.Label)))
	if err != nil {
		streamMgr.RemoveSession(streamID)
		return nil, err
	}

	if err := mic.Start(); err != nil {
		mic.Close()
		streamMgr.RemoveSession(streamID)
		return nil, err
	}

	return mic, nil
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
