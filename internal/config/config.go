package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skypro1111/vad-segmenter/internal/vad"
)

// APIKeyEnv overrides transcription.api_key when set
const APIKeyEnv = "VAD_TRANSCRIPTION_API_KEY"

// Config represents the complete service configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	HTTP          HTTPConfig          `yaml:"http"`
	GRPC          GRPCConfig          `yaml:"grpc"`
	Audio         AudioConfig         `yaml:"audio"`
	VAD           VADConfig           `yaml:"vad"`
	Dispatch      DispatchConfig      `yaml:"dispatch"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Sink          SinkConfig          `yaml:"sink"`
	Capture       CaptureConfig       `yaml:"capture"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig contains UDP ingest configuration
type ServerConfig struct {
	Enabled              bool   `yaml:"enabled"`
	UDPPort              int    `yaml:"udp_port"`
	BindAddress          string `yaml:"bind_address"`
	BufferSize           int    `yaml:"buffer_size"`
	MaxConcurrentStreams int    `yaml:"max_concurrent_streams"`
	Workers              int    `yaml:"workers"`
	QueueSize            int    `yaml:"queue_size"` // Per worker
}

// HTTPConfig contains HTTP API and WebSocket ingest configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// GRPCConfig contains the gRPC health endpoint configuration
type GRPCConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// AudioConfig contains the input audio format
type AudioConfig struct {
	SampleRate      int `yaml:"sample_rate"`
	FrameDurationMs int `yaml:"frame_duration_ms"`
	Channels        int `yaml:"channels"`
	BitDepth        int `yaml:"bit_depth"`
	StreamTimeout   int `yaml:"stream_timeout"` // seconds
	ReorderWindow   int `yaml:"reorder_window"` // packets held back waiting for a gap to fill
}

// VADConfig contains segmentation parameters
type VADConfig struct {
	Classifier        string  `yaml:"classifier"` // webrtc, energy or auto
	Mode              int     `yaml:"mode"`
	BufferSize        int     `yaml:"buffer_size"` // frames
	WindowSize        int     `yaml:"window_size"` // frames
	VoiceThreshold    float64 `yaml:"voice_threshold"`
	NonVoiceThreshold float64 `yaml:"nonvoice_threshold"`
	PaddingFrames     *int    `yaml:"padding_frames"` // Defaults to window_size/2
	EnergyThreshold   float64 `yaml:"energy_threshold"`
}

// DispatchConfig contains utterance delivery configuration
type DispatchConfig struct {
	MaxConcurrent   int `yaml:"max_concurrent"`
	ConsumerTimeout int `yaml:"consumer_timeout"` // seconds, 0 for none
}

// TranscriptionConfig contains transcription API configuration
type TranscriptionConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	Language      string `yaml:"language"`
	OutputFormat  string `yaml:"output_format"`
}

// SinkConfig contains the WAV directory consumer configuration
type SinkConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Directory string `yaml:"directory"`
}

// CaptureConfig contains local microphone configuration
type CaptureConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Label           string `yaml:"label"`
	FramesPerBuffer int    `yaml:"frames_per_buffer"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used for keys missing from the file
func Default() Config {
	engine := vad.DefaultConfig(16000)

	return Config{
		Server: ServerConfig{
			Enabled:              true,
			UDPPort:              4444,
			BindAddress:          "0.0.0.0",
			BufferSize:           65536,
			MaxConcurrentStreams: 1000,
			Workers:              4,
			QueueSize:            1000,
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "0.0.0.0",
			Enabled: true,
		},
		GRPC: GRPCConfig{
			Port:    9090,
			Address: "0.0.0.0",
		},
		Audio: AudioConfig{
			SampleRate:      engine.SampleRate,
			FrameDurationMs: engine.FrameDurationMs,
			Channels:        1,
			BitDepth:        16,
			StreamTimeout:   60,
			ReorderWindow:   4,
		},
		VAD: VADConfig{
			Classifier:        vad.KindAuto,
			Mode:              engine.Mode,
			BufferSize:        engine.BufferSize,
			WindowSize:        engine.WindowSize,
			VoiceThreshold:    engine.VoiceThreshold,
			NonVoiceThreshold: engine.NonVoiceThreshold,
			EnergyThreshold:   0.05,
		},
		Dispatch: DispatchConfig{
			MaxConcurrent:   10,
			ConsumerTimeout: 60,
		},
		Transcription: TranscriptionConfig{
			Timeout:       30,
			MaxRetries:    3,
			MaxConcurrent: 10,
			OutputFormat:  "json",
		},
		Sink: SinkConfig{
			Directory: "./utterances",
		},
		Capture: CaptureConfig{
			Label:           "microphone",
			FramesPerBuffer: 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if key, ok := os.LookupEnv(APIKeyEnv); ok && strings.TrimSpace(key) != "" {
		config.Transcription.APIKey = strings.TrimSpace(key)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.GRPC.Validate(); err != nil {
		return fmt.Errorf("grpc config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	// The combined engine settings catch cross-field problems such as window > buffer
	if err := c.EngineConfig().Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Dispatch.Validate(); err != nil {
		return fmt.Errorf("dispatch config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Sink.Validate(); err != nil {
		return fmt.Errorf("sink config: %w", err)
	}

	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// EngineConfig assembles the per-stream engine settings
func (c *Config) EngineConfig() vad.Config {
	padding := c.VAD.WindowSize / 2
	if c.VAD.PaddingFrames != nil {
		padding = *c.VAD.PaddingFrames
	}

	return vad.Config{
		SampleRate:        c.Audio.SampleRate,
		FrameDurationMs:   c.Audio.FrameDurationMs,
		BufferSize:        c.VAD.BufferSize,
		WindowSize:        c.VAD.WindowSize,
		VoiceThreshold:    c.VAD.VoiceThreshold,
		NonVoiceThreshold: c.VAD.NonVoiceThreshold,
		PaddingFrames:     padding,
		Mode:              c.VAD.Mode,
	}
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if !s.Enabled {
		return nil
	}

	if s.UDPPort < 1 || s.UDPPort > 65535 {
		return fmt.Errorf("udp_port must be between 1 and 65535, got %d", s.UDPPort)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.BufferSize < 1024 {
		return fmt.Errorf("buffer_size must be at least 1024 bytes, got %d", s.BufferSize)
	}

	if s.MaxConcurrentStreams < 1 {
		return fmt.Errorf("max_concurrent_streams must be at least 1, got %d", s.MaxConcurrentStreams)
	}

	if s.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", s.Workers)
	}

	if s.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", s.QueueSize)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates gRPC configuration
func (g *GRPCConfig) Validate() error {
	if g.Enabled {
		if g.Port < 1 || g.Port > 65535 {
			return fmt.Errorf("grpc port must be between 1 and 65535, got %d", g.Port)
		}

		if g.Address == "" {
			return fmt.Errorf("grpc address cannot be empty when gRPC is enabled")
		}
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	if a.StreamTimeout < 1 {
		return fmt.Errorf("stream_timeout must be at least 1 second, got %d", a.StreamTimeout)
	}

	if a.ReorderWindow < 0 {
		return fmt.Errorf("reorder_window cannot be negative, got %d", a.ReorderWindow)
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	validClassifiers := map[string]bool{vad.KindWebRTC: true, vad.KindEnergy: true, vad.KindAuto: true}
	if !validClassifiers[v.Classifier] {
		return fmt.Errorf("classifier must be one of [webrtc, energy, auto], got '%s'", v.Classifier)
	}

	if v.EnergyThreshold < 0 || v.EnergyThreshold > 1 {
		return fmt.Errorf("energy_threshold must be between 0 and 1, got %f", v.EnergyThreshold)
	}

	return nil
}

// Validate validates dispatch configuration
func (d *DispatchConfig) Validate() error {
	if d.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", d.MaxConcurrent)
	}

	if d.ConsumerTimeout < 0 {
		return fmt.Errorf("consumer_timeout cannot be negative, got %d", d.ConsumerTimeout)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if !t.Enabled {
		return nil
	}

	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty (set it in the file or via %s)", APIKeyEnv)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[t.OutputFormat] {
		return fmt.Errorf("output_format must be 'json' or 'text', got '%s'", t.OutputFormat)
	}

	return nil
}

// Validate validates sink configuration
func (s *SinkConfig) Validate() error {
	if s.Enabled && s.Directory == "" {
		return fmt.Errorf("directory cannot be empty when the sink is enabled")
	}
	return nil
}

// Validate validates capture configuration
func (c *CaptureConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Label == "" {
		return fmt.Errorf("label cannot be empty when capture is enabled")
	}

	if c.FramesPerBuffer < 1 {
		return fmt.Errorf("frames_per_buffer must be at least 1, got %d", c.FramesPerBuffer)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Anything other than stdout/stderr is treated as a file path
	return nil
}

// GetStreamTimeoutDuration returns the stream timeout as a time.Duration
func (a *AudioConfig) GetStreamTimeoutDuration() time.Duration {
	return time.Duration(a.StreamTimeout) * time.Second
}

// GetConsumerTimeoutDuration returns the per-consumer deadline as a time.Duration
func (d *DispatchConfig) GetConsumerTimeoutDuration() time.Duration {
	return time.Duration(d.ConsumerTimeout) * time.Second
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}
