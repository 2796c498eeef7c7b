// Package config loads and validates the listener configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete listener configuration.
type Config struct {
	Audio    AudioConfig    `yaml:"audio"`
	WakeWord WakeWordConfig `yaml:"wakeword"`
	Capture  CaptureConfig  `yaml:"capture"`
	Whisper  WhisperConfig  `yaml:"whisper"`
	Sink     SinkConfig     `yaml:"sink"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AudioConfig describes the frame source.
type AudioConfig struct {
	// File is the WAV file tailed for input. When empty and
	// UseMicrophone is set, frames come from the default recording
	// device instead.
	File          string `yaml:"file"`
	UseMicrophone bool   `yaml:"use_microphone"`
	SampleRate    int    `yaml:"sample_rate"`
	FrameMs       int    `yaml:"frame_ms"`
}

// WakeWordConfig describes wake phrase detection.
type WakeWordConfig struct {
	Phrases   []string `yaml:"phrases"`
	Threshold float64  `yaml:"threshold"`
}

// CaptureConfig describes utterance capture and end-of-speech policy.
type CaptureConfig struct {
	SilenceTimeoutMs int     `yaml:"silence_timeout_ms"`
	MaxUtteranceS    int     `yaml:"max_utterance_s"`
	CooldownS        float64 `yaml:"cooldown_s"`

	// ArchiveDir, when set, receives one WAV file per captured
	// utterance.
	ArchiveDir string `yaml:"archive_dir"`
}

// WhisperConfig describes the transcription engine.
type WhisperConfig struct {
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
}

// SinkConfig describes optional transcript forwarding.
type SinkConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// MetricsConfig describes the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoggingConfig controls diagnostic logging on stderr.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate: 16000,
			FrameMs:    80,
		},
		WakeWord: WakeWordConfig{
			Phrases:   []string{"hey sumika"},
			Threshold: 0.5,
		},
		Capture: CaptureConfig{
			SilenceTimeoutMs: 1000,
			MaxUtteranceS:    10,
			CooldownS:        1.0,
		},
		Whisper: WhisperConfig{
			Language: "en",
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads and parses the configuration file. Fields absent from the
// file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return config, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.WakeWord.Validate(); err != nil {
		return fmt.Errorf("wakeword config: %w", err)
	}

	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if c.Capture.MaxUtteranceS*1000 <= c.Capture.SilenceTimeoutMs {
		return fmt.Errorf("max_utterance_s (%d) must exceed silence_timeout_ms (%d)",
			c.Capture.MaxUtteranceS, c.Capture.SilenceTimeoutMs)
	}

	return nil
}

func (a *AudioConfig) Validate() error {
	if a.File == "" && !a.UseMicrophone {
		return fmt.Errorf("either file or use_microphone must be set")
	}

	if a.SampleRate < 8000 {
		return fmt.Errorf("sample_rate must be at least 8000 Hz, got %d", a.SampleRate)
	}

	if a.FrameMs < 10 {
		return fmt.Errorf("frame_ms must be at least 10, got %d", a.FrameMs)
	}

	return nil
}

func (w *WakeWordConfig) Validate() error {
	if len(w.Phrases) == 0 {
		return fmt.Errorf("at least one wake phrase is required")
	}

	if w.Threshold <= 0 || w.Threshold > 1 {
		return fmt.Errorf("threshold must be in (0, 1], got %f", w.Threshold)
	}

	return nil
}

func (c *CaptureConfig) Validate() error {
	if c.SilenceTimeoutMs < 1 {
		return fmt.Errorf("silence_timeout_ms must be positive, got %d", c.SilenceTimeoutMs)
	}

	if c.MaxUtteranceS < 1 {
		return fmt.Errorf("max_utterance_s must be positive, got %d", c.MaxUtteranceS)
	}

	if c.CooldownS < 0 {
		return fmt.Errorf("cooldown_s cannot be negative, got %f", c.CooldownS)
	}

	return nil
}

func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("level must be one of [debug, info, warn, error], got %q", l.Level)
	}
}

// FrameDuration returns the frame duration as a time.Duration.
func (a *AudioConfig) FrameDuration() time.Duration {
	return time.Duration(a.FrameMs) * time.Millisecond
}

// SilenceTimeout returns the silence timeout as a time.Duration.
func (c *CaptureConfig) SilenceTimeout() time.Duration {
	return time.Duration(c.SilenceTimeoutMs) * time.Millisecond
}

// MaxUtterance returns the maximum utterance duration as a time.Duration.
func (c *CaptureConfig) MaxUtterance() time.Duration {
	return time.Duration(c.MaxUtteranceS) * time.Second
}

// Cooldown returns the post-transcription cooldown as a time.Duration.
func (c *CaptureConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownS * float64(time.Second))
}
