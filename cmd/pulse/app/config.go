package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/pulse-hrv/internal/capture/ffmpeg"
	"github.com/roman-kulish/pulse-hrv/internal/session"
)

const (
	defaultStorageDir      = "data"
	defaultMaxBatchSize    = 100
	defaultTraceBufferSize = 300
	defaultSubject         = "pulse"
)

// Config represents the main application configuration
type Config struct {
	Settings Settings       `yaml:"settings" json:"-"`
	Capture  ffmpeg.Config  `yaml:"capture" json:"capture"`
	Analyzer session.Config `yaml:"analyzer" json:"analyzer"`
	Storage  StorageConfig  `yaml:"storage" json:"-"`
	Stream   StreamConfig   `yaml:"stream" json:"-"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel slog.Level `yaml:"logLevel"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory   string `yaml:"dataDirectory"`
	MaxBatchSize    int    `yaml:"maxBatchSize"`    // trace points per insert transaction
	TraceBufferSize int    `yaml:"traceBufferSize"` // trace points held before a flush
}

// StreamConfig represents the optional NATS publisher settings
type StreamConfig struct {
	Enabled bool   `yaml:"enabled"`
	NatsURL string `yaml:"natsURL"`
	Subject string `yaml:"subject"`
}

// DefaultConfig returns a configuration with every optional value set
func DefaultConfig() *Config {
	return &Config{
		Settings: Settings{LogLevel: slog.LevelInfo},
		Analyzer: session.DefaultConfig(),
		Storage: StorageConfig{
			DataDirectory:   defaultStorageDir,
			MaxBatchSize:    defaultMaxBatchSize,
			TraceBufferSize: defaultTraceBufferSize,
		},
		Stream: StreamConfig{Subject: defaultSubject},
	}
}

// LoadConfig reads a yaml configuration file on top of DefaultConfig
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()

	return ParseConfig(f)
}

// ParseConfig decodes a yaml configuration on top of DefaultConfig and
// validates it. Unknown keys are rejected.
func ParseConfig(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	config := DefaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err = decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err = config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	if err := c.Analyzer.Validate(); err != nil {
		return fmt.Errorf("analyzer: %w", err)
	}
	if c.Storage.MaxBatchSize <= 0 {
		return fmt.Errorf("storage: max batch size must be positive: %d", c.Storage.MaxBatchSize)
	}
	if c.Storage.TraceBufferSize <= 0 {
		return fmt.Errorf("storage: trace buffer size must be positive: %d", c.Storage.TraceBufferSize)
	}
	if c.Stream.Enabled && c.Stream.NatsURL == "" {
		return errors.New("stream: natsURL is required when enabled")
	}
	if c.Stream.Enabled && c.Stream.Subject == "" {
		return errors.New("stream: subject is required when enabled")
	}
	return nil
}
