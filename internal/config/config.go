package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	API     APIConfig     `yaml:"api"`
	Stream  StreamConfig  `yaml:"stream"`
	Socket  SocketConfig  `yaml:"socket"`
	Job     JobConfig     `yaml:"job"`
	History HistoryConfig `yaml:"history"`
	Logging LoggingConfig `yaml:"logging"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type StreamConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type SocketConfig struct {
	URL              string        `yaml:"url"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	MaxReconnects    int           `yaml:"max_reconnects"`
	ReconnectDelay   time.Duration `yaml:"reconnect_delay"`
}

type JobConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	TickInterval time.Duration `yaml:"tick_interval"`
}

type HistoryConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 30 * time.Second,
		},
		Stream: StreamConfig{
			Endpoint: "http://localhost:8000/streaming/convert",
		},
		Socket: SocketConfig{
			URL:              "ws://localhost:8000/ws/convert",
			HandshakeTimeout: 10 * time.Second,
			MaxReconnects:    3,
			ReconnectDelay:   2 * time.Second,
		},
		Job: JobConfig{
			Timeout:      0,
			TickInterval: time.Second,
		},
		History: HistoryConfig{
			Path: defaultHistoryPath(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func defaultHistoryPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "parsesaas.db"
	}
	return filepath.Join(dir, "parsesaas", "history.db")
}

// Load reads the YAML file at path over the built-in defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PARSESAAS_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("PARSESAAS_STREAM_URL"); v != "" {
		c.Stream.Endpoint = v
	}
	if v := os.Getenv("PARSESAAS_SOCKET_URL"); v != "" {
		c.Socket.URL = v
	}
	if v := os.Getenv("PARSESAAS_HISTORY_PATH"); v != "" {
		c.History.Path = v
	}
	if v := os.Getenv("PARSESAAS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api base url is required")
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api timeout must be non-negative")
	}
	if c.Stream.Endpoint == "" {
		return fmt.Errorf("stream endpoint is required")
	}
	if c.Socket.URL == "" {
		return fmt.Errorf("socket url is required")
	}
	if c.Socket.HandshakeTimeout <= 0 {
		return fmt.Errorf("socket handshake timeout must be positive")
	}
	if c.Socket.MaxReconnects < 0 {
		return fmt.Errorf("socket max reconnects must be non-negative")
	}
	if c.Socket.ReconnectDelay < 0 {
		return fmt.Errorf("socket reconnect delay must be non-negative")
	}
	if c.Job.Timeout < 0 {
		return fmt.Errorf("job timeout must be non-negative")
	}
	if c.Job.TickInterval <= 0 {
		return fmt.Errorf("job tick interval must be positive")
	}
	if c.History.Path == "" {
		return fmt.Errorf("history path is required")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s (valid: json, text)", c.Logging.Format)
	}

	return nil
}
