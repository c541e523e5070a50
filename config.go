package birdisle

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file form of the instance options
//
//	addr: 127.0.0.1:6390
//	idle_timeout: 5m
//	shards: 32
//	scripting: true
//	expiry:
//	  interval: 100ms
//	  sample: 20
//	log:
//	  level: info
//	  format: text
type Config struct {
	Addr        string        `yaml:"addr"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	Shards      int           `yaml:"shards"`
	Scripting   *bool         `yaml:"scripting"`
	Expiry      ExpiryConfig  `yaml:"expiry"`
	Log         LogConfig     `yaml:"log"`
}

// ExpiryConfig tunes the active expiry cycle
type ExpiryConfig struct {
	Interval *time.Duration `yaml:"interval"`
	Sample   int            `yaml:"sample"`
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig reads a YAML configuration file. Unknown fields are
// rejected; an empty file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return ParseConfig(content)
}

// ParseConfig decodes a YAML configuration document
func ParseConfig(content []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.IdleTimeout < 0 {
		return invalidOption("idle_timeout", "%s is negative", c.IdleTimeout)
	}
	if c.Shards < 0 {
		return invalidOption("shards", "%d is negative", c.Shards)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return invalidOption("log.format", "unknown format %q", c.Log.Format)
	}
	return nil
}

// Options converts the file configuration to instance options. Logs go to
// w, or stderr when w is nil.
func (c *Config) Options(w io.Writer) []Option {
	opts := make([]Option, 0, 6)
	if c.Addr != "" {
		opts = append(opts, WithAddr(c.Addr))
	}
	if c.IdleTimeout > 0 {
		opts = append(opts, WithIdleTimeout(c.IdleTimeout))
	}
	if c.Shards > 0 {
		opts = append(opts, WithShardCount(c.Shards))
	}
	if c.Scripting != nil {
		opts = append(opts, WithScripting(*c.Scripting))
	}
	if c.Expiry.Interval != nil {
		opts = append(opts, WithExpiryCycle(*c.Expiry.Interval, c.Expiry.Sample))
	}
	opts = append(opts, WithLogger(NewSlogLogger(c.Log.build(w))))
	return opts
}

func (lc LogConfig) build(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: parseLevel(lc.Level)}
	if strings.EqualFold(lc.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
