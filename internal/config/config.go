// Package config manages the goslip command-line tools' configuration
// using koanf/v2.
//
// Supports defaults, YAML files, and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds configuration shared by every goslip command-line tool:
// the serial link parameters, logging, the optional metrics endpoint,
// and the DNS retry policy.
type Config struct {
	Serial  SerialConfig  `koanf:"serial"`
	Log     LogConfig     `koanf:"log"`
	Metrics MetricsConfig `koanf:"metrics"`
	DNS     DNSConfig     `koanf:"dns"`
}

// SerialConfig holds the raw serial link parameters.
type SerialConfig struct {
	// Device is the path to the serial device (e.g., "/dev/ttyUSB0").
	Device string `koanf:"device"`
	// Baud is the line rate in bits per second.
	Baud int `koanf:"baud"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// MetricsConfig holds the optional Prometheus metrics endpoint
// configuration. Only the long-running tools (ping, minisock) start this
// listener; nslookup and ntpdate exit before it would ever be scraped.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g.,
	// ":9100"), used only when a tool runs with --metrics. An empty Addr
	// is passed to net/http as is, which listens on ":http".
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// DNSConfig holds the resolution retry policy used by nslookup and the
// embedded resolvers in minisock and ntpdate.
type DNSConfig struct {
	// Retries is the total number of resolution attempts before giving
	// up on NoAnswers/BadAnswer.
	Retries int `koanf:"retries"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Serial: SerialConfig{
			Device: "/dev/ttyUSB0",
			Baud:   9600,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr: "",
			Path: "/metrics",
		},
		DNS: DNSConfig{
			Retries: 3,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for goslip configuration.
// Variables are named GOSLIP_<section>_<key>, e.g., GOSLIP_SERIAL_DEVICE.
const envPrefix = "GOSLIP_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (GOSLIP_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults. An empty path skips
// the file layer so the CLI tools work with only defaults and env vars.
//
// Environment variable mapping:
//
//	GOSLIP_SERIAL_DEVICE -> serial.device
//	GOSLIP_SERIAL_BAUD   -> serial.baud
//	GOSLIP_LOG_LEVEL     -> log.level
//	GOSLIP_LOG_FORMAT    -> log.format
//	GOSLIP_METRICS_ADDR  -> metrics.addr
//	GOSLIP_DNS_RETRIES   -> dns.retries
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// envKeyMapper transforms GOSLIP_SERIAL_DEVICE -> serial.device.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"serial.device": defaults.Serial.Device,
		"serial.baud":   defaults.Serial.Baud,
		"log.level":     defaults.Log.Level,
		"log.format":    defaults.Log.Format,
		"metrics.addr":  defaults.Metrics.Addr,
		"metrics.path":  defaults.Metrics.Path,
		"dns.retries":   defaults.DNS.Retries,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyDevice indicates the serial device path is empty.
	ErrEmptyDevice = errors.New("serial.device must not be empty")

	// ErrInvalidBaud indicates the baud rate is not a supported rate.
	ErrInvalidBaud = errors.New("serial.baud must be a supported rate")

	// ErrInvalidRetries indicates a negative DNS retry count.
	ErrInvalidRetries = errors.New("dns.retries must be >= 0")
)

// Validate checks the configuration for logical errors.
func Validate(cfg *Config) error {
	if cfg.Serial.Device == "" {
		return ErrEmptyDevice
	}
	if cfg.Serial.Baud <= 0 {
		return ErrInvalidBaud
	}
	if cfg.DNS.Retries < 0 {
		return ErrInvalidRetries
	}
	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
