package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dantte-lp/goslip/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Serial.Device != "/dev/ttyUSB0" {
		t.Errorf("Serial.Device = %q, want %q", cfg.Serial.Device, "/dev/ttyUSB0")
	}
	if cfg.Serial.Baud != 9600 {
		t.Errorf("Serial.Baud = %d, want %d", cfg.Serial.Baud, 9600)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}
	if cfg.DNS.Retries != 3 {
		t.Errorf("DNS.Retries = %d, want %d", cfg.DNS.Retries, 3)
	}

	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
serial:
  device: "/dev/ttyS1"
  baud: 115200
log:
  level: "debug"
  format: "json"
metrics:
  addr: ":9200"
  path: "/custom-metrics"
dns:
  retries: 5
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Serial.Device != "/dev/ttyS1" {
		t.Errorf("Serial.Device = %q, want %q", cfg.Serial.Device, "/dev/ttyS1")
	}
	if cfg.Serial.Baud != 115200 {
		t.Errorf("Serial.Baud = %d, want %d", cfg.Serial.Baud, 115200)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}
	if cfg.DNS.Retries != 5 {
		t.Errorf("DNS.Retries = %d, want %d", cfg.DNS.Retries, 5)
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	yamlContent := `
serial:
  device: "/dev/ttyS2"
log:
  level: "warn"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Serial.Device != "/dev/ttyS2" {
		t.Errorf("Serial.Device = %q, want %q", cfg.Serial.Device, "/dev/ttyS2")
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	// Defaults preserved.
	if cfg.Serial.Baud != 9600 {
		t.Errorf("Serial.Baud = %d, want default %d", cfg.Serial.Baud, 9600)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "text")
	}
	if cfg.DNS.Retries != 3 {
		t.Errorf("DNS.Retries = %d, want default %d", cfg.DNS.Retries, 3)
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Serial.Device != "/dev/ttyUSB0" {
		t.Errorf("Serial.Device = %q, want default", cfg.Serial.Device)
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "empty device",
			modify: func(cfg *config.Config) {
				cfg.Serial.Device = ""
			},
			wantErr: config.ErrEmptyDevice,
		},
		{
			name: "zero baud",
			modify: func(cfg *config.Config) {
				cfg.Serial.Baud = 0
			},
			wantErr: config.ErrInvalidBaud,
		},
		{
			name: "negative retries",
			modify: func(cfg *config.Config) {
				cfg.DNS.Retries = -1
			},
			wantErr: config.ErrInvalidRetries,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/config.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	// Cannot be parallel: modifies process-wide environment state.
	yamlContent := `
serial:
  device: "/dev/ttyS0"
log:
  level: "info"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("GOSLIP_SERIAL_DEVICE", "/dev/ttyACM0")
	t.Setenv("GOSLIP_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Serial.Device != "/dev/ttyACM0" {
		t.Errorf("Serial.Device = %q, want %q (from env)", cfg.Serial.Device, "/dev/ttyACM0")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (from env)", cfg.Log.Level, "debug")
	}
}

// writeTemp creates a temporary YAML file and returns its path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "goslip.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
