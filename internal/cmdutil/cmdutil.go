// Package cmdutil holds the small pieces of setup shared by every
// goslip command-line tool: dotted-quad argument parsing, logger
// construction, and serial link setup.
package cmdutil

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/dantte-lp/goslip/internal/config"
	"github.com/dantte-lp/goslip/internal/dns"
	"github.com/dantte-lp/goslip/internal/errs"
	"github.com/dantte-lp/goslip/internal/randid"
	"github.com/dantte-lp/goslip/internal/serial"
	"github.com/dantte-lp/goslip/internal/slip"
)

// ExitError pairs an error with the process exit code a cmd/* tool
// should report for it, so each tool maps its error kinds to stable
// exit codes in one place.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError wraps err with the exit code a cmd/* main() should use.
func NewExitError(code int, err error) *ExitError {
	return &ExitError{Code: code, Err: err}
}

// ExitCode extracts the code from an *ExitError chain, defaulting to 1
// (cobra's own usage/argument errors, which carry no *ExitError).
func ExitCode(err error) int {
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 1
}

// ParseIPv4 parses a dotted-quad argument like "10.0.2.15" into its four
// octets. Unlike net.ParseIP, it rejects IPv6 and any non-numeric label.
func ParseIPv4(s string) ([4]byte, error) {
	var out [4]byte

	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return out, fmt.Errorf("cmdutil: %q is not a dotted-quad IPv4 address", s)
	}

	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > 255 {
			return out, fmt.Errorf("cmdutil: octet %q in %q out of range: %w", p, s, err)
		}
		out[i] = byte(v)
	}

	return out, nil
}

// NewLogger builds a *slog.Logger from a LogConfig: a text or JSON
// handler on stderr (stdout is reserved for the tool's actual reply
// output, e.g. ping's per-reply lines or nslookup's resolved address).
func NewLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.Level)}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

// OpenLink opens the configured serial device and wraps it in a SLIP
// link. Callers are responsible for closing the returned link. opts are
// forwarded to slip.NewLink, e.g. slip.WithMetrics for tools that expose a
// Prometheus endpoint.
func OpenLink(logger *slog.Logger, cfg config.SerialConfig, opts ...slip.LinkOption) (*slip.Link, error) {
	port, err := serial.Open(cfg.Device, cfg.Baud)
	if err != nil {
		return nil, fmt.Errorf("cmdutil: open serial device: %w", err)
	}
	return slip.NewLink(logger, port, opts...), nil
}

// ResolveRetry resolves name via dns.Resolve, making up to retries total
// attempts on the two failures a lost or mangled UDP reply produces (no
// usable answer, checksum mismatch) — UDP over the link is never
// retransmitted, so reissuing the query is the only recovery. Any other
// failure is returned immediately.
func ResolveRetry(logger *slog.Logger, link *slip.Link, rng *randid.Source, src, resolver [4]byte, name string, retries int, opts ...dns.ResolveOption) ([4]byte, error) {
	if retries < 1 {
		retries = 1
	}

	var result [4]byte
	var err error
	for attempt := 0; attempt < retries; attempt++ {
		result, err = dns.Resolve(logger, link, rng, src, resolver, name, opts...)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, errs.ErrNoAnswers) && !errors.Is(err, errs.ErrBadAnswer) {
			return result, err
		}
		logger.Debug("cmdutil: reissuing dns query", "name", name, "attempt", attempt+1, "error", err)
	}
	return result, err
}

// LoadConfig loads configuration via config.Load. An empty path skips the YAML file
// layer (config.Load's own documented behavior) but still applies
// defaults and GOSLIP_-prefixed environment overrides, so a plain
// invocation with no --config flag still honors the environment.
func LoadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("cmdutil: load config from %s: %w", path, err)
	}
	return cfg, nil
}
