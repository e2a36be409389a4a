// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup builds the process logger. The application owns the returned handle
// and passes it to the components it constructs; the global zerolog logger is
// updated as well so that packages falling back to NewLogger agree with it.
func Setup(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	level := ParseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts LogLevel to zerolog.Level. Unknown values map to info.
func ParseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// LevelFromVerbosity maps the numeric debug verbosity carried by ISS
// credentials (0 - quiet, 1 - debug output) to a LogLevel.
func LevelFromVerbosity(v int) LogLevel {
	if v > 0 {
		return LevelDebug
	}
	return LevelInfo
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: request URLs, cache hits and misses, cookie expiry checks, page offsets.
//
// Info: successful authentication, instrument counts, per-instrument totals
// and completion, sink file resolution.
//
// Warn: failed authentication, malformed catalog payloads, retried requests,
// an instrument aborted after a page failure.
//
// Error: exhausted retries, sink write failures, configuration errors.
//
// Context Fields:
//   - component: owning package (iss-client, iss-auth, iss-sink, ...)
//   - url: request URL (credentials never logged)
//   - secid: instrument id
//   - start, rows, total, page_size: pagination state
//   - status: HTTP status code
//   - error_class: client, server, rate_limit, network
