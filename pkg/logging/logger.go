// Package logging configures structured logging with zerolog.
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
	// LevelDebug logs every merge, duplicate and late enrichment.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs page registrations and lifecycle events.
	LevelInfo LogLevel = "info"

	// LevelWarn logs skipped records and failed enrichments.
	LevelWarn LogLevel = "warn"

	// LevelError logs failed listing pages only.
	LevelError LogLevel = "error"
)

// Component names used as the "component" field.
const (
	ComponentJoin      = "join-engine"
	ComponentClient    = "mangadex-client"
	ComponentRateLimit = "ratelimit"
	ComponentFeed      = "mangadex-feed"
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

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(string(cfg.Level)))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name to a zerolog.Level, defaulting to Info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// NewLogger creates a child of the global logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Context Fields:
//   - component: emitting package (join-engine, mangadex-client, ratelimit, mangadex-feed)
//   - manga_id: listing record id
//   - kind: enrichment kind (cover, author)
//   - offset, limit: listing window
//   - url: fetched URL
//   - status: HTTP status code
//   - error_class: client, server, rate_limit, network
//   - reason: why a listing record was skipped (decode, missing_relationship)
