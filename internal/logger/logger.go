package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance. It discards everything until
	// Init is called so library code and tests stay quiet.
	Logger = zerolog.Nop()
)

// Init initializes the global logger writing JSON lines to stdout
func Init(level string) {
	InitWithWriter(level, os.Stdout)
}

// InitWithWriter initializes the global logger on the given writer
func InitWithWriter(level string, out io.Writer) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || logLevel == zerolog.NoLevel {
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	// Pretty console logging in development
	if os.Getenv("ENV") == "development" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	Logger = zerolog.New(out).
		With().
		Timestamp().
		Caller().
		Str("service", "blobship").
		Logger()

	Logger.Info().
		Str("level", logLevel.String()).
		Msg("logger initialized")
}

// WithComponent returns a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithRequestID returns a logger with a request ID field
func WithRequestID(requestID string) zerolog.Logger {
	return Logger.With().Str("request_id", requestID).Logger()
}

// WithObjectKey returns a logger scoped to one uploaded object
func WithObjectKey(component, key string) zerolog.Logger {
	return Logger.With().
		Str("component", component).
		Str("object_key", key).
		Logger()
}
