// Package logger wraps zerolog with the component-scoped child logger
// pattern used throughout this module: one process-global logger,
// specialised per subsystem via Str("component", ...).
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var Log zerolog.Logger

// Initialize configures the global logger. level is one of
// trace/debug/info/warn/error; pretty selects a human-readable console
// writer instead of JSON (intended for local development).
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().Str("service", "rnode-server").Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("logger initialized")
}

// GetLogger returns the global logger instance.
func GetLogger() *zerolog.Logger { return &Log }

// Router returns a logger scoped to the routing/dispatch subsystem.
func Router() *zerolog.Logger {
	l := Log.With().Str("component", "router").Logger()
	return &l
}

// Bridge returns a logger scoped to the cross-runtime handler bridge.
func Bridge() *zerolog.Logger {
	l := Log.With().Str("component", "bridge").Logger()
	return &l
}

// WebSocket returns a logger scoped to the WebSocket manager.
func WebSocket() *zerolog.Logger {
	l := Log.With().Str("component", "websocket").Logger()
	return &l
}

// Cache returns a logger scoped to the cache manager.
func Cache() *zerolog.Logger {
	l := Log.With().Str("component", "cache").Logger()
	return &l
}

// HTTP returns a logger scoped to the HTTP transport.
func HTTP() *zerolog.Logger {
	l := Log.With().Str("component", "http").Logger()
	return &l
}
