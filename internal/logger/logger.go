// Package logger configures the process-wide zerolog logger used by every
// component of the control plane.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the process-wide base logger. Initialize must be called once at
// startup before any component logger is derived from it.
var Log zerolog.Logger

// Initialize configures the global logger. pretty selects a human-readable
// console writer for local development; production deploys leave it false
// for JSON output.
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

	Log = log.With().Str("service", "aura-swarm").Logger()
	Log.Info().Str("level", logLevel.String()).Bool("pretty", pretty).Msg("logger initialized")
}

// Registry returns a child logger for the registry.
func Registry() *zerolog.Logger {
	l := Log.With().Str("component", "registry").Logger()
	return &l
}

// Identity returns a child logger for the identity adapter.
func Identity() *zerolog.Logger {
	l := Log.With().Str("component", "identity").Logger()
	return &l
}

// Orchestrator returns a child logger for the orchestrator driver.
func Orchestrator() *zerolog.Logger {
	l := Log.With().Str("component", "orchestrator").Logger()
	return &l
}

// Control returns a child logger for the control core.
func Control() *zerolog.Logger {
	l := Log.With().Str("component", "control").Logger()
	return &l
}

// Edge returns a child logger for the edge proxy.
func Edge() *zerolog.Logger {
	l := Log.With().Str("component", "edge").Logger()
	return &l
}
