// Package log provides structured logging for the estimation core, backed by
// rs/zerolog. The library is silent by default (Nop logger); applications
// opt in with Setup, after which estimators emit stage-level events and
// pkg/errors warnings are routed through the same logger.
package log

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/alina-malkova/sanctions-labor-markets/pkg/errors"
)

var (
	mu     sync.RWMutex
	logger = zerolog.Nop()
)

// Setup installs a JSON logger writing to w at the given level and routes
// pkg/errors warnings through it. Pass nil to log to stderr.
func Setup(w io.Writer, level string) {
	if w == nil {
		w = os.Stderr
	}

	mu.Lock()
	logger = zerolog.New(w).Level(toLevel(level)).With().Timestamp().Logger()
	mu.Unlock()

	errors.SetZerologWarnFunc(func(warning error) {
		ev := Logger().Warn()
		if obj, ok := warning.(zerolog.LogObjectMarshaler); ok {
			ev.EmbedObject(obj).Msg("estimation warning")
			return
		}
		ev.Err(warning).Msg("estimation warning")
	})
}

// Logger returns the current package logger.
func Logger() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := logger
	return &l
}

// With returns a logger pre-populated with the estimator name for
// per-model contextual logging.
func With(model string) zerolog.Logger {
	return Logger().With().Str(ModelNameKey, model).Logger()
}

func toLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
