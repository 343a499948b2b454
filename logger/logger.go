package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	once sync.Once
	log  *zap.Logger
)

// Get returns the process-wide logger, building it on first use.
// STACKEX_LOG_LEVEL selects the level (debug|info|warn|error), defaulting to info.
func Get() *zap.Logger {
	once.Do(func() {
		level := zapcore.InfoLevel
		if lvl := os.Getenv("STACKEX_LOG_LEVEL"); lvl != "" {
			if parsed, err := zapcore.ParseLevel(lvl); err == nil {
				level = parsed
			}
		}

		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(level)
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

		l, err := cfg.Build()
		if err != nil {
			// Fall back to a no-op logger rather than refusing to start.
			l = zap.NewNop()
		}
		log = l
	})
	return log
}

// Named returns a child of the process-wide logger with the given name.
func Named(name string) *zap.Logger {
	return Get().Named(name)
}
