package config

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type loggerState struct {
	once   sync.Once
	mu     sync.RWMutex
	logger *zap.Logger
}

// Logger returns the zap logger for this configuration, building it from
// Logging.Level on first use.
func (c *Config) Logger() *zap.Logger {
	c.logger.once.Do(func() {
		c.logger.mu.Lock()
		defer c.logger.mu.Unlock()
		if c.logger.logger == nil {
			c.logger.logger = buildLogger(c.Logging.Level)
		}
	})
	c.logger.mu.RLock()
	defer c.logger.mu.RUnlock()
	return c.logger.logger
}

// SetLogger replaces the logger. Tests use zaptest or zap.NewNop.
func (c *Config) SetLogger(l *zap.Logger) {
	c.logger.once.Do(func() {})
	c.logger.mu.Lock()
	defer c.logger.mu.Unlock()
	c.logger.logger = l
}

// Log writes a message when the configured verbosity is at least level.
// Level 0 is always written.
func (c *Config) Log(level int, format string, args ...interface{}) {
	if c == nil || level > c.Logging.Verbosity {
		return
	}
	c.Logger().Sugar().Infof(format, args...)
}

func buildLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.DisableStacktrace = true
	l, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}
