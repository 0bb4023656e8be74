// control/logging.go
// Author: momentics <momentics@gmail.com>
//
// Package-wide structured logger shared by channels, selectors and tools.

package control

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

var globalLogger struct {
	sync.RWMutex
	logger *logrus.Logger
}

func init() {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	globalLogger.logger = l
}

// SetLogger replaces the package logger. A nil logger is ignored.
func SetLogger(l *logrus.Logger) {
	if l == nil {
		return
	}
	globalLogger.Lock()
	defer globalLogger.Unlock()
	globalLogger.logger = l
}

// Logger returns the package logger.
func Logger() *logrus.Logger {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	return globalLogger.logger
}

// Component returns an entry tagged with the given component name.
func Component(name string) *logrus.Entry {
	return Logger().WithField("component", name)
}

// ConfigureLogging applies level and format from cfg to the package logger.
func ConfigureLogging(cfg LogConfig) error {
	l := Logger()
	if cfg.Level != "" {
		lvl, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("control: log level: %w", err)
		}
		l.SetLevel(lvl)
	}
	switch cfg.Format {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("control: log format %q", cfg.Format)
	}
	return nil
}
