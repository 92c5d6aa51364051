// Package logger provides structured logging for Compose Doctor using Logrus.
package logger

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Global logger instance
var (
	log *logrus.Logger
	mu  sync.RWMutex
)

// init creates a default logger instance
func init() {
	log = logrus.New()
	log.SetLevel(logrus.InfoLevel)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	log.SetOutput(os.Stdout)
}

// Initialize sets up the global logger with the specified configuration.
// This function is thread-safe and can be called multiple times.
// Parameters:
//   - level: Log level (debug, info, warn, error)
//   - format: Output format (json, text)
func Initialize(level, format string) error {
	mu.Lock()
	defer mu.Unlock()

	l := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	l.SetLevel(lvl)

	switch format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	case "text":
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	default:
		return fmt.Errorf("invalid log format %q: must be json or text", format)
	}

	l.SetOutput(os.Stdout)
	log = l

	return nil
}

// Get returns the global logger instance
func Get() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// WithFields returns a logger entry with structured fields.
// Use this to add context to log messages:
//
//	logger.WithFields(logrus.Fields{
//	    "component": "tracker",
//	    "service": "api",
//	}).Info("Cooldown started")
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Get().WithFields(fields)
}

// WithField returns a logger entry with a single structured field
func WithField(key string, value interface{}) *logrus.Entry {
	return Get().WithField(key, value)
}

// WithError returns a logger entry with an error field
func WithError(err error) *logrus.Entry {
	return Get().WithError(err)
}

// Helper functions for direct logging

// Debug logs a message at level Debug
func Debug(args ...interface{}) {
	Get().Debug(args...)
}

// Info logs a message at level Info
func Info(args ...interface{}) {
	Get().Info(args...)
}

// Warn logs a message at level Warn
func Warn(args ...interface{}) {
	Get().Warn(args...)
}

// Error logs a message at level Error
func Error(args ...interface{}) {
	Get().Error(args...)
}

// Fatal logs a message at level Fatal then calls os.Exit(1)
func Fatal(args ...interface{}) {
	Get().Fatal(args...)
}

// Debugf logs a formatted message at level Debug
func Debugf(format string, args ...interface{}) {
	Get().Debugf(format, args...)
}

// Infof logs a formatted message at level Info
func Infof(format string, args ...interface{}) {
	Get().Infof(format, args...)
}

// Warnf logs a formatted message at level Warn
func Warnf(format string, args ...interface{}) {
	Get().Warnf(format, args...)
}

// Errorf logs a formatted message at level Error
func Errorf(format string, args ...interface{}) {
	Get().Errorf(format, args...)
}

// Fatalf logs a formatted message at level Fatal then calls os.Exit(1)
func Fatalf(format string, args ...interface{}) {
	Get().Fatalf(format, args...)
}

// SetLevel sets the log level programmatically
func SetLevel(level logrus.Level) {
	Get().SetLevel(level)
}
