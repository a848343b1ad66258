// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Config selects level, format and destination.
type Config struct {
	Level  string `mapstructure:"level" json:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Format string `mapstructure:"format" json:"format" validate:"omitempty,oneof=json text"`
	// File appends to a log file instead of stderr when set.
	File string `mapstructure:"file" json:"file"`
}

var logger = log.New()

// Configure applies cfg to the shared logger. It returns a closer for the log
// file, which is a no-op when logging to stderr.
func Configure(cfg Config) (io.Closer, error) {
	level := log.InfoLevel
	if cfg.Level != "" {
		parsed, err := log.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		logger.Formatter = &log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		}
	case "json":
		logger.Formatter = &log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		}
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	if cfg.File == "" {
		logger.Out = os.Stderr
		return io.NopCloser(nil), nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
	}
	logger.Out = f
	return f, nil
}

// SetOutput redirects the shared logger, mainly for tests and the terminal UI.
func SetOutput(w io.Writer) {
	logger.Out = w
}

// Logger returns the shared logger.
func Logger() *log.Logger {
	return logger
}

// For returns an entry tagged with the calling component.
func For(component string) *log.Entry {
	return logger.WithField("component", component)
}

// Caller returns an entry tagged with the calling function, for one-off
// diagnostics where a component name is not enough.
func Caller() *log.Entry {
	pc, file, line, _ := runtime.Caller(1)
	fn := runtime.FuncForPC(pc)
	name := "unknown"
	if fn != nil {
		name = fn.Name()
	}
	return logger.WithFields(log.Fields{
		"function": name,
		"file":     fmt.Sprintf("%s:%d", filepath.Base(file), line),
	})
}
