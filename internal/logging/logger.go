// Package logging provides structured logging with file and console output.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration
type Config struct {
	LogDir  string // Directory for log files (empty disables file output)
	Level   string // Minimum log level (default: info)
	Console bool   // Also log to console
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		LogDir:  filepath.Join(home, ".cueflow", "logs"),
		Level:   "info",
		Console: true,
	}
}

// New creates a logger writing to a date-stamped file and optionally the
// console. The returned close function flushes and closes the log file.
func New(cfg *Config) (zerolog.Logger, func() error, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var writers []io.Writer
	var file *os.File

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		logPath := filepath.Join(cfg.LogDir, fmt.Sprintf("cueflow_%s.log", time.Now().Format("2006-01-02")))
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		writers = append(writers, file)
	}

	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		})
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(io.MultiWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Str("app", "cueflow").
		Logger()

	closeFn := func() error {
		if file != nil {
			return file.Close()
		}
		return nil
	}

	return logger, closeFn, nil
}
