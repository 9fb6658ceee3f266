// Package logger contains logger infrastructure
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the logger outputs
type Options struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// New creates a new logger writing to the console and, when File is set, to a rotated file
func New(opts Options) zerolog.Logger {
	// Set log level
	logLevel := parseLogLevel(opts.Level)
	zerolog.SetGlobalLevel(logLevel)

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stdout}
	if opts.File != "" {
		out = zerolog.MultiLevelWriter(out, newFileWriter(opts))
	}

	return zerolog.New(out).
		With().
		Timestamp().
		Caller().
		Logger()
}

// newFileWriter returns a size-rotated JSON log file
func newFileWriter(opts Options) io.Writer {
	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 50
	}
	return &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxSize,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}
}

// parseLogLevel parses log level string to zerolog.Level
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
