package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Logger wraps slog.Logger with additional functionality
type Logger struct {
	*slog.Logger
}

// LogLevel represents the logging level
type LogLevel string

const (
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

func parseLevel(level LogLevel) slog.Level {
	switch strings.ToUpper(string(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a new logger instance with the specified level, writing to stderr
func New(level LogLevel) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	// Logs go to stderr so TUI rendering on stdout is not disrupted
	handler := slog.NewTextHandler(os.Stderr, opts)
	return &Logger{Logger: slog.New(handler)}
}

// NewWithFile creates a logger that writes to a file when quiet mode is enabled
func NewWithFile(level LogLevel, quiet bool, logFile string) (*Logger, error) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var writer io.Writer

	if quiet {
		if logFile == "" {
			timestamp := time.Now().Format("2006-01-02_15-04-05")
			logFile = fmt.Sprintf("minichat_%s.log", timestamp)
		}

		if dir := filepath.Dir(logFile); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create log directory: %w", err)
			}
		}

		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", logFile, err)
		}
		writer = file
	} else {
		writer = os.Stderr
	}

	handler := slog.NewTextHandler(writer, opts)
	return &Logger{Logger: slog.New(handler)}, nil
}

// WithComponent adds a component field to all log messages
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With("component", component)}
}

// WithSession adds a session id field to all log messages
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{Logger: l.Logger.With("session", sessionID)}
}
