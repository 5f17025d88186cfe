package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger

	// open log files, closed by Close
	runFile *os.File
	errFile *os.File
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level Level

	// Console output; defaults to os.Stderr so command output stays clean
	// on stdout.
	Output io.Writer

	// LogDir, when set, enables the per-run log files: one full run log
	// and one error-only log, both timestamped per invocation.
	LogDir string
}

// Init initializes the global logger. When cfg.LogDir is set it also opens
// the per-run log file and the error-only log file for this invocation.
func Init(cfg Config) error {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	console := zerolog.ConsoleWriter{
		Out:        output,
		TimeFormat: time.RFC3339,
	}

	writers := []io.Writer{console}

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		stamp := time.Now().Format("20060102-150405")

		var err error
		runFile, err = os.OpenFile(
			filepath.Join(cfg.LogDir, fmt.Sprintf("run-%s.log", stamp)),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open run log: %w", err)
		}

		errFile, err = os.OpenFile(
			filepath.Join(cfg.LogDir, fmt.Sprintf("run-%s.err.log", stamp)),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open error log: %w", err)
		}

		writers = append(writers,
			zerolog.ConsoleWriter{Out: runFile, TimeFormat: time.RFC3339, NoColor: true},
			&MinLevelWriter{
				Writer: zerolog.ConsoleWriter{Out: errFile, TimeFormat: time.RFC3339, NoColor: true},
				Min:    zerolog.WarnLevel,
			})
	}

	Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	return nil
}

// Close closes the per-run log files, if open.
func Close() {
	if runFile != nil {
		runFile.Close()
		runFile = nil
	}
	if errFile != nil {
		errFile.Close()
		errFile = nil
	}
}

// WithSite creates a child logger carrying the site being migrated, so
// every record written during a migration names its site.
func WithSite(site string) zerolog.Logger {
	return Logger.With().Str("site", site).Logger()
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}
