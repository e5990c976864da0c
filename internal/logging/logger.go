package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// Config holds logger configuration
type Config struct {
	Level      logrus.Level
	OutputFile string // Path to log file (empty = stderr only)
	MaxSize    int64  // Max size in bytes before rotation (default: 10MB)
	MaxBackups int    // Number of old log files to keep (default: 3)
	JSONFormat bool   // Force JSON output even on a terminal
}

// New creates a logrus logger writing to stderr and, optionally, a rotated log file.
// The returned closer releases the log file and is never nil.
func New(config Config) (*logrus.Logger, io.Closer, error) {
	if config.MaxSize == 0 {
		config.MaxSize = 10 * 1024 * 1024 // 10MB
	}
	if config.MaxBackups == 0 {
		config.MaxBackups = 3
	}

	logger := logrus.New()
	logger.SetLevel(config.Level)

	writers := []io.Writer{os.Stderr}
	var closer io.Closer = nopCloser{}

	if config.OutputFile != "" {
		dir := filepath.Dir(config.OutputFile)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}

		if err := rotateIfNeeded(config); err != nil {
			return nil, nil, fmt.Errorf("failed to rotate logs: %w", err)
		}

		file, err := os.OpenFile(config.OutputFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", config.OutputFile, err)
		}
		writers = append(writers, file)
		closer = file
	}

	logger.SetOutput(io.MultiWriter(writers...))

	// Human-readable output on an interactive terminal, JSON for cron and CI
	if config.JSONFormat || !term.IsTerminal(int(os.Stderr.Fd())) {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger, closer, nil
}

// rotateIfNeeded moves an oversized log file aside, keeping MaxBackups old copies
func rotateIfNeeded(config Config) error {
	info, err := os.Stat(config.OutputFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	if info.Size() < config.MaxSize {
		return nil
	}

	for i := config.MaxBackups - 1; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", config.OutputFile, i)
		newPath := fmt.Sprintf("%s.%d", config.OutputFile, i+1)
		if _, err := os.Stat(oldPath); err == nil {
			os.Rename(oldPath, newPath) // Ignore error, file might not exist
		}
	}

	backupPath := fmt.Sprintf("%s.1", config.OutputFile)
	if err := os.Rename(config.OutputFile, backupPath); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	return nil
}

// Discard returns a logger that drops everything, for tests and library callers
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// DefaultConfig returns the configuration used by the CLI
func DefaultConfig(verbose bool) Config {
	level := logrus.InfoLevel
	if verbose {
		level = logrus.DebugLevel
	}
	return Config{Level: level}
}

// FileConfig returns a configuration that also writes to a log file under dir
func FileConfig(dir string, verbose bool) Config {
	config := DefaultConfig(verbose)
	timestamp := time.Now().Format("2006-01-02")
	config.OutputFile = filepath.Join(dir, fmt.Sprintf("confevo_%s.log", timestamp))
	config.MaxSize = 50 * 1024 * 1024 // 50MB
	config.MaxBackups = 10
	return config
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
