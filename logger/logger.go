package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration
type Config struct {
	Debug      bool
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New creates a logger writing to stderr and to a rotating file in cfg.Dir.
// The returned closer flushes and closes the log file.
func New(cfg Config) (*log.Logger, io.Closer, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, nil, err
	}

	fileWriter := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, "lifespan.log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}

	level := log.InfoLevel
	if cfg.Debug {
		level = log.DebugLevel
	}

	l := log.NewWithOptions(io.MultiWriter(os.Stderr, fileWriter), log.Options{
		ReportCaller:    cfg.Debug,
		ReportTimestamp: true,
		Level:           level,
		Prefix:          "lifespan",
	})

	return l, fileWriter, nil
}

// Discard returns a logger that drops everything, for tests and for callers
// that pass no logger
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// Component derives a logger for a named component
func Component(l *log.Logger, name string) *log.Logger {
	if l == nil {
		return Discard()
	}

	return l.WithPrefix(name)
}
