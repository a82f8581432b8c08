package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/kingrea/configcrunch/internal/config"
)

// FileName is the log file written below config.StateDir/logs when file
// logging is enabled.
const FileName = "crunch.log"

// Logger is a configured logrus logger that may also append to a file so
// runs can be inspected after the terminal output is gone.
type Logger struct {
	*log.Logger
	file *os.File
}

// New builds a logger from cfg.Log writing to out, plus the log file when
// cfg.Log.File is set.
func New(cfg *config.Config, out io.Writer) (*Logger, error) {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	logger := log.New()
	logger.SetLevel(level)
	if cfg.Log.Format == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	l := &Logger{Logger: logger}
	if !cfg.Log.File {
		logger.SetOutput(out)
		return l, nil
	}
	if err := os.MkdirAll(cfg.LogsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(cfg.LogsDir(), FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	l.file = f
	logger.SetOutput(io.MultiWriter(out, f))
	return l, nil
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
