package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/corewire/routeforge/pkg/config"
)

// Logger is a wrapper around logrus.Logger.
type Logger struct {
	*logrus.Logger
}

// New creates a new logger instance from the supplied logging configuration.
func New(cfg config.LoggingConfig) *Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	switch strings.ToLower(cfg.Output) {
	case "file":
		prefix := cfg.FilePrefix
		if prefix == "" {
			prefix = "routeforge"
		}
		logDir := "logs"
		if err := os.MkdirAll(logDir, 0755); err != nil {
			logger.Errorf("failed to create logs directory: %v", err)
			break
		}
		logPath := filepath.Join(logDir, prefix+".log")
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			logger.Errorf("failed to open log file: %v", err)
			break
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, file))
	default:
		logger.SetOutput(os.Stdout)
	}

	return &Logger{Logger: logger}
}

// NewDefault creates a logger with sane defaults.
func NewDefault(component string) *Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger}
}

// WithField returns a new log entry with a field.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Logger.WithField(key, value)
}

// WithFields returns a new log entry with multiple fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.Logger.WithFields(fields)
}

// WithRoute tags a log entry with a route's tenant id and route id.
func (l *Logger) WithRoute(tenantID, routeID string) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"route_id":  routeID,
	})
}
