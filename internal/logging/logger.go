package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger represents a logger instance
type Logger = *logrus.Logger

// Fields represents structured logging fields
type Fields = logrus.Fields

// New creates a logger for the given level and format.
// Unknown levels fall back to info, unknown formats to text.
func New(level, format string) *logrus.Logger {
	return NewWithOutput(level, format, os.Stderr)
}

// NewWithOutput is New writing to w.
func NewWithOutput(level, format string, w io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	if strings.EqualFold(format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
