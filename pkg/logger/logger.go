package logger

import (
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dostenterprises/socketlink/pkg/config"
)

var (
	logger     *log.Logger
	fallback   *log.Logger
	fallbackMu sync.Once
)

// Init initializes the logger. verbose forces debug level, otherwise the
// configured log.level applies.
func Init(verbose bool) {
	logLevel, err := log.ParseLevel(config.GetString("log.level"))
	if err != nil {
		logLevel = log.InfoLevel
	}
	if verbose {
		logLevel = log.DebugLevel
	}

	logFile := config.GetString("log.file")

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		// If we can't create log file, just log to stderr
		f = os.Stderr
	}

	logger = log.NewWithOptions(f, log.Options{
		ReportTimestamp: true,
		Prefix:          "socketlink",
	})
	logger.SetLevel(logLevel)
}

// Debug logs a debug message
func Debug(msg string, args ...interface{}) {
	if logger != nil {
		logger.Debug(msg, args...)
	}
}

// Info logs an info message
func Info(msg string, args ...interface{}) {
	if logger != nil {
		logger.Info(msg, args...)
	}
}

// Warn logs a warning message
func Warn(msg string, args ...interface{}) {
	if logger != nil {
		logger.Warn(msg, args...)
	}
}

// Error logs an error message
func Error(msg string, args ...interface{}) {
	if logger != nil {
		logger.Error(msg, args...)
	}
}

// GetLogger returns the logger instance, nil before Init
func GetLogger() *log.Logger {
	return logger
}

// Default returns the initialized logger, or a stderr logger when Init
// has not run yet.
func Default() *log.Logger {
	if logger != nil {
		return logger
	}
	fallbackMu.Do(func() {
		fallback = log.NewWithOptions(os.Stderr, log.Options{Prefix: "socketlink"})
	})
	return fallback
}
