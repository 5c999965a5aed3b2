package utils

import (
	"fmt"
	"log"
	"os"
	"sync"
)

// Logger provides leveled logging on top of the standard log package.
// Debug output is suppressed unless verbose mode is enabled.
type Logger struct {
	verbose bool
	mu      sync.RWMutex
}

var (
	globalLogger *Logger
	loggerOnce   sync.Once
)

// GetLogger returns the process-wide logger instance.
func GetLogger() *Logger {
	loggerOnce.Do(func() {
		globalLogger = &Logger{}
	})
	return globalLogger
}

// SetVerbose enables or disables debug output.
func (l *Logger) SetVerbose(verbose bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verbose = verbose
}

// IsVerbose reports whether debug output is enabled.
func (l *Logger) IsVerbose() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.verbose
}

// Debug logs a debug message, only when verbose mode is on.
func (l *Logger) Debug(format string, args ...any) {
	if l.IsVerbose() {
		log.Printf("[DEBUG] "+format, args...)
	}
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...any) {
	log.Printf("[INFO] "+format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...any) {
	log.Printf("[WARN] "+format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	log.Printf("[ERROR] "+format, args...)
}

// Debugf logs a debug message through the global logger.
func Debugf(format string, args ...any) {
	GetLogger().Debug(format, args...)
}

// Infof logs an informational message through the global logger.
func Infof(format string, args ...any) {
	GetLogger().Info(format, args...)
}

// Warnf logs a warning message through the global logger.
func Warnf(format string, args ...any) {
	GetLogger().Warn(format, args...)
}

// Errorf logs an error message through the global logger.
func Errorf(format string, args ...any) {
	GetLogger().Error(format, args...)
}

// SetVerboseMode configures the global logger and standard log flags in
// one call. Verbose mode adds timestamps and source locations.
func SetVerboseMode(verbose bool) {
	GetLogger().SetVerbose(verbose)
	if verbose {
		log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	} else {
		log.SetFlags(0)
	}
	log.SetOutput(os.Stderr)
}

// LogOperation wraps fn with debug messages marking its start and outcome.
func LogOperation(operation string, fn func() error) error {
	logger := GetLogger()
	logger.Debug("starting %s", operation)

	err := fn()
	if err != nil {
		logger.Debug("%s failed: %v", operation, err)
	} else {
		logger.Debug("%s completed", operation)
	}
	return err
}

// LogOperationf is LogOperation with a formatted operation name.
func LogOperationf(format string, fn func() error, args ...any) error {
	return LogOperation(fmt.Sprintf(format, args...), fn)
}
