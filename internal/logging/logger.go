package logging

import (
	"io"
	"log"
	"os"
)

// Logger writes leveled diagnostics for the operator. A nil *Logger is
// silent, so components can take one optionally.
type Logger struct {
	logger *log.Logger
	debug  bool
}

// New creates a logger writing to output
func New(output io.Writer, debug bool) *Logger {
	return &Logger{
		logger: log.New(output, "", log.LstdFlags),
		debug:  debug,
	}
}

// Default logs to stderr without debug output
func Default() *Logger {
	return New(os.Stderr, false)
}

// Discard drops everything
func Discard() *Logger {
	return New(io.Discard, false)
}

// SetDebug toggles debug output
func (l *Logger) SetDebug(debug bool) {
	if l != nil {
		l.debug = debug
	}
}

// Debug logs only in debug mode
func (l *Logger) Debug(format string, args ...any) {
	if l != nil && l.debug {
		l.logger.Printf("[DEBUG] "+format, args...)
	}
}

func (l *Logger) Info(format string, args ...any) {
	if l != nil {
		l.logger.Printf("[INFO] "+format, args...)
	}
}

func (l *Logger) Warn(format string, args ...any) {
	if l != nil {
		l.logger.Printf("[WARN] "+format, args...)
	}
}

func (l *Logger) Error(format string, args ...any) {
	if l != nil {
		l.logger.Printf("[ERROR] "+format, args...)
	}
}
