package logstream

import (
	"fmt"
	"io"
	"sync"
)

// Flusher is an output that buffers until flushed.
type Flusher interface {
	Flush() error
}

// Logger formats lines as "LEVEL - module - message" followed by CR LF, and
// flushes after each line. Lines below Level are dropped.
type Logger struct {
	Level Level

	mu     sync.Mutex
	output io.Writer
}

// NewLogger creates a logger writing to output, which is flushed after every
// line when it is a Flusher.
func NewLogger(output io.Writer, level Level) (logger *Logger) {
	logger = &Logger{
		Level:  level,
		output: output,
	}

	return
}

// Enabled reports whether lines at level are written.
func (logger *Logger) Enabled(level Level) bool {
	return level >= logger.Level && level < NONE
}

// Logf writes one line at level.
func (logger *Logger) Logf(level Level, module string, format string, args ...any) (err error) {
	if !logger.Enabled(level) {
		return
	}

	logger.mu.Lock()
	defer logger.mu.Unlock()

	_, err = fmt.Fprintf(logger.output, "%v - %v - %v\r\n", level, module, fmt.Sprintf(format, args...))
	if err != nil {
		return
	}

	if flusher, ok := logger.output.(Flusher); ok {
		err = flusher.Flush()
	}

	return
}

func (logger *Logger) Tracef(module string, format string, args ...any) error {
	return logger.Logf(TRACE, module, format, args...)
}

func (logger *Logger) Debugf(module string, format string, args ...any) error {
	return logger.Logf(DEBUG, module, format, args...)
}

func (logger *Logger) Infof(module string, format string, args ...any) error {
	return logger.Logf(INFO, module, format, args...)
}

func (logger *Logger) Warningf(module string, format string, args ...any) error {
	return logger.Logf(WARNING, module, format, args...)
}

func (logger *Logger) Errorf(module string, format string, args ...any) error {
	return logger.Logf(ERROR, module, format, args...)
}

func (logger *Logger) Fatalf(module string, format string, args ...any) error {
	return logger.Logf(FATAL, module, format, args...)
}
