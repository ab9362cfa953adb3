package log

import (
	"io"
	"os"
	"sync"

	"github.com/op/go-logging"
)

type Logger interface {
	DebugEnabled() bool
	SetDebug(enabled bool)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

var format = logging.MustStringFormatter(
	`%{color}[%{time:15:04:05.000}] [%{module}] [%{level}]%{color:reset} %{message}`,
)

var plainFormat = logging.MustStringFormatter(
	`[%{time:15:04:05.000}] [%{module}] [%{level}] %{message}`,
)

// DefaultLogger is a named go-logging logger with its own leveled backend, so
// toggling debug output affects only this module.
type DefaultLogger struct {
	mu      sync.Mutex
	debug   bool
	module  string
	backend logging.LeveledBackend
	log     *logging.Logger
}

// NewDefaultLogger logs to stderr with colored level tags.
func NewDefaultLogger(module string, debug bool) *DefaultLogger {
	return newLogger(os.Stderr, format, module, debug)
}

// NewWriterLogger logs plain lines to w.
func NewWriterLogger(w io.Writer, module string, debug bool) *DefaultLogger {
	return newLogger(w, plainFormat, module, debug)
}

func newLogger(w io.Writer, f logging.Formatter, module string, debug bool) *DefaultLogger {
	backend := logging.AddModuleLevel(
		logging.NewBackendFormatter(logging.NewLogBackend(w, "", 0), f),
	)
	l := logging.MustGetLogger(module)
	l.SetBackend(backend)

	dl := &DefaultLogger{
		module:  module,
		backend: backend,
		log:     l,
	}
	dl.SetDebug(debug)
	return dl
}

func (l *DefaultLogger) DebugEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.debug
}

func (l *DefaultLogger) SetDebug(enabled bool) {
	l.mu.Lock()
	l.debug = enabled
	l.mu.Unlock()

	if enabled {
		l.backend.SetLevel(logging.DEBUG, "")
	} else {
		l.backend.SetLevel(logging.INFO, "")
	}
}

// SetQuiet drops info output while debug is off.
func (l *DefaultLogger) SetQuiet() {
	l.mu.Lock()
	l.debug = false
	l.mu.Unlock()
	l.backend.SetLevel(logging.WARNING, "")
}

func (l *DefaultLogger) Module() string {
	return l.module
}

func (l *DefaultLogger) Debugf(format string, args ...any) {
	l.log.Debugf(format, args...)
}

func (l *DefaultLogger) Infof(format string, args ...any) {
	l.log.Infof(format, args...)
}

func (l *DefaultLogger) Warnf(format string, args ...any) {
	l.log.Warningf(format, args...)
}

func (l *DefaultLogger) Errorf(format string, args ...any) {
	l.log.Errorf(format, args...)
}

// Nop logger

type nopLogger struct{}

func NewNopLogger() Logger { return &nopLogger{} }
func (n *nopLogger) DebugEnabled() bool                { return false }
func (n *nopLogger) SetDebug(enabled bool)             {}
func (n *nopLogger) Debugf(format string, args ...any) {}
func (n *nopLogger) Infof(format string, args ...any)  {}
func (n *nopLogger) Warnf(format string, args ...any)  {}
func (n *nopLogger) Errorf(format string, args ...any) {}

// OrNop never returns nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NewNopLogger()
	}
	return l
}
