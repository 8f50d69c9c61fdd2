package logger

import (
	"strings"

	"github.com/mborders/logmatic"
)

// Logger wraps logmatic with printf-style helpers. A nil *Logger and a
// logger created with level "off" drop every line.
type Logger struct {
	level  string
	silent bool
	*logmatic.Logger
}

// New creates a logger at the given level: trace, debug, info, warn, error or off
func New(level string) *Logger {
	level = strings.ToLower(strings.TrimSpace(level))
	l := logmatic.NewLogger()
	l.ExitOnFatal = true

	switch level {
	case "trace":
		l.SetLevel(logmatic.TRACE)
	case "debug":
		l.SetLevel(logmatic.DEBUG)
	case "warn", "warning":
		level = "warn"
		l.SetLevel(logmatic.WARN)
	case "error":
		l.SetLevel(logmatic.ERROR)
	case "off", "none", "silent":
		level = "off"
	default:
		level = "info"
		l.SetLevel(logmatic.INFO)
	}

	return &Logger{level: level, silent: level == "off", Logger: l}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return New("off")
}

// ValidLevel reports whether New understands the level name
func ValidLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "trace", "debug", "info", "warn", "warning", "error", "off", "none", "silent":
		return true
	default:
		return false
	}
}

// Level returns the normalized level name
func (l *Logger) Level() string {
	if l == nil {
		return "off"
	}
	return l.level
}

func (l *Logger) enabled() bool {
	return l != nil && !l.silent && l.Logger != nil
}

func (l *Logger) Tracef(format string, v ...interface{}) {
	if l.enabled() {
		l.Logger.Trace(format, v...)
	}
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	if l.enabled() {
		l.Logger.Debug(format, v...)
	}
}

func (l *Logger) Infof(format string, v ...interface{}) {
	if l.enabled() {
		l.Logger.Info(format, v...)
	}
}

func (l *Logger) Warnf(format string, v ...interface{}) {
	if l.enabled() {
		l.Logger.Warn(format, v...)
	}
}

func (l *Logger) Errorf(format string, v ...interface{}) {
	if l.enabled() {
		l.Logger.Error(format, v...)
	}
}

// Fatalf always logs and exits, even when the logger is silent
func (l *Logger) Fatalf(format string, v ...interface{}) {
	if l == nil || l.Logger == nil {
		l = New("error")
	}
	l.Logger.Fatal(format, v...)
}
