package logging

import "fmt"

// Log levels accepted by LogLevelf
const (
	DebugLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

type Logger interface {
	LogLevelf(level int, format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type LogFunc func(format string, args ...interface{})

// LogFuncs lets any backend be plugged in without the supervisor knowing about it
type LogFuncs struct {
	Debugf LogFunc
	Infof  LogFunc
	Warnf  LogFunc
	Errorf LogFunc
}

type logger struct {
	prefix string
	funcs  LogFuncs
}

// NewLogger returns a logger that prepends prefix to every message
func NewLogger(prefix string, funcs LogFuncs) Logger {
	return &logger{
		prefix: prefix,
		funcs:  funcs,
	}
}

func (l *logger) LogLevelf(level int, format string, args ...interface{}) {
	switch level {
	case DebugLevel:
		l.Debugf(format, args...)
	case InfoLevel:
		l.Infof(format, args...)
	case WarnLevel:
		l.Warnf(format, args...)
	case ErrorLevel:
		l.Errorf(format, args...)
	default:
		l.Infof(format, args...)
	}
}

func (l *logger) Debugf(format string, args ...interface{}) {
	l.log(l.funcs.Debugf, format, args...)
}

func (l *logger) Infof(format string, args ...interface{}) {
	l.log(l.funcs.Infof, format, args...)
}

func (l *logger) Warnf(format string, args ...interface{}) {
	l.log(l.funcs.Warnf, format, args...)
}

func (l *logger) Errorf(format string, args ...interface{}) {
	l.log(l.funcs.Errorf, format, args...)
}

func (l *logger) log(fn LogFunc, format string, args ...interface{}) {
	if fn == nil {
		return
	}
	if l.prefix == "" {
		fn(format, args...)
		return
	}
	fn("%s%s", l.prefix, fmt.Sprintf(format, args...))
}

type nullLogger struct{}

// NewNullLogger discards everything
func NewNullLogger() Logger {
	return nullLogger{}
}

func (nullLogger) LogLevelf(level int, format string, args ...interface{}) {}
func (nullLogger) Debugf(format string, args ...interface{})               {}
func (nullLogger) Infof(format string, args ...interface{})                {}
func (nullLogger) Warnf(format string, args ...interface{})                {}
func (nullLogger) Errorf(format string, args ...interface{})               {}
