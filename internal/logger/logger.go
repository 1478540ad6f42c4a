// Package logger provides the leveled logger used by the engine to report
// the unrecoverable error that stops it, and by the gRPC transport to report
// failed casts.
package logger

import (
	"fmt"
	"log"
	"os"
)

type Level int32

const (
	Debug Level = iota
	Info
	Warn
	Error
	Fatal
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	default:
		panic("invalid log level")
	}
}

var defaultWriter = os.Stderr

type Logger struct {
	options options
	base    *log.Logger
}

// New creates a Logger. With no options, it logs Info and above to stderr.
func New(opts ...Option) (*Logger, error) {
	options := options{level: Info}
	for _, opt := range opts {
		if err := opt(&options); err != nil {
			return nil, err
		}
	}

	if options.writer == nil {
		options.writer = defaultWriter
	}
	if options.prefix == "" {
		options.prefix = defaultPrefix
	}

	return &Logger{options: options, base: log.New(options.writer, options.prefix, options.flag)}, nil
}

func (l *Logger) Debug(args ...any) {
	if l.options.level > Debug {
		return
	}
	l.print("DEBUG: ", args...)
}

func (l *Logger) Debugf(format string, args ...any) {
	l.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Info(args ...any) {
	if l.options.level > Info {
		return
	}
	l.print("INFO: ", args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(args ...any) {
	if l.options.level > Warn {
		return
	}
	l.print("WARN: ", args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Error(args ...any) {
	if l.options.level > Error {
		return
	}
	l.print("ERROR: ", args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.Error(fmt.Sprintf(format, args...))
}

func (l *Logger) Fatal(args ...any) {
	l.print("FATAL: ", args...)
	os.Exit(1)
}

func (l *Logger) Fatalf(format string, args ...any) {
	l.Fatal(fmt.Sprintf(format, args...))
}

func (l *Logger) print(prefix string, args ...any) {
	all := append([]any{prefix}, args...)
	l.base.Print(all...)
}
