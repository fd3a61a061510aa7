package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	// Level is one of trace, debug, info, warn, error. Debug enables V(1).
	Level string
	// File, when set, receives a rotated JSON copy of every record.
	File string
	// Out defaults to stderr. A terminal gets the console writer.
	Out io.Writer
}

// New builds the process logger. The returned closer flushes the log file.
func New(opts Options) (logr.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return logr.Discard(), nil, err
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	zerologr.NameFieldName = "logger"
	zerologr.NameSeparator = "/"

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if f, ok := out.(*os.File); ok && isTerminal(f) {
		out = zerolog.ConsoleWriter{
			Out:        f,
			NoColor:    !isColorTerminal(),
			TimeFormat: time.RFC3339,
		}
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, file)
		closer = file
	}

	zl := zerolog.New(out).Level(level).With().Timestamp().Caller().Logger()
	return zerologr.New(&zl), closer, nil
}

// ParseLevel accepts zerolog level names; empty means info.
func ParseLevel(raw string) (zerolog.Level, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return zerolog.InfoLevel, nil
	}
	if raw == "warning" {
		raw = "warn"
	}
	level, err := zerolog.ParseLevel(raw)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", raw)
	}
	return level, nil
}

// IsContextCancellation reports whether err stems from a cancelled or
// expired context.
func IsContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ErrorIfNotCanceled logs err unless it is a context cancellation.
func ErrorIfNotCanceled(log logr.Logger, err error, msg string, keysAndValues ...any) {
	if err != nil && !IsContextCancellation(err) {
		log.Error(err, msg, keysAndValues...)
	}
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func isColorTerminal() bool {
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return true
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
