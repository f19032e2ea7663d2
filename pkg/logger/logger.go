// Package logger builds the slog loggers used across reel: colorized output
// for the terminal and JSON for the service log file.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"
)

// FileName is the service log written inside the .reel directory.
const FileName = "reel.log"

type format int

const (
	formatText format = iota
	formatPretty
	formatJSON
)

type settings struct {
	level  slog.Level
	format format
	source bool
	out    io.Writer
}

// Option configures a logger created with New.
type Option func(*settings)

// WithDebug lowers the level to Debug.
func WithDebug(debug bool) Option {
	return func(s *settings) {
		if debug {
			s.level = slog.LevelDebug
		} else {
			s.level = slog.LevelInfo
		}
	}
}

// WithPretty selects the charmbracelet/log handler.
func WithPretty(pretty bool) Option {
	return func(s *settings) {
		if pretty {
			s.format = formatPretty
		}
	}
}

// WithJSON selects slog's JSON handler. WithPretty takes precedence.
func WithJSON(json bool) Option {
	return func(s *settings) {
		if json && s.format != formatPretty {
			s.format = formatJSON
		}
	}
}

// WithWriter sets the output. Defaults to os.Stderr.
func WithWriter(w io.Writer) Option {
	return func(s *settings) {
		s.out = w
	}
}

// WithSource reports the caller's file:line.
func WithSource(source bool) Option {
	return func(s *settings) {
		s.source = source
	}
}

// New builds a logger. Without options it writes slog text at Info level to
// os.Stderr, leaving stdout to command output.
func New(opts ...Option) *slog.Logger {
	s := &settings{level: slog.LevelInfo, out: os.Stderr}
	for _, opt := range opts {
		opt(s)
	}

	switch s.format {
	case formatPretty:
		return slog.New(charmlog.NewWithOptions(s.out, charmlog.Options{
			Level:           charmlog.Level(s.level),
			ReportTimestamp: true,
			ReportCaller:    s.source,
		}))
	case formatJSON:
		return slog.New(slog.NewJSONHandler(s.out, &slog.HandlerOptions{Level: s.level, AddSource: s.source}))
	default:
		return slog.New(slog.NewTextHandler(s.out, &slog.HandlerOptions{Level: s.level, AddSource: s.source}))
	}
}

// OpenFile appends JSON logs to path. Debug logs carry their source
// location. Close the returned file when done.
func OpenFile(path string, debug bool) (*slog.Logger, io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	return New(WithWriter(f), WithJSON(true), WithDebug(debug), WithSource(debug)), f, nil
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(nopHandler{})
}

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h nopHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h nopHandler) WithGroup(string) slog.Handler           { return h }
