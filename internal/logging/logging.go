// Package logging configures the zerolog logger used across compass-tui.
//
// The terminal belongs to the UI, so log output goes to a file. When no
// file is configured the logger discards everything.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Options selects where and how verbosely to log.
type Options struct {
	File  string
	Level string
}

// New builds a logger from opts. The returned closer must be called on exit.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	path := strings.TrimSpace(opts.File)
	if path == "" {
		return zerolog.Nop(), nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return zerolog.Nop(), nopCloser{}, errors.Wrap(err, "create log directory")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, errors.Wrapf(err, "open log file %s", path)
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger := zerolog.New(f).
		Level(ParseLevel(opts.Level)).
		With().
		Timestamp().
		Str("app", "compass-tui").
		Logger()
	return logger, f, nil
}

// ParseLevel converts a level name into a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
