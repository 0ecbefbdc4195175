// Package logging builds the loggers the library and commands share.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// Options controls handler construction.
type Options struct {
	// Level is the minimum level, Info when zero.
	Level slog.Level

	// AddSource attaches file:line to records.
	AddSource bool

	// NoColor disables ANSI colors, for logs going to files.
	NoColor bool
}

// New builds a tint-backed logger writing to w.
func New(w io.Writer, opts Options) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      opts.Level,
		TimeFormat: time.RFC3339,
		AddSource:  opts.AddSource,
		NoColor:    opts.NoColor,
	}))
}

// Default is the stderr logger used when a component is given none.
func Default() *slog.Logger {
	return New(os.Stderr, Options{Level: slog.LevelInfo})
}
