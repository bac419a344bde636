// Package logging builds the process logger: text on stderr, optionally teed into a rotated file.
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Verbose bool
	// File, when set, receives a copy of every record.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// New returns the logger and a closer for the log file. The closer is a no-op without a file.
func New(out io.Writer, opts Options) (*slog.Logger, io.Closer) {
	if out == nil {
		out = os.Stderr
	}
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		}
		out = io.MultiWriter(out, file)
		closer = file
	}

	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
