package cli

import (
	"io"
	"log/slog"
)

// newLogger returns the text logger used for diagnostics. Debug output
// (command lines, working directories, captured output) is enabled by -v.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
