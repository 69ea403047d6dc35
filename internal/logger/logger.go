// Package logger builds the process slog.Logger.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// New returns a JSON logger in production and a text logger otherwise, tagged
// with the service name and environment.
func New(service, env string, production bool) *slog.Logger {
	return newWithOutput(os.Stdout, service, env, production)
}

func newWithOutput(w io.Writer, service, env string, production bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var h slog.Handler
	if production {
		h = slog.NewJSONHandler(w, opts)
	} else {
		opts.Level = slog.LevelDebug
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With(slog.String("service", service), slog.String("env", env))
}
