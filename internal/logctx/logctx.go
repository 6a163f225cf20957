// Package logctx carries a zerolog logger through context.Context so that
// session and entity fields attached at the top propagate to every
// component below.
package logctx

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type loggerKey struct{}

// nop is returned when no logger has been attached.
var nop = zerolog.Nop()

// WithLogger returns a context carrying logger.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the attached logger, or a disabled logger when the
// context carries none. It never panics.
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx == nil {
		return nop
	}
	if logger, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
		return logger
	}
	return nop
}

// WithStr returns a context whose logger carries one more string field.
func WithStr(ctx context.Context, key, value string) context.Context {
	return WithLogger(ctx, FromContext(ctx).With().Str(key, value).Logger())
}

// WithEntity tags the context logger with the entity code and year being served.
func WithEntity(ctx context.Context, entity, year string) context.Context {
	c := FromContext(ctx).With().Str("entity", entity)
	if year != "" {
		c = c.Str("year", year)
	}
	return WithLogger(ctx, c.Logger())
}

// New builds a logger writing to w (stderr when nil). level is a zerolog
// level name; human selects the console writer.
func New(w io.Writer, level string, human bool) (zerolog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(level)
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("logctx: invalid level %q: %w", level, err)
		}
		lvl = parsed
	}

	out := w
	if human {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}
