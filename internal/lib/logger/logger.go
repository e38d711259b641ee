package logger

import (
	"fmt"
	"io"
	"log/slog"

	"authgate/internal/lib/logger/handlers/slogpretty"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

type Option func(*options)

type options struct {
	level slog.Leveler
}

// WithLevel overrides the environment's default minimum level.
func WithLevel(level slog.Leveler) Option {
	return func(o *options) {
		o.level = level
	}
}

// Setup builds the process logger for the given environment.
func Setup(env string, out io.Writer, opts ...Option) (*slog.Logger, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	level := func(def slog.Level) slog.Leveler {
		if o.level != nil {
			return o.level
		}
		return def
	}

	switch env {
	case EnvLocal:
		return setupPrettySlog(out, level(slog.LevelDebug)), nil
	case EnvDev:
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level(slog.LevelDebug)})), nil
	case EnvProd:
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level(slog.LevelInfo)})), nil
	default:
		return nil, fmt.Errorf("unknown environment: %q", env)
	}
}

func setupPrettySlog(out io.Writer, level slog.Leveler) *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: level,
		},
	}
	h := opts.NewPrettyHandler(out)

	return slog.New(h)
}
