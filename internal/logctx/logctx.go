// Package logctx carries a zerolog logger through context.Context.
//
// The split controller enriches the logger with the index of the open split,
// so every event emitted while that split is being written carries it:
//
//	ctx = logctx.WithSplit(ctx, index)
//	log := logctx.FromContext(ctx)
//	log.Debug().Str("entry", name).Msg("entry committed")
package logctx

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/eunmann/tarsplit/pkg/logging"
)

// loggerKey is the private key type for storing loggers in context.
type loggerKey struct{}

// WithLogger returns a new context with the given logger attached.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext extracts the logger from the context. If the context is nil
// or does not contain a logger, returns the process logger from pkg/logging.
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
			return logger
		}
	}
	return *logging.L()
}

// WithStr returns a new context with a logger that has the specified string field added.
func WithStr(ctx context.Context, key, value string) context.Context {
	logger := FromContext(ctx).With().Str(key, value).Logger()
	return WithLogger(ctx, logger)
}

// WithInt returns a new context with a logger that has the specified int field added.
func WithInt(ctx context.Context, key string, value int) context.Context {
	logger := FromContext(ctx).With().Int(key, value).Logger()
	return WithLogger(ctx, logger)
}

// WithSplit tags the logger with the open split's index.
func WithSplit(ctx context.Context, index int) context.Context {
	return WithInt(ctx, "split_index", index)
}
