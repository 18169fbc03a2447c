// Package logging provides per-component structured loggers threaded
// through context.Context, replacing the original's global LOGGER
// singletons (see the Logging paragraph in SPEC_FULL.md).
package logging

import (
	"context"
	"log/slog"
	"time"
)

type contextKey struct{}

var loggerKey contextKey

// SlowThreshold is the duration above which a blob/raster/catalog call logs
// a WARN regardless of success, mirroring the teacher's SlowQueryThreshold.
const SlowThreshold = 2 * time.Second

// WithLogger returns a context carrying logger, retrievable with From.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// From returns the logger stored in ctx, or slog.Default() if none was set.
func From(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

// Component returns a derived logger tagged with "component", for
// attaching to a context at the start of a run or worker.
func Component(ctx context.Context, name string) *slog.Logger {
	return From(ctx).With("component", name)
}

// TimeOperation runs fn and logs a WARN if it exceeds SlowThreshold, whether
// or not fn returned an error. Currently wraps only blobstore.S3Store.Get.
func TimeOperation(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	err := fn()
	if elapsed := time.Since(start); elapsed > SlowThreshold {
		From(ctx).Warn("slow operation", "op", op, "elapsed", elapsed, "error", err)
	}
	return err
}
