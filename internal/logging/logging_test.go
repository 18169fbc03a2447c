package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromReturnsDefaultWhenUnset(t *testing.T) {
	assert.Equal(t, slog.Default(), From(context.Background()))
}

func TestWithLoggerRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithLogger(context.Background(), logger)
	assert.Equal(t, logger, From(ctx))
}

func TestComponentAttachesTag(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := WithLogger(context.Background(), logger)

	Component(ctx, "indexer").Info("hello")
	assert.Contains(t, buf.String(), "component=indexer")
}

func TestTimeOperationPassesThroughResultAndError(t *testing.T) {
	wantErr := errors.New("boom")
	err := TimeOperation(context.Background(), "op", func() error { return wantErr })
	assert.ErrorIs(t, err, wantErr)
}

func TestTimeOperationFastPathDoesNotLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := WithLogger(context.Background(), logger)

	err := TimeOperation(ctx, "fast-op", func() error { return nil })
	assert.NoError(t, err)
	assert.NotContains(t, buf.String(), "slow operation", "an operation well under SlowThreshold must not log")
}

func TestSlowThresholdIsTwoSeconds(t *testing.T) {
	assert.Equal(t, 2*time.Second, SlowThreshold)
}
