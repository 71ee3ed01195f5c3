package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/logger"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("json by default", func(t *testing.T) {
		t.Parallel()

		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf))
		log.Info("hello", logger.SubscriptionID("sub-1"))

		entry := decode(t, buf)
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "hello", entry["msg"])
		assert.Equal(t, "sub-1", entry["subscription_id"])
	})

	t.Run("text format", func(t *testing.T) {
		t.Parallel()

		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithFormat(logger.FormatText))
		log.Info("hello")
		assert.Contains(t, buf.String(), "level=INFO")
	})

	t.Run("level name", func(t *testing.T) {
		t.Parallel()

		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithLevelName("warn"))
		log.Info("dropped")
		assert.Empty(t, buf.String())
		log.Warn("kept")
		assert.Contains(t, buf.String(), "kept")
	})

	t.Run("unknown level name is ignored", func(t *testing.T) {
		t.Parallel()

		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithLevelName("loud"))
		log.Info("kept")
		assert.Contains(t, buf.String(), "kept")
	})

	t.Run("invalid format panics", func(t *testing.T) {
		t.Parallel()

		assert.Panics(t, func() { logger.New(logger.WithFormat("xml")) })
	})
}

func TestWithEnvironment(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.New(logger.WithOutput(buf), logger.WithEnvironment("prod", "billingd"))
	log.Debug("hidden")
	log.Info("visible")

	entry := decode(t, buf)
	assert.Equal(t, "billingd", entry["service"])
	assert.Equal(t, logger.EnvProduction, entry["env"])

	buf.Reset()
	dev := logger.New(logger.WithOutput(buf), logger.WithEnvironment("", "billingd"))
	dev.Debug("shown")
	assert.Contains(t, buf.String(), "env=development")
}

type ctxKey struct{}

func TestContextExtractors(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.New(
		logger.WithOutput(buf),
		logger.WithContextValue("tenant", ctxKey{}),
		logger.WithContextExtractors(func(ctx context.Context) (slog.Attr, bool) {
			return logger.CorrelationID("corr-1"), true
		}),
	)

	ctx := context.WithValue(context.Background(), ctxKey{}, "acme")
	log.With(logger.Component("billing")).InfoContext(ctx, "swept")

	entry := decode(t, buf)
	assert.Equal(t, "acme", entry["tenant"])
	assert.Equal(t, "corr-1", entry["correlation_id"])
	assert.Equal(t, "billing", entry["component"])
}

func TestAttrs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.Attr{}, logger.Error(nil))
	assert.Equal(t, "error", logger.Error(errors.New("boom")).Key)
	assert.Equal(t, slog.Attr{}, logger.EventID(nil))
	assert.Equal(t, "transition", logger.Transition("active", "past_due").Key)
	assert.Equal(t, int64(2), logger.RetryCount(2).Value.Int64())
}
