package observability

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		cfg       LogConfig
		expectErr bool
	}{
		{name: "default json", cfg: LogConfig{Level: "info", Format: "json"}},
		{name: "console", cfg: LogConfig{Level: "debug", Format: "console"}},
		{name: "stderr output", cfg: LogConfig{Level: "warn", Output: "stderr"}},
		{name: "invalid level", cfg: LogConfig{Level: "loud"}, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.cfg)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
			logger.Info("test message", String("key", "value"))
		})
	}
}

func TestLoggerWith(t *testing.T) {
	logger := NopLogger()
	child := logger.With(String("component", "test"))
	require.NotNil(t, child)
	child.Debug("message")
}

func TestContextFields(t *testing.T) {
	ctx := context.Background()

	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Empty(t, SessionIDFromContext(ctx))

	ctx = ContextWithRequestID(ctx, "req-1")
	ctx = ContextWithSessionID(ctx, "sess-1")

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "sess-1", SessionIDFromContext(ctx))

	logger := NopLogger().WithContext(ctx)
	require.NotNil(t, logger)
}

func TestGlobalLogger(t *testing.T) {
	original := GetGlobalLogger()
	defer SetGlobalLogger(original)

	logger := NopLogger()
	SetGlobalLogger(logger)
	assert.Equal(t, logger, GetGlobalLogger())
	assert.Equal(t, logger, L())
}

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)
	require.NotNil(t, m)

	m.SessionsConnected.Inc()
	m.EventsRelayed.WithLabelValues("cursorMove").Inc()
	m.MutationsTotal.WithLabelValues("create").Inc()

	// Re-registering with the same registerer must not panic.
	m2 := NewMetrics("test", reg)
	require.NotNil(t, m2)
}
