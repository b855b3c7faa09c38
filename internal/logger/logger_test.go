package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSanitizeKVs(t *testing.T) {
	got := sanitizeKVs([]interface{}{"course", "CS 400", "api_token", "abc", "DSN", "postgres://x", "dangling"})
	assert.Equal(t, []interface{}{"course", "CS 400", "api_token", "[REDACTED]", "DSN", "[REDACTED]", "dangling"}, got)
}

func TestLoggerRedactsThroughWith(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.With("authorization", "Bearer x").Info("fetching", "page", 3)

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		ctx := entries[0].ContextMap()
		assert.Equal(t, "[REDACTED]", ctx["authorization"])
		assert.EqualValues(t, 3, ctx["page"])
	}
}

func TestNew(t *testing.T) {
	for _, mode := range []string{"dev", "prod", "test"} {
		l, err := New(mode)
		assert.NoError(t, err, mode)
		assert.NotNil(t, l)
	}
}
