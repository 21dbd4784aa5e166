package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestKeyValuesAndError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Use(zap.New(core))
	t.Cleanup(func() { Use(zap.NewNop()) })

	Info("search finished", "seed", 42, "steps", 7)
	Error("fetch failed", errors.New("boom"), "code", "SC2002")

	entries := logs.All()
	require.Len(t, entries, 2)

	assert.Equal(t, "search finished", entries[0].Message)
	assert.Equal(t, int64(42), entries[0].ContextMap()["seed"])
	assert.Equal(t, int64(7), entries[0].ContextMap()["steps"])

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["err"])
	assert.Equal(t, "SC2002", entries[1].ContextMap()["code"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelError, ParseLevel(" ERROR "))
	assert.Equal(t, LevelInfo, ParseLevel("info"))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func TestSetLevelFiltersDefaultLogger(t *testing.T) {
	t.Cleanup(func() { SetLevel(LevelInfo) })

	SetLevel(LevelError)
	assert.False(t, level.Enabled(zapcore.InfoLevel))
	assert.True(t, level.Enabled(zapcore.ErrorLevel))

	SetLevel(LevelDebug)
	assert.True(t, level.Enabled(zapcore.DebugLevel))
}
