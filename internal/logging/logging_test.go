package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultLoggerIsSilent(t *testing.T) {
	Replace(nil)
	// Must not panic and must not need Init.
	Info("hello", zap.String("k", "v"))
	assert.NotNil(t, L())
}

func TestReplaceRoutesMessages(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Replace(zap.New(core))
	t.Cleanup(func() { Replace(nil) })

	Warn("listing failed", zap.String("path", "/trip"))
	Named("crud").Info("committed")

	require.Equal(t, 2, logs.Len())
	entries := logs.All()
	assert.Equal(t, "listing failed", entries[0].Message)
	assert.Equal(t, "/trip", entries[0].ContextMap()["path"])
	assert.Equal(t, "crud", entries[1].LoggerName)
}

func TestSetLevelIgnoresGarbage(t *testing.T) {
	SetLevel("warn")
	assert.Equal(t, zapcore.WarnLevel, globalLevel.Level())
	SetLevel("not-a-level")
	assert.Equal(t, zapcore.WarnLevel, globalLevel.Level())
	SetLevel("info")
}

func TestInitConsole(t *testing.T) {
	t.Cleanup(func() { Replace(nil) })
	require.NoError(t, Init(Config{Level: "debug", Format: "console", OutputPath: "stderr"}))
	assert.Equal(t, zapcore.DebugLevel, globalLevel.Level())
	SetLevel("info")
}
