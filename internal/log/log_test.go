package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	Logger().Info("admitted", zap.String("key", "user1"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "admitted", entry.Message)
	assert.Equal(t, "user1", entry.ContextMap()["key"])
}

func TestSetLoggerNilInstallsNop(t *testing.T) {
	SetLogger(nil)
	require.NotNil(t, Logger())
}

func TestConfigure(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	require.NoError(t, Configure("debug", "console"))
	assert.True(t, Logger().Core().Enabled(zap.DebugLevel))

	require.NoError(t, Configure("warn", "json"))
	assert.False(t, Logger().Core().Enabled(zap.InfoLevel))
}

func TestConfigureRejectsBadInput(t *testing.T) {
	assert.Error(t, Configure("loud", "json"))
	assert.Error(t, Configure("info", "xml"))
}
