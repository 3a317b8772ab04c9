package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNopLogger(t *testing.T) {
	logger := NewNop()

	require.NotPanics(t, func() {
		logger.Debug("halo sync", "field", "heat")
		logger.Info("", nil)
		logger.Warn("dangling key", "single")
		logger.Error("collect failed", "root", 0)
		logger.Fatal("abort", "k1", "v1") // must not exit
	})
}

func TestFormatKeyValues(t *testing.T) {
	require.Empty(t, formatKeyValues(nil))
	require.Equal(t, "rank=2 level=1", formatKeyValues([]any{"rank", 2, "level", 1}))
	require.Equal(t, "rank=2 orphan=<missing>", formatKeyValues([]any{"rank", 2, "orphan"}))
}
