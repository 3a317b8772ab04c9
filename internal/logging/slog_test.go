package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func newBuffered(level slog.Level) (*SlogLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	handler := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: level})

	return NewSlog(slog.New(handler)), buf
}

func TestSlogLogger_Levels(t *testing.T) {
	logger, buf := newBuffered(slog.LevelDebug)

	logger.Debug("halo sync", "field", "heat")
	logger.Info("rebalance committed", "level", 1)
	logger.Warn("empty load")
	logger.Error("collect failed", "root", 0)

	out := buf.String()
	require.Contains(t, out, "level=DEBUG")
	require.Contains(t, out, "field=heat")
	require.Contains(t, out, "level=INFO")
	require.Contains(t, out, "level=WARN")
	require.Contains(t, out, "level=ERROR")
	require.Contains(t, out, "root=0")
}

func TestSlogLogger_LevelFiltering(t *testing.T) {
	logger, buf := newBuffered(slog.LevelWarn)

	logger.Debug("hidden")
	logger.Info("hidden too")
	logger.Warn("visible")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "visible")
}

func TestSlogLogger_ForRank(t *testing.T) {
	logger, buf := newBuffered(slog.LevelInfo)

	logger.ForRank(3).With("field", "bugs").Info("reloaded")

	require.Contains(t, buf.String(), "rank=3")
	require.Contains(t, buf.String(), "field=bugs")
}

func TestNewSlogDefault(t *testing.T) {
	require.NotNil(t, NewSlogDefault().logger)
}
