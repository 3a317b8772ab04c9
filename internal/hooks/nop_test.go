package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eclab/mason-sub011/types"
)

func TestNewNop(t *testing.T) {
	h := NewNop()

	require.NoError(t, h.OnStateChanged(t.Context(), types.NodeInit, types.NodeReady))
	require.NoError(t, h.OnRebalanced(t.Context(), 0, 2))
	require.NoError(t, h.OnError(t.Context(), context.Canceled))
}

func TestFill(t *testing.T) {
	t.Run("nil hooks", func(t *testing.T) {
		h := Fill(nil)
		require.NoError(t, h.OnRebalanced(t.Context(), 1, 1))
	})

	t.Run("keeps set callbacks", func(t *testing.T) {
		boom := errors.New("boom")
		var levels []int
		h := Fill(&types.Hooks{
			OnRebalanced: func(_ context.Context, level, _ int) error {
				levels = append(levels, level)
				return boom
			},
		})

		require.ErrorIs(t, h.OnRebalanced(t.Context(), 3, 7), boom)
		require.Equal(t, []int{3}, levels)
		require.NoError(t, h.OnStateChanged(t.Context(), types.NodeReady, types.NodeSyncing))
		require.NoError(t, h.OnError(t.Context(), boom))
	})
}
