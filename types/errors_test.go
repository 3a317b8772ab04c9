package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eclab/mason-sub011/geom"
)

func TestSentinelErrors(t *testing.T) {
	t.Run("wrapping keeps the category", func(t *testing.T) {
		require.ErrorIs(t, ErrInvalidConfig, ErrConfiguration)
		require.ErrorIs(t, ErrNoRemote, ErrUnreachable)
		require.ErrorIs(t, fmt.Errorf("rank 3: %w", ErrInvalidConfig), ErrConfiguration)
		require.ErrorIs(t, ErrGeometry, geom.ErrGeometry)
	})

	t.Run("all errors are distinct", func(t *testing.T) {
		all := []error{
			ErrConfiguration,
			ErrGeometry,
			ErrCapacity,
			ErrInvalidLocation,
			ErrUnreachable,
			ErrNotInitialized,
			ErrNotMember,
			ErrChecksumMismatch,
			ErrCommClosed,
			ErrInvalidRank,
			ErrPartsMismatch,
			ErrNodeClosed,
			ErrInvalidTransition,
		}
		for i, a := range all {
			for j, b := range all {
				if i != j {
					require.False(t, errors.Is(a, b), "%v should not match %v", a, b)
				}
			}
		}
	})
}
