package testing

import (
	"testing"

	"github.com/eclab/mason-sub011/internal/logger"
	"github.com/eclab/mason-sub011/types"
)

// NewTestLogger returns a logger that writes to t, prefixed with the rank.
func NewTestLogger(t *testing.T, rank int) types.Logger {
	return logger.NewTest(t).ForRank(rank)
}
