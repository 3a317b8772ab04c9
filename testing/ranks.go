package testing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// DefaultRankTimeout bounds a RunRanks invocation. A collective that one rank
// never reaches stalls the others, so tests always run with a deadline.
const DefaultRankTimeout = 30 * time.Second

// RunRanks runs fn once per rank, each in its own goroutine, and waits for
// all of them. The context is cancelled when the first rank fails so the
// others abandon pending collectives instead of hanging.
//
// Returns the joined errors of all ranks, each prefixed with its rank.
//
// Example:
//
//	comms := comm.NewLocalCluster(4)
//	err := masontest.RunRanks(t, 4, func(ctx context.Context, rank int) error {
//	    return comms[rank].Barrier(ctx)
//	})
//	require.NoError(t, err)
func RunRanks(t *testing.T, n int, fn func(ctx context.Context, rank int) error) error {
	t.Helper()

	ctx, cancel := context.WithTimeout(t.Context(), DefaultRankTimeout)
	defer cancel()

	errs := make([]error, n)
	var wg sync.WaitGroup
	for rank := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[rank] = fmt.Errorf("rank %d panicked: %v", rank, r)
					cancel()
				}
			}()

			if err := fn(ctx, rank); err != nil {
				errs[rank] = fmt.Errorf("rank %d: %w", rank, err)
				cancel()
			}
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}
