package rankclaim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	masontest "github.com/eclab/mason-sub011/testing"
)

func newBucket(t *testing.T, name string, ttl time.Duration) jetstream.KeyValue {
	t.Helper()

	_, nc := masontest.StartEmbeddedNATS(t)
	js, err := jetstream.New(nc)
	require.NoError(t, err)

	kv, err := js.CreateKeyValue(t.Context(), jetstream.KeyValueConfig{
		Bucket:  name,
		TTL:     ttl,
		Storage: jetstream.MemoryStorage,
	})
	require.NoError(t, err)

	return kv
}

func TestClaimer_WithoutClaim(t *testing.T) {
	t.Parallel()

	c := NewClaimer(nil, "run", 4, time.Second, nil)
	require.Equal(t, -1, c.Rank())
	require.ErrorIs(t, c.StartRenewal(), ErrNotClaimed)
	require.ErrorIs(t, c.Release(context.Background()), ErrNotClaimed)
}

func TestClaimer_Claim(t *testing.T) {
	kv := newBucket(t, "test-rank-claim", time.Minute)

	t.Run("lowest free rank first", func(t *testing.T) {
		a := NewClaimer(kv, "run", 3, time.Minute, nil)
		b := NewClaimer(kv, "run", 3, time.Minute, nil)

		ra, err := a.Claim(t.Context())
		require.NoError(t, err)
		rb, err := b.Claim(t.Context())
		require.NoError(t, err)
		require.Equal(t, 0, ra)
		require.Equal(t, 1, rb)

		entry, err := kv.Get(t.Context(), "run.1")
		require.NoError(t, err)
		require.NotEmpty(t, entry.Value())

		// released ranks are reused
		require.NoError(t, a.Release(t.Context()))
		require.Equal(t, -1, a.Rank())
		c := NewClaimer(kv, "run", 3, time.Minute, nil)
		rc, err := c.Claim(t.Context())
		require.NoError(t, err)
		require.Equal(t, 0, rc)
	})

	t.Run("pool exhausted", func(t *testing.T) {
		for range 2 {
			_, err := NewClaimer(kv, "full", 2, time.Minute, nil).Claim(t.Context())
			require.NoError(t, err)
		}
		_, err := NewClaimer(kv, "full", 2, time.Minute, nil).Claim(t.Context())
		require.ErrorIs(t, err, ErrNoFreeRank)
	})

	t.Run("concurrent claims are distinct", func(t *testing.T) {
		const n = 8
		ranks := make([]int, n)
		errs := make([]error, n)
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ranks[i], errs[i] = NewClaimer(kv, "race", n, time.Minute, nil).Claim(t.Context())
			}()
		}
		wg.Wait()

		seen := make(map[int]bool)
		for i := range n {
			require.NoError(t, errs[i])
			require.False(t, seen[ranks[i]], "rank %d claimed twice", ranks[i])
			seen[ranks[i]] = true
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		_, err := NewClaimer(kv, "cancelled", 2, time.Minute, nil).Claim(ctx)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestClaimer_Renewal(t *testing.T) {
	const ttl = time.Second
	kv := newBucket(t, "test-rank-renewal", ttl)

	c := NewClaimer(kv, "run", 2, ttl, nil)
	rank, err := c.Claim(t.Context())
	require.NoError(t, err)
	require.Equal(t, 0, rank)
	require.NoError(t, c.StartRenewal())
	require.NoError(t, c.StartRenewal())

	// the claim outlives its TTL while renewed
	time.Sleep(2 * ttl)
	_, err = kv.Get(t.Context(), "run.0")
	require.NoError(t, err)

	require.NoError(t, c.Release(t.Context()))
	_, err = kv.Get(t.Context(), "run.0")
	require.ErrorIs(t, err, jetstream.ErrKeyNotFound)
	require.ErrorIs(t, c.Release(t.Context()), ErrNotClaimed)
}

func TestClaimer_ExpiresWithoutRenewal(t *testing.T) {
	const ttl = time.Second
	kv := newBucket(t, "test-rank-expiry", ttl)

	crashed := NewClaimer(kv, "run", 1, ttl, nil)
	_, err := crashed.Claim(t.Context())
	require.NoError(t, err)

	_, err = NewClaimer(kv, "run", 1, ttl, nil).Claim(t.Context())
	require.ErrorIs(t, err, ErrNoFreeRank)

	require.Eventually(t, func() bool {
		rank, err := NewClaimer(kv, "run", 1, ttl, nil).Claim(t.Context())
		return err == nil && rank == 0
	}, 5*time.Second, 200*time.Millisecond)
}

func TestClaimer_CloseKeepsClaim(t *testing.T) {
	kv := newBucket(t, "test-rank-close", time.Minute)

	c := NewClaimer(kv, "run", 1, time.Minute, nil)
	_, err := c.Claim(t.Context())
	require.NoError(t, err)
	require.NoError(t, c.StartRenewal())

	c.Close()
	c.Close()
	require.ErrorIs(t, c.StartRenewal(), ErrAlreadyClosed)
	require.Equal(t, 0, c.Rank())
	_, err = kv.Get(t.Context(), "run.0")
	require.NoError(t, err)
}
