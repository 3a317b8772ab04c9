package kvutil

import (
	"context"
	"sync"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	masontest "github.com/eclab/mason-sub011/testing"
)

func TestEnsureBucket_Concurrent(t *testing.T) {
	_, nc := masontest.StartEmbeddedNATS(t)
	js, err := jetstream.New(nc)
	require.NoError(t, err)

	const ranks = 8
	kvs := make([]jetstream.KeyValue, ranks)
	errs := make([]error, ranks)
	var wg sync.WaitGroup
	for i := range ranks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kvs[i], errs[i] = EnsureBucket(t.Context(), js, jetstream.KeyValueConfig{
				Bucket:  "endpoints",
				Storage: jetstream.MemoryStorage,
			}, 5)
		}()
	}
	wg.Wait()

	for i := range ranks {
		require.NoError(t, errs[i], "rank %d", i)
		require.Equal(t, "endpoints", kvs[i].Bucket())
	}

	// every rank sees writes of the others
	_, err = kvs[0].Put(t.Context(), "walkers.0", []byte("subject"))
	require.NoError(t, err)
	entry, err := kvs[ranks-1].Get(t.Context(), "walkers.0")
	require.NoError(t, err)
	require.Equal(t, "subject", string(entry.Value()))
}

func TestEnsureBucket_Cancelled(t *testing.T) {
	_, nc := masontest.StartEmbeddedNATS(t)
	js, err := jetstream.New(nc)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err = EnsureBucket(ctx, js, jetstream.KeyValueConfig{Bucket: "never"}, 0)
	require.ErrorIs(t, err, context.Canceled)
}
