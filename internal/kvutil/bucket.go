// Package kvutil provides helpers for NATS JetStream key-value buckets.
package kvutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// DefaultAttempts is used when EnsureBucket is given a non-positive attempt count.
const DefaultAttempts = 3

// EnsureBucket opens the bucket described by cfg, creating it if needed.
//
// Every process of a run calls this at startup, so creation races are
// expected: a loser that sees ErrBucketExists opens the winner's bucket.
// Other failures are retried with a doubling backoff starting at 10ms.
//
// Parameters:
//   - ctx: Bounds the whole operation, backoff included
//   - js: JetStream context
//   - cfg: Bucket configuration; only Bucket is used when opening
//   - attempts: Maximum number of create/open attempts
//
// Returns:
//   - jetstream.KeyValue: The bucket
//   - error: The last failure once attempts are exhausted, or ctx's error
//
// Example:
//
//	kv, err := kvutil.EnsureBucket(ctx, js, jetstream.KeyValueConfig{
//	    Bucket:  "mason-endpoints",
//	    Storage: jetstream.MemoryStorage,
//	}, kvutil.DefaultAttempts)
func EnsureBucket(ctx context.Context, js jetstream.JetStream, cfg jetstream.KeyValueConfig, attempts int) (jetstream.KeyValue, error) {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	var lastErr error
	backoff := 10 * time.Millisecond
	for attempt := range attempts {
		kv, err := js.CreateKeyValue(ctx, cfg)
		if err == nil {
			return kv, nil
		}

		if errors.Is(err, jetstream.ErrBucketExists) {
			kv, openErr := js.KeyValue(ctx, cfg.Bucket)
			if openErr == nil {
				return kv, nil
			}
			lastErr = fmt.Errorf("bucket exists but cannot be opened: %w", openErr)
		} else {
			lastErr = err
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("bucket %s: %w", cfg.Bucket, ctx.Err())
		}
		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("bucket %s: %w", cfg.Bucket, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return nil, fmt.Errorf("bucket %s not available after %d attempts: %w", cfg.Bucket, attempts, lastErr)
}
