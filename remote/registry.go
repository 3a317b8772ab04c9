// Package remote gives processes write access to storage owned by other
// processes. Each process serves its fields on a NATS subject and publishes
// the subject in a JetStream key-value registry; writers look the subject up
// on first use and keep a per-rank client.
//
// Remote writes are queued by the owner and applied at its next
// synchronization point, so a write issued in one step is visible to the
// owner's neighbors after the following halo exchange.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/eclab/mason-sub011/internal/kvutil"
	"github.com/eclab/mason-sub011/types"
)

// DefaultBucket is the registry bucket used when none is configured.
const DefaultBucket = "mason-endpoints"

// Registry maps (field, rank) to the subject the rank serves the field on.
//
// Keys have the form "<field>.<rank>".
type Registry struct {
	kv jetstream.KeyValue
}

// NewRegistry wraps an existing bucket.
func NewRegistry(kv jetstream.KeyValue) *Registry {
	return &Registry{kv: kv}
}

// OpenRegistry opens the named bucket, creating it in memory storage if no
// process has yet.
func OpenRegistry(ctx context.Context, js jetstream.JetStream, bucket string) (*Registry, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	kv, err := kvutil.EnsureBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "mason remote endpoints",
		History:     1,
		Storage:     jetstream.MemoryStorage,
	}, kvutil.DefaultAttempts)
	if err != nil {
		return nil, fmt.Errorf("%w: endpoint registry: %w", types.ErrUnreachable, err)
	}

	return NewRegistry(kv), nil
}

// KV returns the underlying bucket.
func (r *Registry) KV() jetstream.KeyValue {
	return r.kv
}

func registryKey(field string, rank int) string {
	return field + "." + strconv.Itoa(rank)
}

// Register publishes the subject rank serves field on.
func (r *Registry) Register(ctx context.Context, field string, rank int, subject string) error {
	if _, err := r.kv.PutString(ctx, registryKey(field, rank), subject); err != nil {
		return fmt.Errorf("failed to register %s: %w", registryKey(field, rank), err)
	}

	return nil
}

// Lookup returns the subject rank serves field on.
//
// Returns an error wrapping types.ErrUnreachable if nothing is registered.
func (r *Registry) Lookup(ctx context.Context, field string, rank int) (string, error) {
	entry, err := r.kv.Get(ctx, registryKey(field, rank))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return "", fmt.Errorf("%w: no endpoint for field %q on rank %d", types.ErrUnreachable, field, rank)
		}

		return "", fmt.Errorf("%w: endpoint lookup %s: %w", types.ErrUnreachable, registryKey(field, rank), err)
	}

	return string(entry.Value()), nil
}

// Deregister removes the entry of rank for field.
func (r *Registry) Deregister(ctx context.Context, field string, rank int) error {
	err := r.kv.Delete(ctx, registryKey(field, rank))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to deregister %s: %w", registryKey(field, rank), err)
	}

	return nil
}
