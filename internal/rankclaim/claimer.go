// Package rankclaim assigns ranks to processes started without one.
//
// Ranks are claimed in a JetStream KV bucket with a TTL. A process claims the
// lowest free rank with an atomic create, renews the key at a third of the
// TTL while it runs, and deletes it on Release. A process that dies without
// releasing frees its rank when the key expires.
package rankclaim

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/eclab/mason-sub011/internal/logger"
	"github.com/eclab/mason-sub011/types"
)

// Common errors returned by the claimer.
var (
	ErrNoFreeRank    = errors.New("no free rank")
	ErrNotClaimed    = errors.New("rank not claimed")
	ErrAlreadyClosed = errors.New("claimer already closed")
)

// Claimer claims one rank of a run and keeps the claim alive.
type Claimer struct {
	kv     jetstream.KeyValue
	prefix string
	size   int
	ttl    time.Duration
	logger types.Logger

	mu      sync.Mutex
	rank    int
	closed  bool
	renewal bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewClaimer creates a claimer for ranks [0, size).
//
// Parameters:
//   - kv: Bucket holding the claims; its TTL should match ttl
//   - prefix: Key prefix shared by the run, e.g. "diffusion"
//   - size: Number of ranks in the run
//   - ttl: Claim lifetime without renewal
//   - logger: Logger for debug output, nil for none
//
// Example:
//
//	c := rankclaim.NewClaimer(kv, "diffusion", 4, 15*time.Second, logger)
//	rank, err := c.Claim(ctx)
func NewClaimer(kv jetstream.KeyValue, prefix string, size int, ttl time.Duration, l types.Logger) *Claimer {
	if l == nil {
		l = logger.NewNop()
	}

	return &Claimer{
		kv:     kv,
		prefix: prefix,
		size:   size,
		ttl:    ttl,
		logger: l,
		rank:   -1,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Claim takes the lowest free rank.
//
// Returns ErrNoFreeRank if every rank is held, or the KV error if a create
// fails for any reason other than an existing key.
func (c *Claimer) Claim(ctx context.Context) (int, error) {
	for rank := range c.size {
		if err := ctx.Err(); err != nil {
			return -1, err
		}

		key := c.key(rank)
		rev, err := c.kv.Create(ctx, key, []byte(time.Now().Format(time.RFC3339)))
		if err == nil {
			c.mu.Lock()
			c.rank = rank
			c.mu.Unlock()
			c.logger.Info("rank claimed", "rank", rank, "key", key, "revision", rev)

			return rank, nil
		}
		if !errors.Is(err, jetstream.ErrKeyExists) {
			return -1, fmt.Errorf("failed to claim rank %d: %w", rank, err)
		}
		c.logger.Debug("rank taken, trying next", "rank", rank)
	}

	return -1, fmt.Errorf("%w: all %d ranks are claimed", ErrNoFreeRank, c.size)
}

// StartRenewal renews the claim every ttl/3 until Release or Close.
func (c *Claimer) StartRenewal() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrAlreadyClosed
	}
	if c.rank < 0 {
		return ErrNotClaimed
	}
	if c.renewal {
		return nil
	}
	c.renewal = true

	go c.renewalLoop(c.key(c.rank))

	return nil
}

func (c *Claimer) renewalLoop(key string) {
	defer close(c.doneCh)

	ticker := time.NewTicker(max(c.ttl/3, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.ttl)
			_, err := c.kv.Put(ctx, key, []byte(time.Now().Format(time.RFC3339)))
			cancel()
			if err != nil {
				c.logger.Warn("rank renewal failed", "key", key, "error", err)
			}
		}
	}
}

// Close stops renewal without deleting the claim.
func (c *Claimer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stop()
}

func (c *Claimer) stop() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.stopCh)
	// the renewal loop never takes mu
	if c.renewal {
		<-c.doneCh
	}
}

// Release stops renewal and deletes the claim so the rank can be reused.
func (c *Claimer) Release(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rank < 0 {
		return ErrNotClaimed
	}
	c.stop()

	if err := c.kv.Delete(ctx, c.key(c.rank)); err != nil {
		return fmt.Errorf("failed to release rank %d: %w", c.rank, err)
	}
	c.rank = -1

	return nil
}

// Rank returns the claimed rank, or -1.
func (c *Claimer) Rank() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rank
}

func (c *Claimer) key(rank int) string {
	return c.prefix + "." + strconv.Itoa(rank)
}
