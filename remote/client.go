package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/eclab/mason-sub011/internal/natsutil"
	"github.com/eclab/mason-sub011/types"
)

// Client is the remote handle of one process for one field.
type Client[T types.Object] struct {
	nc      *nats.Conn
	subject string
	rank    int
	timeout time.Duration
	metrics types.MetricsCollector
}

// Compile-time assertion that Client implements RemoteHandle.
var _ types.RemoteHandle[types.Object] = (*Client[types.Object])(nil)

// Rank returns the rank the client writes to.
func (c *Client[T]) Rank() int {
	return c.rank
}

// Apply sends op to the owner and waits until it is queued there.
//
// Returns an error wrapping types.ErrUnreachable if the owner cannot be
// reached, or the owner's refusal otherwise.
func (c *Client[T]) Apply(ctx context.Context, op types.RemoteOp[T]) error {
	start := time.Now()
	err := c.apply(ctx, op)
	c.metrics.RecordRemoteCall(op.Kind.String(), err == nil, time.Since(start).Seconds())

	return err
}

func (c *Client[T]) apply(ctx context.Context, op types.RemoteOp[T]) error {
	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("failed to encode remote %s: %w", op.Kind, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.nc.RequestWithContext(ctx, c.subject, data)
	if err != nil {
		if natsutil.IsConnectivityError(err) || ctx.Err() != nil {
			return fmt.Errorf("%w: rank %d: %w", types.ErrUnreachable, c.rank, err)
		}

		return fmt.Errorf("remote %s to rank %d: %w", op.Kind, c.rank, err)
	}

	var rep reply
	if err := json.Unmarshal(msg.Data, &rep); err != nil {
		return fmt.Errorf("bad reply from rank %d: %w", c.rank, err)
	}

	return rep.err()
}

// Resolver hands out clients for the processes of a run, looking up each
// endpoint in the registry on first use. Clients are kept for the whole run.
//
// Thread Safety: Resolve is safe for concurrent use.
type Resolver[T types.Object] struct {
	nc       *nats.Conn
	registry *Registry
	field    string
	opts     options

	mu      sync.Mutex
	clients []*Client[T]
}

// Compile-time assertion that Resolver implements RemoteResolver.
var _ types.RemoteResolver[types.Object] = (*Resolver[types.Object])(nil)

// NewResolver creates a resolver for field in a run of size processes.
func NewResolver[T types.Object](nc *nats.Conn, kv jetstream.KeyValue, field string, size int, opts ...Option) *Resolver[T] {
	return &Resolver[T]{
		nc:       nc,
		registry: NewRegistry(kv),
		field:    field,
		opts:     applyOptions(opts),
		clients:  make([]*Client[T], size),
	}
}

// Resolve returns the client of rank, creating it on first use.
//
// Returns an error wrapping types.ErrInvalidRank for a rank outside the run,
// or types.ErrUnreachable if the connection is closed or rank has not
// registered an endpoint.
func (r *Resolver[T]) Resolve(ctx context.Context, rank int) (types.RemoteHandle[T], error) {
	if rank < 0 || rank >= len(r.clients) {
		return nil, fmt.Errorf("%w: rank %d of %d", types.ErrInvalidRank, rank, len(r.clients))
	}
	if r.nc == nil || r.nc.IsClosed() {
		return nil, fmt.Errorf("%w: NATS connection closed", types.ErrUnreachable)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c := r.clients[rank]; c != nil {
		return c, nil
	}

	subject, err := r.registry.Lookup(ctx, r.field, rank)
	if err != nil {
		return nil, err
	}
	c := &Client[T]{
		nc:      r.nc,
		subject: subject,
		rank:    rank,
		timeout: r.opts.timeout,
		metrics: r.opts.metrics,
	}
	r.clients[rank] = c
	r.opts.logger.Debug("remote handle resolved", "field", r.field, "rank", rank, "subject", subject)

	return c, nil
}
