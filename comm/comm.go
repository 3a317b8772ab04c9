// Package comm provides the message-passing substrate used by the partition
// manager and halo fields: point-to-point send/receive, collectives over
// arbitrary sub-communicators, and neighbor exchange over a distributed graph.
//
// A Comm is bound to one process. The root communicator of a run is created
// by a transport constructor (NewLocalCluster for in-process ranks, NewNATS
// for ranks connected through a NATS server); Sub and Graph derive narrower
// communicators that share the same transport and mailbox.
//
// Collective calls are matched across processes by communicator id and a
// per-communicator sequence number, so every member must issue the same
// collectives in the same order.
package comm

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/eclab/mason-sub011/internal/logger"
	"github.com/eclab/mason-sub011/internal/metrics"
	"github.com/eclab/mason-sub011/types"
)

// Transport moves envelopes between processes.
type Transport interface {
	// Send delivers env to the process with world rank dst.
	Send(ctx context.Context, dst int, env Envelope) error

	// Close releases transport resources.
	Close() error
}

// Option configures a communicator.
type Option func(*options)

type options struct {
	logger  types.Logger
	metrics types.MetricsCollector
}

// WithLogger sets the communicator logger.
func WithLogger(l types.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics sets the communicator metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func applyOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.NewNop()
	}
	if o.metrics == nil {
		o.metrics = metrics.NewNop()
	}

	return o
}

// endpoint is the per-process state shared by every communicator derived
// from the same root.
type endpoint struct {
	rank      int
	transport Transport
	box       *mailbox
	logger    types.Logger
	metrics   types.MetricsCollector
	closeOnce sync.Once
}

// Comm is a communicator over an ordered set of processes.
type Comm struct {
	id      string
	rank    int
	members []int // world rank of each local rank
	ep      *endpoint

	seq     uint64
	sendSeq []uint64
	recvSeq []uint64
}

// Compile-time assertion that Comm implements Communicator.
var _ types.Communicator = (*Comm)(nil)

func newComm(id string, rank int, members []int, ep *endpoint) *Comm {
	return &Comm{
		id:      id,
		rank:    rank,
		members: members,
		ep:      ep,
		sendSeq: make([]uint64, len(members)),
		recvSeq: make([]uint64, len(members)),
	}
}

// ID returns the communicator identifier.
func (c *Comm) ID() string {
	return c.id
}

// Rank returns this process's rank within the communicator.
func (c *Comm) Rank() int {
	return c.rank
}

// Size returns the number of members.
func (c *Comm) Size() int {
	return len(c.members)
}

// WorldRank maps a local rank to the root communicator's rank.
func (c *Comm) WorldRank(rank int) int {
	return c.members[rank]
}

// Close closes the transport and aborts pending receives with
// types.ErrCommClosed. Closing any communicator derived from the same root
// closes all of them.
func (c *Comm) Close() error {
	var err error
	c.ep.closeOnce.Do(func() {
		c.ep.box.close()
		err = c.ep.transport.Close()
	})

	return err
}

func (c *Comm) checkRank(r int) error {
	if r < 0 || r >= len(c.members) {
		return fmt.Errorf("%w: %d not in [0, %d) of %s", types.ErrInvalidRank, r, len(c.members), c.id)
	}

	return nil
}

func (c *Comm) send(ctx context.Context, dst int, kind byte, seq uint64, data []byte) error {
	env := seal(Envelope{Comm: c.id, Kind: kind, Seq: seq, Src: c.ep.rank, Payload: data})
	c.ep.metrics.RecordMessage(len(data))

	if err := c.ep.transport.Send(ctx, c.members[dst], env); err != nil {
		return fmt.Errorf("send %s seq %d to rank %d: %w", c.id, seq, c.members[dst], err)
	}

	return nil
}

func (c *Comm) recv(ctx context.Context, src int, kind byte, seq uint64) ([]byte, error) {
	return c.ep.box.take(ctx, slotKey(c.id, kind, seq, c.members[src]))
}

// Send delivers data to dst without waiting for the receiver.
func (c *Comm) Send(ctx context.Context, dst int, data []byte) error {
	if err := c.checkRank(dst); err != nil {
		return err
	}
	c.sendSeq[dst]++

	return c.send(ctx, dst, kindP2P, c.sendSeq[dst], data)
}

// Recv waits for the next message from src.
func (c *Comm) Recv(ctx context.Context, src int) ([]byte, error) {
	if err := c.checkRank(src); err != nil {
		return nil, err
	}
	c.recvSeq[src]++

	return c.recv(ctx, src, kindP2P, c.recvSeq[src])
}

// Sub derives a sub-communicator over members (ranks of c).
func (c *Comm) Sub(id string, members []int) (types.Communicator, error) {
	if err := c.validateList(members, true); err != nil {
		return nil, err
	}

	self := slices.Index(members, c.rank)
	if self < 0 {
		return nil, fmt.Errorf("%w: rank %d not in group %s", types.ErrNotMember, c.rank, id)
	}

	world := make([]int, len(members))
	for i, m := range members {
		world[i] = c.members[m]
	}

	return newComm(c.id+"/"+id, self, world, c.ep), nil
}

// Graph derives a neighbor communicator over a symmetric adjacency list.
//
// Every member of c must call Graph with the same id, and the adjacency must
// be symmetric: if a lists b, b lists a.
func (c *Comm) Graph(id string, neighbors []int) (types.NeighborCommunicator, error) {
	if err := c.validateList(neighbors, false); err != nil {
		return nil, err
	}

	return &Graph{
		comm:      newComm(c.id+"#"+id, c.rank, c.members, c.ep),
		neighbors: slices.Clone(neighbors),
	}, nil
}

func (c *Comm) validateList(ranks []int, allowSelf bool) error {
	seen := make(map[int]struct{}, len(ranks))
	for _, r := range ranks {
		if err := c.checkRank(r); err != nil {
			return err
		}
		if r == c.rank && !allowSelf {
			return fmt.Errorf("%w: rank %d lists itself", types.ErrInvalidRank, r)
		}
		if _, dup := seen[r]; dup {
			return fmt.Errorf("%w: rank %d listed twice", types.ErrInvalidRank, r)
		}
		seen[r] = struct{}{}
	}

	return nil
}

func (c *Comm) next() uint64 {
	c.seq++

	return c.seq
}

func (c *Comm) observe(op string, start time.Time) {
	c.ep.metrics.RecordCollectiveWait(op, time.Since(start).Seconds())
}
