package mason

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/eclab/mason-sub011/comm"
	"github.com/eclab/mason-sub011/halo"
	"github.com/eclab/mason-sub011/internal/hooks"
	"github.com/eclab/mason-sub011/internal/kvutil"
	"github.com/eclab/mason-sub011/internal/logger"
	"github.com/eclab/mason-sub011/internal/metrics"
	"github.com/eclab/mason-sub011/internal/rankclaim"
	"github.com/eclab/mason-sub011/internal/status"
	"github.com/eclab/mason-sub011/partition"
	"github.com/eclab/mason-sub011/remote"
	"github.com/eclab/mason-sub011/types"
)

// Synchronizer is a field the node refreshes at every synchronization point.
// *halo.Field and *halo.AgentField implement it.
type Synchronizer interface {
	Name() string
	ApplyRemote() (int, error)
	SyncHalo(ctx context.Context) error
}

// Migrator is a field that delivers migrating agents at synchronization
// points. *halo.AgentField implements it.
type Migrator interface {
	Sync(ctx context.Context) error
}

// AutoRank asks Connect to claim the lowest free rank of the run.
const AutoRank = -1

type serverCloser interface {
	Close(ctx context.Context) error
}

// Node drives one process of a distributed run: it owns the partition
// manager, the registered fields and their remote endpoints, and runs the
// synchronization and balancing collectives in a fixed order.
//
// Lifecycle:
//   - Create with NewNode() or Connect(); the partition is built before return
//   - Create fields with NewField() / NewAgentField(), or Register() your own
//   - Call Step() (or Sync() and Balance()) once per simulation step
//   - Call Close() when done
//
// Thread Safety:
//   - State() and Close() are safe for concurrent use
//   - Every other method must be called from the process's single driving
//     goroutine, in the same order on every process
type Node struct {
	cfg     Config
	world   Communicator
	mgr     *partition.Manager
	nc      *nats.Conn
	logger  Logger
	metrics MetricsCollector
	hooks   Hooks

	state     atomic.Int32
	ownsWorld bool

	mu       sync.Mutex
	fields   []Synchronizer
	servers  []serverCloser
	registry *remote.Registry

	claimer *rankclaim.Claimer
	status  *status.Publisher

	steps    int
	balances int
	load     float64
}

// NewNode creates the node of the calling process and builds the partition:
// uniformly, or from cfg.Splits when set.
//
// NewNode is collective: every process of world must call it with the same
// cfg.
//
// Parameters:
//   - ctx: Bounds partition initialization together with cfg.StartupTimeout
//   - cfg: Run configuration; defaults are applied to a copy
//   - world: Communicator spanning every process, of size cfg.Processes
//   - opts: Optional logger, metrics, hooks and NATS connection
//
// Returns:
//   - *Node: Node in NodeReady state
//   - error: ErrInvalidConfig, a geometry error, or a communication error
//
// Example:
//
//	comms := comm.NewLocalCluster(4)
//	// on each rank r:
//	node, err := mason.NewNode(ctx, mason.DefaultConfig(), comms[r])
func NewNode(ctx context.Context, cfg Config, world Communicator, opts ...Option) (*Node, error) {
	SetDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if world == nil {
		return nil, fmt.Errorf("%w: communicator is required", types.ErrInvalidConfig)
	}
	if world.Size() != cfg.Processes {
		return nil, fmt.Errorf("%w: communicator has %d processes, config expects %d",
			types.ErrInvalidConfig, world.Size(), cfg.Processes)
	}

	o := applyOptions(opts)
	n := &Node{
		cfg:     cfg,
		world:   world,
		nc:      o.nc,
		logger:  o.logger,
		metrics: o.metrics,
		hooks:   hooks.Fill(o.hooks),
	}

	mgr, err := partition.NewManager(cfg.Field, world,
		partition.WithLogger(n.logger),
		partition.WithMetrics(n.metrics),
	)
	if err != nil {
		return nil, err
	}
	n.mgr = mgr

	initCtx, cancel := context.WithTimeout(ctx, cfg.StartupTimeout)
	defer cancel()
	if len(cfg.Splits) > 0 {
		err = mgr.InitializeWithSplits(initCtx, cfg.Splits)
	} else {
		err = mgr.InitializeUniform(initCtx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize partition: %w", err)
	}

	if err := n.transition(ctx, NodeInit, NodeReady); err != nil {
		return nil, err
	}

	if n.nc != nil && cfg.Status.Enabled {
		if err := n.openStatus(initCtx); err != nil {
			return nil, err
		}
		n.publishStatus(ctx)
	}

	return n, nil
}

// Connect creates a NATS communicator for rank and a node on top of it with
// remote writes enabled. The communicator is closed with the node.
//
// Every process of the run calls Connect with its own rank, or with AutoRank
// to claim the lowest free rank from cfg.Ranks.Bucket. The call waits until
// all cfg.Processes ranks are subscribed, bounded by cfg.StartupTimeout.
//
// Example:
//
//	nc, _ := nats.Connect(nats.DefaultURL)
//	node, err := mason.Connect(ctx, cfg, nc, mason.AutoRank)
//	if err != nil {
//	    return err
//	}
//	defer node.Close(context.Background())
func Connect(ctx context.Context, cfg Config, nc *nats.Conn, rank int, opts ...Option) (*Node, error) {
	SetDefaults(&cfg)
	if nc == nil {
		return nil, fmt.Errorf("%w: NATS connection is required", types.ErrInvalidConfig)
	}
	o := applyOptions(opts)

	startCtx, cancel := context.WithTimeout(ctx, cfg.StartupTimeout)
	defer cancel()

	var claimer *rankclaim.Claimer
	if rank == AutoRank {
		var err error
		if claimer, rank, err = claimRank(startCtx, cfg, nc, o.logger); err != nil {
			return nil, err
		}
	}
	release := func() {
		if claimer != nil {
			_ = claimer.Release(context.Background())
		}
	}

	world, err := comm.NewNATS(startCtx, nc, cfg.Comm.SubjectPrefix, rank, cfg.Processes,
		comm.WithLogger(o.logger),
		comm.WithMetrics(o.metrics),
	)
	if err != nil {
		release()
		return nil, err
	}

	n, err := NewNode(ctx, cfg, world, append(opts, WithNATS(nc))...)
	if err != nil {
		_ = world.Close()
		release()
		return nil, err
	}
	n.ownsWorld = true
	n.claimer = claimer

	return n, nil
}

func claimRank(ctx context.Context, cfg Config, nc *nats.Conn, l Logger) (*rankclaim.Claimer, int, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, -1, fmt.Errorf("%w: jetstream: %w", types.ErrUnreachable, err)
	}
	kv, err := kvutil.EnsureBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:      cfg.Ranks.Bucket,
		Description: "mason rank claims",
		History:     1,
		TTL:         cfg.Ranks.TTL,
		Storage:     jetstream.MemoryStorage,
	}, kvutil.DefaultAttempts)
	if err != nil {
		return nil, -1, fmt.Errorf("%w: rank claims: %w", types.ErrUnreachable, err)
	}

	c := rankclaim.NewClaimer(kv, cfg.Comm.SubjectPrefix, cfg.Processes, cfg.Ranks.TTL, l)
	rank, err := c.Claim(ctx)
	if err != nil {
		return nil, -1, err
	}
	if err := c.StartRenewal(); err != nil {
		_ = c.Release(context.Background())
		return nil, -1, err
	}

	return c, rank, nil
}

func applyOptions(opts []Option) nodeOptions {
	o := nodeOptions{
		logger:  logger.NewNop(),
		metrics: metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// Config returns the node's configuration with defaults applied.
func (n *Node) Config() Config {
	return n.cfg
}

// Manager returns the partition manager.
func (n *Node) Manager() *partition.Manager {
	return n.mgr
}

// World returns the world communicator.
func (n *Node) World() Communicator {
	return n.world
}

// Rank returns the calling process's rank.
func (n *Node) Rank() int {
	return n.world.Rank()
}

// LocalRegion returns the calling process's current local region.
func (n *Node) LocalRegion() Region {
	return n.mgr.LocalRegion()
}

// State returns the current node state.
func (n *Node) State() NodeState {
	return NodeState(n.state.Load())
}

// Steps returns the number of completed Step calls.
func (n *Node) Steps() int {
	return n.steps
}

// Fields returns the names of the registered fields in registration order.
func (n *Node) Fields() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	names := make([]string, len(n.fields))
	for i, f := range n.fields {
		names[i] = f.Name()
	}

	return names
}

// Register adds a field to the synchronization order. Fields are
// synchronized in registration order, which must be the same on every
// process. Fields created with NewField and NewAgentField are registered
// already.
//
// Returns an error wrapping ErrInvalidConfig if a field with the same name is
// registered, or ErrNodeClosed.
func (n *Node) Register(f Synchronizer) error {
	if n.State() == NodeClosed {
		return types.ErrNodeClosed
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.hasField(f.Name()) {
		return fmt.Errorf("%w: field %q is already registered", types.ErrInvalidConfig, f.Name())
	}
	n.fields = append(n.fields, f)

	return nil
}

func (n *Node) hasField(name string) bool {
	return slices.ContainsFunc(n.fields, func(g Synchronizer) bool { return g.Name() == name })
}

// checkNew validates a field before it is created and registered with the
// partition manager.
func (n *Node) checkNew(name string) error {
	if n.State() == NodeClosed {
		return types.ErrNodeClosed
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.hasField(name) {
		return fmt.Errorf("%w: field %q is already registered", types.ErrInvalidConfig, name)
	}

	return nil
}

// Sync runs one synchronization point over every registered field:
//  1. world barrier, so every remote write issued before Sync is queued
//  2. queued remote writes are applied
//  3. agent fields deliver and integrate migrating agents
//  4. world barrier
//  5. halo exchange of every field
//
// Sync is collective.
func (n *Node) Sync(ctx context.Context) error {
	if err := n.transition(ctx, NodeReady, NodeSyncing); err != nil {
		return err
	}
	err := n.sync(ctx)
	n.finish(ctx, NodeSyncing)
	if err != nil {
		return n.fail(ctx, err)
	}

	return nil
}

func (n *Node) sync(ctx context.Context) error {
	start := time.Now()

	n.mu.Lock()
	fields := slices.Clone(n.fields)
	n.mu.Unlock()

	if err := n.world.Barrier(ctx); err != nil {
		return fmt.Errorf("sync barrier: %w", err)
	}

	for _, f := range fields {
		if _, err := f.ApplyRemote(); err != nil {
			return err
		}
	}
	for _, f := range fields {
		if m, ok := f.(Migrator); ok {
			if err := m.Sync(ctx); err != nil {
				return err
			}
		}
	}

	if err := n.world.Barrier(ctx); err != nil {
		return fmt.Errorf("sync barrier: %w", err)
	}

	for _, f := range fields {
		if err := f.SyncHalo(ctx); err != nil {
			return err
		}
	}

	n.logger.Debug("synchronized",
		"rank", n.Rank(),
		"fields", len(fields),
		"duration", time.Since(start),
	)

	return nil
}

// Balance rebalances one tree level using load, the calling process's load
// since the last balance, then synchronizes so displaced agents reach their
// new owners and halos reflect the new partition.
//
// Successive calls cycle the level from the deepest group level up to the
// root, so the whole tree is balanced every TreeDepth calls.
//
// Balance is collective.
func (n *Node) Balance(ctx context.Context, load float64) error {
	if err := n.transition(ctx, NodeReady, NodeBalancing); err != nil {
		return err
	}

	depth := n.mgr.TreeDepth()
	if depth < 1 {
		n.finish(ctx, NodeBalancing)
		return nil
	}
	level := depth - 1 - n.balances%depth
	n.load = load

	err := n.mgr.Rebalance(ctx, load, level)
	if err == nil {
		n.balances++
		err = n.sync(ctx)
	}
	n.finish(ctx, NodeBalancing)
	if err != nil {
		return n.fail(ctx, err)
	}

	if err := n.hooks.OnRebalanced(ctx, level, n.mgr.Version()); err != nil {
		n.logger.Error("rebalance hook error", "rank", n.Rank(), "level", level, "error", err)
	}
	n.publishStatus(ctx)

	return nil
}

// Step ends one simulation step: it synchronizes, and every
// cfg.Balance.Interval steps it also balances with load.
//
// Step is collective.
//
// Example:
//
//	for range 1000 {
//	    if _, err := scheduler.Step(ctx); err != nil {
//	        return err
//	    }
//	    load := float64(len(agents.Storage().ObjectsIn(node.LocalRegion())))
//	    if err := node.Step(ctx, load); err != nil {
//	        return err
//	    }
//	}
func (n *Node) Step(ctx context.Context, load float64) error {
	if err := n.Sync(ctx); err != nil {
		return err
	}
	n.steps++

	if every := n.cfg.Balance.Interval; every > 0 && n.steps%every == 0 {
		return n.Balance(ctx, load)
	}

	return nil
}

// Close stops the node's remote servers and, for nodes created by Connect,
// closes the communicator. Closing twice is a no-op.
func (n *Node) Close(ctx context.Context) error {
	prev := NodeState(n.state.Swap(int32(NodeClosed)))
	if prev == NodeClosed {
		return nil
	}
	n.notify(ctx, prev, NodeClosed)

	n.mu.Lock()
	servers := n.servers
	n.servers = nil
	n.mu.Unlock()

	var errs []error
	for _, s := range servers {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if n.status != nil {
		if err := n.status.Delete(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if c, ok := n.world.(io.Closer); ok && n.ownsWorld {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if n.claimer != nil {
		if err := n.claimer.Release(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// transition moves the node from one state to another, failing if the node
// is not in from.
func (n *Node) transition(ctx context.Context, from, to NodeState) error {
	if !isValidTransition(from, to) {
		return fmt.Errorf("%w: %s to %s", types.ErrInvalidTransition, from, to)
	}
	if !n.state.CompareAndSwap(int32(from), int32(to)) { //nolint:gosec // State values are controlled enum
		cur := n.State()
		if cur == NodeClosed {
			return types.ErrNodeClosed
		}

		return fmt.Errorf("%w: node is %s, not %s", types.ErrInvalidTransition, cur, from)
	}
	n.notify(ctx, from, to)

	return nil
}

// finish returns the node to NodeReady unless it was closed meanwhile.
func (n *Node) finish(ctx context.Context, from NodeState) {
	if n.state.CompareAndSwap(int32(from), int32(NodeReady)) { //nolint:gosec // State values are controlled enum
		n.notify(ctx, from, NodeReady)
	}
}

func (n *Node) notify(ctx context.Context, from, to NodeState) {
	n.logger.Debug("state transition", "rank", n.world.Rank(), "from", from.String(), "to", to.String())

	if err := n.hooks.OnStateChanged(ctx, from, to); err != nil {
		n.logger.Error("state change hook error", "from", from, "to", to, "error", err)
	}
}

func (n *Node) fail(ctx context.Context, err error) error {
	n.logger.Error("collective step failed", "rank", n.Rank(), "error", err)
	if herr := n.hooks.OnError(ctx, err); herr != nil {
		n.logger.Error("error hook error", "rank", n.Rank(), "error", herr)
	}

	return err
}

// isValidTransition reports whether a node may move from one state to
// another. NodeClosed is reached through Close only.
func isValidTransition(from, to NodeState) bool {
	validTransitions := map[NodeState][]NodeState{
		NodeInit:      {NodeReady},
		NodeReady:     {NodeSyncing, NodeBalancing},
		NodeSyncing:   {NodeReady},
		NodeBalancing: {NodeReady},
		NodeClosed:    {},
	}

	return slices.Contains(validTransitions[from], to)
}

// NewField creates a halo field on the node's partition, serves it for
// remote writes when the node has a NATS connection, and registers it.
//
// NewField is collective: every process creates the same fields in the same
// order. The logger and metrics of the node are applied before opts.
//
// Example:
//
//	cells, err := mason.NewField[*Cell](ctx, node, "cells",
//	    storage.NewObjectGrid[*Cell](node.LocalRegion()))
func NewField[T Object](ctx context.Context, n *Node, name string, storage Storage[T], opts ...halo.Option) (*halo.Field[T], error) {
	if err := n.checkNew(name); err != nil {
		return nil, err
	}

	f, err := halo.New[T](name, n.mgr, storage, n.fieldOptions(opts)...)
	if err != nil {
		return nil, err
	}
	if err := serve(ctx, n, f); err != nil {
		return nil, err
	}
	if err := n.Register(f); err != nil {
		return nil, err
	}

	return f, nil
}

// NewAgentField creates an agent field whose agents are stepped by scheduler.
// Apart from that it behaves as NewField.
func NewAgentField[A Agent](
	ctx context.Context,
	n *Node,
	name string,
	storage Storage[A],
	scheduler types.Scheduler,
	opts ...halo.Option,
) (*halo.AgentField[A], error) {
	if err := n.checkNew(name); err != nil {
		return nil, err
	}

	f, err := halo.NewAgentField[A](name, n.mgr, storage, scheduler, n.fieldOptions(opts)...)
	if err != nil {
		return nil, err
	}
	if err := serve(ctx, n, f.Field); err != nil {
		return nil, err
	}
	if err := n.Register(f); err != nil {
		return nil, err
	}

	return f, nil
}

func (n *Node) fieldOptions(opts []halo.Option) []halo.Option {
	return append([]halo.Option{
		halo.WithLogger(n.logger),
		halo.WithMetrics(n.metrics),
	}, opts...)
}

// serve exposes f for remote writes and gives it a resolver, then waits until
// every process has done the same so no write targets an unregistered owner.
func serve[T Object](ctx context.Context, n *Node, f *halo.Field[T]) error {
	if n.nc == nil {
		return nil
	}

	reg, err := n.openRegistry(ctx)
	if err != nil {
		return err
	}

	opts := []remote.Option{
		remote.WithLogger(n.logger),
		remote.WithMetrics(n.metrics),
		remote.WithTimeout(n.cfg.OperationTimeout),
		remote.WithSubjectPrefix(n.cfg.Remote.SubjectPrefix),
	}
	srv, err := remote.Serve[T](ctx, n.nc, reg.KV(), f.Name(), n.Rank(), f, opts...)
	if err != nil {
		return err
	}
	f.SetResolver(remote.NewResolver[T](n.nc, reg.KV(), f.Name(), n.world.Size(), opts...))

	n.mu.Lock()
	n.servers = append(n.servers, srv)
	n.mu.Unlock()

	if err := n.world.Barrier(ctx); err != nil {
		return fmt.Errorf("field %q: endpoint barrier: %w", f.Name(), err)
	}

	return nil
}

func (n *Node) openRegistry(ctx context.Context) (*remote.Registry, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.registry != nil {
		return n.registry, nil
	}

	js, err := jetstream.New(n.nc)
	if err != nil {
		return nil, fmt.Errorf("%w: jetstream: %w", types.ErrUnreachable, err)
	}
	reg, err := remote.OpenRegistry(ctx, js, n.cfg.Remote.Bucket)
	if err != nil {
		return nil, err
	}
	n.registry = reg

	return reg, nil
}

func (n *Node) openStatus(ctx context.Context) error {
	js, err := jetstream.New(n.nc)
	if err != nil {
		return fmt.Errorf("%w: jetstream: %w", types.ErrUnreachable, err)
	}
	kv, err := kvutil.EnsureBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:      n.cfg.Status.Bucket,
		Description: "mason node status",
		History:     1,
		Storage:     jetstream.MemoryStorage,
	}, kvutil.DefaultAttempts)
	if err != nil {
		return fmt.Errorf("%w: status bucket: %w", types.ErrUnreachable, err)
	}
	n.status = status.New(kv, n.cfg.Comm.SubjectPrefix, n.Rank())

	return nil
}

// publishStatus is best effort: a failed publish is logged and the run goes on.
func (n *Node) publishStatus(ctx context.Context) {
	if n.status == nil {
		return
	}

	err := n.status.Publish(ctx, status.Status{
		State:   n.State().String(),
		Region:  n.LocalRegion(),
		Version: n.mgr.Version(),
		Steps:   n.steps,
		Load:    n.load,
	})
	if err != nil {
		n.logger.Warn("failed to publish status", "rank", n.Rank(), "error", err)
	}
}

// NodeStatus is the status a node publishes when cfg.Status is enabled.
type NodeStatus = status.Status

// ListStatus returns the statuses published by the run configured by cfg,
// ordered by rank.
func ListStatus(ctx context.Context, nc *nats.Conn, cfg Config) ([]NodeStatus, error) {
	SetDefaults(&cfg)

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("%w: jetstream: %w", types.ErrUnreachable, err)
	}
	kv, err := js.KeyValue(ctx, cfg.Status.Bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: status bucket: %w", types.ErrUnreachable, err)
	}

	return status.List(ctx, kv, cfg.Comm.SubjectPrefix)
}
