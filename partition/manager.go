// Package partition assigns the leaves of a spatial partition tree to
// processes and maintains the communication topology derived from it.
//
// Every process holds a replica of the tree. Initialization and rebalancing
// are collective: all processes call them in the same order with the same
// arguments, and every replica applies the same operations, so the replicas
// never diverge.
package partition

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/eclab/mason-sub011/geom"
	"github.com/eclab/mason-sub011/internal/tree"
	"github.com/eclab/mason-sub011/types"
)

// Manager owns the partition tree of one process.
//
// Lifecycle:
//   - Create with NewManager()
//   - Call InitializeUniform() or InitializeWithSplits() on every process
//   - Register observers such as halo fields
//   - Call Rebalance() on every process in lockstep
//
// Thread Safety:
//   - Accessors are safe for concurrent use
//   - Initialize and Rebalance are collective and must be called from the
//     process's single driving goroutine
type Manager struct {
	cfg   Config
	world types.Communicator

	logger  types.Logger
	metrics types.MetricsCollector

	mu        sync.RWMutex
	tree      *tree.Tree
	leaves    []int // leaf node id by rank
	leaf      int
	neighbors []int
	graph     types.NeighborCommunicator
	groups    []*Group // by level, root first
	version   int
	observers []types.RebalanceObserver
}

// NewManager creates a manager for the calling process.
//
// Parameters:
//   - cfg: Field size, wrap mode and area of interest
//   - world: Communicator spanning every process; its size is the process count
//   - opts: Optional logger, metrics collector and observers
//
// Returns:
//   - *Manager: Manager ready for initialization
//   - error: Error wrapping types.ErrConfiguration if cfg is invalid or the
//     process count cannot be reached by splitting
//
// Example:
//
//	mgr, err := partition.NewManager(partition.Config{
//	    FieldSize:      geom.Point{100, 100},
//	    Toroidal:       true,
//	    AreaOfInterest: geom.Point{1, 1},
//	}, world)
func NewManager(cfg Config, world types.Communicator, opts ...Option) (*Manager, error) {
	if world == nil {
		return nil, fmt.Errorf("%w: communicator is required", types.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t, err := tree.New(cfg.Bounds(), world.Size())
	if err != nil {
		return nil, err
	}

	o := applyOptions(opts)

	return &Manager{
		cfg:       cfg,
		world:     world,
		logger:    o.logger,
		metrics:   o.metrics,
		tree:      t,
		leaf:      tree.NoNode,
		observers: o.observers,
	}, nil
}

// InitializeUniform splits every leaf at its center until there is one leaf
// per process, then builds the communication topology.
//
// The process count must be a power of 2^D and every split must leave
// non-empty children, otherwise an error wrapping types.ErrConfiguration is
// returned.
func (m *Manager) InitializeUniform(ctx context.Context) error {
	procs := m.world.Size()
	div := 1 << m.tree.Dims()
	n := 1
	for n < procs {
		n *= div
	}
	if n != procs {
		return fmt.Errorf("%w: uniform partition needs a power of %d processes, got %d",
			types.ErrConfiguration, div, procs)
	}

	m.mu.Lock()
	for len(m.tree.Leaves()) < procs {
		for _, id := range m.tree.Leaves() {
			r := m.tree.Region(id)
			for i, s := range r.Size() {
				if s < 2 {
					m.mu.Unlock()
					return fmt.Errorf("%w: leaf %v too small to split in dimension %d", types.ErrConfiguration, r, i)
				}
			}
			if err := m.tree.Split(id, r.Center()); err != nil {
				m.mu.Unlock()
				return err
			}
		}
	}
	m.mu.Unlock()

	return m.finishInit(ctx)
}

// InitializeWithSplits builds the tree by splitting, in order, the leaf
// containing each origin at that origin. The result must have exactly one
// leaf per process.
//
// Returns an error wrapping types.ErrGeometry if an origin is outside the
// field or on a leaf's upper-left boundary, and types.ErrConfiguration if the
// leaf count does not match the process count.
func (m *Manager) InitializeWithSplits(ctx context.Context, origins []geom.Point) error {
	m.mu.Lock()
	for _, o := range origins {
		id, err := m.tree.LeafFor(m.tree.Root(), o)
		if err != nil {
			m.mu.Unlock()
			return err
		}
		r := m.tree.Region(id)
		for i := range o {
			if o[i] <= r.UL[i] {
				m.mu.Unlock()
				return fmt.Errorf("%w: origin %v leaves an empty child of %v", types.ErrGeometry, o, r)
			}
		}
		if err := m.tree.Split(id, o); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	leaves := len(m.tree.Leaves())
	m.mu.Unlock()

	if leaves != m.world.Size() {
		return fmt.Errorf("%w: %d splits produced %d leaves for %d processes",
			types.ErrConfiguration, len(origins), leaves, m.world.Size())
	}

	return m.finishInit(ctx)
}

func (m *Manager) finishInit(ctx context.Context) error {
	m.mu.Lock()
	m.leaves = m.tree.MapLeavesToProcesses()
	m.leaf = m.leaves[m.world.Rank()]
	err := m.checkAOI()
	m.mu.Unlock()
	if err != nil {
		return err
	}

	if err := m.buildTopology(ctx); err != nil {
		return err
	}

	m.logger.Info("partition initialized",
		"rank", m.world.Rank(),
		"processes", m.world.Size(),
		"region", m.LocalRegion().String(),
		"neighbors", len(m.Neighbors()),
	)

	return nil
}

// checkAOI verifies that every leaf is wider than twice the area of
// interest, so a halo never reaches past a neighbor's neighbor.
func (m *Manager) checkAOI() error {
	for _, id := range m.leaves {
		r := m.tree.Region(id)
		for i, s := range r.Size() {
			if s <= 2*m.cfg.AreaOfInterest[i] {
				return fmt.Errorf("%w: leaf %v is too small for area of interest %v",
					types.ErrConfiguration, r, m.cfg.AreaOfInterest)
			}
		}
	}

	return nil
}

// Config returns the manager's configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Bounds returns the field region.
func (m *Manager) Bounds() geom.Region {
	return m.cfg.Bounds()
}

// AreaOfInterest returns the halo extent.
func (m *Manager) AreaOfInterest() geom.Point {
	return m.cfg.AreaOfInterest.Clone()
}

// Toroidal reports whether the field wraps around.
func (m *Manager) Toroidal() bool {
	return m.cfg.Toroidal
}

// World returns the communicator spanning every process.
func (m *Manager) World() types.Communicator {
	return m.world
}

// Rank returns the calling process's rank.
func (m *Manager) Rank() int {
	return m.world.Rank()
}

// Size returns the process count.
func (m *Manager) Size() int {
	return m.world.Size()
}

// Initialized reports whether the partition has been initialized.
func (m *Manager) Initialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.leaf != tree.NoNode
}

// LocalRegion returns the region owned by the calling process. Its ID is the
// process's rank.
func (m *Manager) LocalRegion() geom.Region {
	return m.RegionOf(m.world.Rank())
}

// RegionOf returns the region owned by rank, tagged with rank as its ID.
// It returns an empty region before initialization.
func (m *Manager) RegionOf(rank int) geom.Region {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if rank < 0 || rank >= len(m.leaves) {
		return geom.Region{}
	}

	return m.tree.Region(m.leaves[rank]).WithID(rank)
}

// RankOf returns the rank owning p. On a toroidal field p is wrapped into the
// field first.
//
// Returns an error wrapping types.ErrInvalidLocation if p is outside a
// non-toroidal field, or types.ErrNotInitialized before initialization.
func (m *Manager) RankOf(p geom.Point) (int, error) {
	if m.cfg.Toroidal {
		p = p.Wrap(m.cfg.Bounds())
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.leaf == tree.NoNode {
		return -1, types.ErrNotInitialized
	}
	id, err := m.tree.LeafFor(m.tree.Root(), p)
	if err != nil {
		return -1, fmt.Errorf("%w: %w", types.ErrInvalidLocation, err)
	}

	return m.tree.Proc(id), nil
}

// IsLocal reports whether p, wrapped on a toroidal field, is owned by the
// calling process.
func (m *Manager) IsLocal(p geom.Point) bool {
	rank, err := m.RankOf(p)

	return err == nil && rank == m.world.Rank()
}

// Neighbors returns the ranks whose regions intersect the calling process's
// halo, in ascending order. The calling process is never included.
func (m *Manager) Neighbors() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.neighbors)
}

// Graph returns the neighbor communicator of the current topology.
func (m *Manager) Graph() types.NeighborCommunicator {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.graph
}

// Version returns the topology version, incremented by every rebuild.
func (m *Manager) Version() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.version
}

// TreeDepth returns the level of the deepest leaf.
func (m *Manager) TreeDepth() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.tree.Depth()
}

// Levels returns the number of group levels the calling process belongs to,
// which is the depth of its leaf.
func (m *Manager) Levels() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.groups)
}

// Group returns the calling process's group at level, or false if the
// process's leaf is not deeper than level.
func (m *Manager) Group(level int) (*Group, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if level < 0 || level >= len(m.groups) {
		return nil, false
	}

	return m.groups[level], true
}

// RegisterObserver adds an observer notified around every rebalance.
// Observers run in registration order.
func (m *Manager) RegisterObserver(obs types.RebalanceObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.observers = append(m.observers, obs)
}
