// Package halo implements halo fields: per-process storage that covers the
// process's local region grown by the area of interest, kept consistent with
// the neighbors' local regions by explicit synchronization.
//
// A Field moves between two states. Any local write makes it
// Unsynchronized; SyncHalo, Distribute and DistributeGroup make it
// Synchronized. There is no background synchronization.
//
// Every operation that talks to other processes is collective: all
// processes must call it in the same order, or the run stalls.
package halo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eclab/mason-sub011/geom"
	"github.com/eclab/mason-sub011/partition"
	"github.com/eclab/mason-sub011/types"
)

// Field is a halo field of objects of type T.
//
// Thread Safety:
//   - Enqueue is safe for concurrent use, so remote servers may call it from
//     transport goroutines
//   - Every other method must be called from the process's driving goroutine
type Field[T types.Object] struct {
	name    string
	mgr     *partition.Manager
	storage types.Storage[T]
	remote  types.RemoteResolver[T]

	logger  types.Logger
	metrics types.MetricsCollector

	local     geom.Region
	halo      geom.Region
	shifts    []geom.Point
	graph     types.NeighborCommunicator
	exchanges []Exchange // aligned with graph.Neighbors()
	self      Exchange
	state     types.FieldState

	// group storage collected at a master between PreCommit and PostCommit
	pending map[int]types.Storage[T]

	mu    sync.Mutex
	queue []types.RemoteOp[T]
}

// Compile-time assertions.
var (
	_ types.RebalanceObserver            = (*Field[types.Object])(nil)
	_ types.RemoteExecutor[types.Object] = (*Field[types.Object])(nil)
)

// New creates a field named name backed by storage, registers it with the
// manager as a rebalance observer and loads the current partition.
//
// The manager must be initialized. name must be identical on every process.
//
// Example:
//
//	f, err := halo.New[*Walker]("agents", mgr, storage.NewObjectGrid[*Walker](mgr.LocalRegion()))
//	if err != nil {
//	    return err
//	}
//	if err := f.SyncHalo(ctx); err != nil {
//	    return err
//	}
func New[T types.Object](name string, mgr *partition.Manager, storage types.Storage[T], opts ...Option) (*Field[T], error) {
	f, err := newField(name, mgr, storage, opts...)
	if err != nil {
		return nil, err
	}
	mgr.RegisterObserver(f)

	return f, nil
}

func newField[T types.Object](name string, mgr *partition.Manager, storage types.Storage[T], opts ...Option) (*Field[T], error) {
	if name == "" {
		return nil, fmt.Errorf("%w: field name is required", types.ErrInvalidConfig)
	}
	if mgr == nil || storage == nil {
		return nil, fmt.Errorf("%w: field %q needs a manager and a storage", types.ErrInvalidConfig, name)
	}
	if !mgr.Initialized() {
		return nil, fmt.Errorf("field %q: %w", name, types.ErrNotInitialized)
	}

	o := applyOptions(opts)
	f := &Field[T]{
		name:    name,
		mgr:     mgr,
		storage: storage,
		logger:  o.logger,
		metrics: o.metrics,
		shifts:  shiftsFor(mgr.Bounds(), mgr.Toroidal()),
		pending: make(map[int]types.Storage[T]),
	}
	f.Reload()

	return f, nil
}

// Name returns the field name.
func (f *Field[T]) Name() string {
	return f.name
}

// Storage returns the underlying local storage.
func (f *Field[T]) Storage() types.Storage[T] {
	return f.storage
}

// SetResolver sets the resolver used for writes to points owned by other
// processes. Without one such writes fail with types.ErrNoRemote.
func (f *Field[T]) SetResolver(r types.RemoteResolver[T]) {
	f.remote = r
}

// State returns the synchronization state.
func (f *Field[T]) State() types.FieldState {
	return f.state
}

// LocalRegion returns the region the calling process owns.
func (f *Field[T]) LocalRegion() geom.Region {
	return f.local.WithID(f.local.ID)
}

// HaloRegion returns the local region grown by the area of interest.
func (f *Field[T]) HaloRegion() geom.Region {
	return f.halo.WithID(f.halo.ID)
}

// Exchanges returns the per-neighbor exchange descriptors, in neighbor order.
func (f *Field[T]) Exchanges() []Exchange {
	return append([]Exchange(nil), f.exchanges...)
}

// Reload recomputes the local and halo regions and the neighbor exchanges
// from the manager's current partition, and reshapes the storage to the halo.
//
// It is called by New and after every rebalance.
func (f *Field[T]) Reload() {
	f.local = f.mgr.LocalRegion()
	f.halo = f.local.Resize(f.mgr.AreaOfInterest())
	f.storage.Reshape(f.halo)
	f.graph = f.mgr.Graph()

	aoi := f.mgr.AreaOfInterest()
	neighbors := f.graph.Neighbors()
	f.exchanges = make([]Exchange, len(neighbors))
	for i, n := range neighbors {
		f.exchanges[i] = computeExchange(n, f.local, f.mgr.RegionOf(n), aoi, f.shifts, false)
	}
	f.self = computeExchange(f.mgr.Rank(), f.local, f.local, aoi, f.shifts, true)
	f.state = types.FieldUnsynchronized

	f.logger.Debug("halo field reloaded",
		"field", f.name,
		"rank", f.mgr.Rank(),
		"local", f.local.String(),
		"halo", f.halo.String(),
		"neighbors", neighbors,
	)
}

// IsLocal reports whether p, wrapped on a toroidal field, lies in the local region.
func (f *Field[T]) IsLocal(p geom.Point) bool {
	return f.local.Contains(f.wrap(p))
}

// InHalo reports whether p can be read locally, directly or through wrap.
func (f *Field[T]) InHalo(p geom.Point) bool {
	_, ok := f.haloPoint(p)

	return ok
}

func (f *Field[T]) wrap(p geom.Point) geom.Point {
	if f.mgr.Toroidal() {
		return p.Wrap(f.mgr.Bounds())
	}

	return p
}

// haloPoint maps p to the equivalent point inside the halo region.
func (f *Field[T]) haloPoint(p geom.Point) (geom.Point, bool) {
	if f.halo.Contains(p) {
		return p, true
	}
	if !f.mgr.Toroidal() {
		return nil, false
	}
	w := p.Wrap(f.mgr.Bounds())
	if f.halo.Contains(w) {
		return w, true
	}
	for _, s := range f.shifts {
		if q := w.Add(s); f.halo.Contains(q) {
			return q, true
		}
	}

	return nil, false
}

// ObjectsAt returns the objects at p as seen by the calling process. Points in
// the halo reflect the last synchronization.
//
// Returns an error wrapping types.ErrInvalidLocation if p is outside the halo.
func (f *Field[T]) ObjectsAt(p geom.Point) ([]T, error) {
	q, ok := f.haloPoint(p)
	if !ok {
		return nil, fmt.Errorf("%w: %v outside halo %v of field %q", types.ErrInvalidLocation, p, f.halo, f.name)
	}

	return f.storage.ObjectsAt(q), nil
}

// SyncHalo applies queued remote writes and refreshes the halo from every
// neighbor in one neighbor exchange round.
func (f *Field[T]) SyncHalo(ctx context.Context) error {
	start := time.Now()

	if _, err := f.ApplyRemote(); err != nil {
		return err
	}

	parts := make([][]byte, len(f.exchanges))
	sent := 0
	for i, ex := range f.exchanges {
		data, err := f.storage.Pack(ex.Send)
		if err != nil {
			return fmt.Errorf("field %q: failed to pack for rank %d: %w", f.name, ex.Rank, err)
		}
		parts[i] = data
		sent += len(data)
	}

	got, err := f.graph.NeighborAllToAll(ctx, parts)
	if err != nil {
		return fmt.Errorf("field %q: halo exchange failed: %w", f.name, err)
	}

	received := 0
	for i, ex := range f.exchanges {
		received += len(got[i])
		if err := f.storage.Unpack(ex.Recv, got[i]); err != nil {
			return fmt.Errorf("field %q: failed to unpack from rank %d: %w", f.name, ex.Rank, err)
		}
	}

	if !f.self.Empty() {
		data, err := f.storage.Pack(f.self.Send)
		if err != nil {
			return fmt.Errorf("field %q: failed to pack wrapped halo: %w", f.name, err)
		}
		if err := f.storage.Unpack(f.self.Recv, data); err != nil {
			return fmt.Errorf("field %q: failed to unpack wrapped halo: %w", f.name, err)
		}
	}

	f.state = types.FieldSynchronized
	f.metrics.RecordHaloSync(f.name, time.Since(start).Seconds(), sent, received)

	return nil
}

// PreCommit applies queued remote writes, which were validated against the
// current partition, then collects the level group's local regions into
// temporary storage at the group master before the partition changes.
func (f *Field[T]) PreCommit(ctx context.Context, level int) error {
	if _, err := f.ApplyRemote(); err != nil {
		return err
	}

	var tmp types.Storage[T]
	if g, ok := f.mgr.Group(level); ok && g.IsMaster(f.mgr.Rank()) {
		tmp = f.storage.NewEmpty(g.Region)
		f.pending[level] = tmp
	}

	return f.CollectGroup(ctx, level, tmp)
}

// PostCommit reloads the new partition and distributes the collected group
// storage back out.
func (f *Field[T]) PostCommit(ctx context.Context, level int) error {
	f.Reload()
	tmp := f.pending[level]
	delete(f.pending, level)

	return f.DistributeGroup(ctx, level, tmp)
}

func (f *Field[T]) markDirty() {
	f.state = types.FieldUnsynchronized
}
