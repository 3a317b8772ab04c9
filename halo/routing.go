package halo

import (
	"context"
	"fmt"

	"github.com/eclab/mason-sub011/geom"
	"github.com/eclab/mason-sub011/types"
)

// SetObjectLocation places obj at p. A point owned by another process is
// written through that process's remote handle, and any local copy of obj
// is dropped.
func (f *Field[T]) SetObjectLocation(ctx context.Context, obj T, p geom.Point) error {
	p = f.wrap(p)
	if f.local.Contains(p) {
		f.markDirty()
		return f.storage.SetLocation(obj, p)
	}

	if err := f.route(ctx, types.RemoteOp[T]{Kind: types.OpAdd, Point: p, Object: obj}); err != nil {
		return err
	}
	if f.storage.RemoveObject(obj) {
		f.markDirty()
	}

	return nil
}

// RemoveObject removes obj found at p.
func (f *Field[T]) RemoveObject(ctx context.Context, p geom.Point, obj T) error {
	p = f.wrap(p)
	if f.local.Contains(p) {
		f.markDirty()
		f.storage.RemoveObject(obj)

		return nil
	}

	return f.route(ctx, types.RemoteOp[T]{Kind: types.OpRemove, Point: p, Object: obj})
}

// RemoveObjectsAt removes every object at p.
func (f *Field[T]) RemoveObjectsAt(ctx context.Context, p geom.Point) error {
	p = f.wrap(p)
	if f.local.Contains(p) {
		f.markDirty()
		return f.storage.RemoveObjectsAt(p)
	}

	return f.route(ctx, types.RemoteOp[T]{Kind: types.OpRemoveAll, Point: p})
}

// MoveObject moves obj from one point to another. When both points belong to
// the same remote process the move is a single remote call.
func (f *Field[T]) MoveObject(ctx context.Context, from, to geom.Point, obj T) error {
	from, to = f.wrap(from), f.wrap(to)
	fromLocal, toLocal := f.local.Contains(from), f.local.Contains(to)

	switch {
	case fromLocal && toLocal:
		f.markDirty()
		return f.storage.SetLocation(obj, to)
	case fromLocal:
		f.markDirty()
		f.storage.RemoveObject(obj)

		return f.route(ctx, types.RemoteOp[T]{Kind: types.OpAdd, Point: to, Object: obj})
	case toLocal:
		if err := f.route(ctx, types.RemoteOp[T]{Kind: types.OpRemove, Point: from, Object: obj}); err != nil {
			return err
		}
		f.markDirty()

		return f.storage.SetLocation(obj, to)
	}

	fromRank, err := f.mgr.RankOf(from)
	if err != nil {
		return err
	}
	toRank, err := f.mgr.RankOf(to)
	if err != nil {
		return err
	}
	if fromRank == toRank {
		return f.route(ctx, types.RemoteOp[T]{Kind: types.OpMove, Point: from, To: to, Object: obj})
	}
	if err := f.route(ctx, types.RemoteOp[T]{Kind: types.OpRemove, Point: from, Object: obj}); err != nil {
		return err
	}

	return f.route(ctx, types.RemoteOp[T]{Kind: types.OpAdd, Point: to, Object: obj})
}

// route sends op to the process owning op.Point.
func (f *Field[T]) route(ctx context.Context, op types.RemoteOp[T]) error {
	rank, err := f.mgr.RankOf(op.Point)
	if err != nil {
		return err
	}
	if f.remote == nil {
		return fmt.Errorf("field %q: %s at %v: %w", f.name, op.Kind, op.Point, types.ErrNoRemote)
	}

	h, err := f.remote.Resolve(ctx, rank)
	if err != nil {
		return fmt.Errorf("field %q: failed to resolve rank %d: %w", f.name, rank, err)
	}
	op.Field = f.name
	if err := h.Apply(ctx, op); err != nil {
		return fmt.Errorf("field %q: remote %s at %v on rank %d failed: %w", f.name, op.Kind, op.Point, rank, err)
	}

	return nil
}

// Enqueue accepts a write from another process. The write is validated
// against the current local region and applied at the next ApplyRemote or
// SyncHalo.
//
// Returns an error wrapping types.ErrInvalidLocation if a point of op is not
// owned by the calling process.
func (f *Field[T]) Enqueue(op types.RemoteOp[T]) error {
	if op.Field != "" && op.Field != f.name {
		return fmt.Errorf("%w: op for field %q sent to field %q", types.ErrInvalidConfig, op.Field, f.name)
	}
	if !f.mgr.IsLocal(op.Point) {
		return fmt.Errorf("%w: %v is not owned by rank %d", types.ErrInvalidLocation, op.Point, f.mgr.Rank())
	}
	if op.Kind == types.OpMove && !f.mgr.IsLocal(op.To) {
		return fmt.Errorf("%w: %v is not owned by rank %d", types.ErrInvalidLocation, op.To, f.mgr.Rank())
	}

	f.mu.Lock()
	f.queue = append(f.queue, op)
	f.mu.Unlock()

	return nil
}

// Pending returns the number of queued remote writes.
func (f *Field[T]) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.queue)
}

// ApplyRemote applies queued remote writes in arrival order and returns how
// many were applied.
func (f *Field[T]) ApplyRemote() (int, error) {
	f.mu.Lock()
	ops := f.queue
	f.queue = nil
	f.mu.Unlock()

	for i, op := range ops {
		var err error
		p := f.wrap(op.Point)
		switch op.Kind {
		case types.OpAdd:
			err = f.storage.SetLocation(op.Object, p)
		case types.OpRemove:
			f.storage.RemoveObject(op.Object)
		case types.OpRemoveAll:
			err = f.storage.RemoveObjectsAt(p)
		case types.OpMove:
			err = f.storage.SetLocation(op.Object, f.wrap(op.To))
		default:
			err = fmt.Errorf("%w: unknown remote op %d", types.ErrInvalidConfig, op.Kind)
		}
		if err != nil {
			return i, fmt.Errorf("field %q: failed to apply remote %s at %v: %w", f.name, op.Kind, op.Point, err)
		}
	}

	if len(ops) > 0 {
		f.markDirty()
		f.metrics.RecordRemoteOpsApplied(f.name, len(ops))
		f.logger.Debug("remote writes applied", "field", f.name, "rank", f.mgr.Rank(), "count", len(ops))
	}

	return len(ops), nil
}
