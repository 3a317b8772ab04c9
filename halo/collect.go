package halo

import (
	"context"
	"fmt"
	"time"

	"github.com/eclab/mason-sub011/geom"
	"github.com/eclab/mason-sub011/types"
)

// Collect gathers every process's local region into full at root.
//
// full is only used on root and must cover the whole field. Collect is a
// world collective.
func (f *Field[T]) Collect(ctx context.Context, root int, full types.Storage[T]) error {
	start := time.Now()
	world := f.mgr.World()

	data, err := f.storage.Pack([]geom.Region{f.local})
	if err != nil {
		return fmt.Errorf("field %q: failed to pack local region: %w", f.name, err)
	}
	parts, err := world.Gather(ctx, root, data)
	if err != nil {
		return fmt.Errorf("field %q: collect failed: %w", f.name, err)
	}

	if world.Rank() == root {
		if full == nil {
			return fmt.Errorf("%w: field %q: collect root needs a storage", types.ErrInvalidConfig, f.name)
		}
		for rank, part := range parts {
			if err := full.Unpack([]geom.Region{f.mgr.RegionOf(rank)}, part); err != nil {
				return fmt.Errorf("field %q: failed to unpack region of rank %d: %w", f.name, rank, err)
			}
		}
	}

	f.metrics.RecordCollective(f.name, "collect", time.Since(start).Seconds())

	return nil
}

// Distribute scatters full from root so every process receives its local
// region, then synchronizes the halo. It is the inverse of Collect.
func (f *Field[T]) Distribute(ctx context.Context, root int, full types.Storage[T]) error {
	start := time.Now()
	world := f.mgr.World()

	var parts [][]byte
	if world.Rank() == root {
		if full == nil {
			return fmt.Errorf("%w: field %q: distribute root needs a storage", types.ErrInvalidConfig, f.name)
		}
		parts = make([][]byte, world.Size())
		for rank := range parts {
			data, err := full.Pack([]geom.Region{f.mgr.RegionOf(rank)})
			if err != nil {
				return fmt.Errorf("field %q: failed to pack region of rank %d: %w", f.name, rank, err)
			}
			parts[rank] = data
		}
	}

	part, err := world.Scatter(ctx, root, parts)
	if err != nil {
		return fmt.Errorf("field %q: distribute failed: %w", f.name, err)
	}
	if err := f.storage.Unpack([]geom.Region{f.local}, part); err != nil {
		return fmt.Errorf("field %q: failed to unpack local region: %w", f.name, err)
	}

	f.metrics.RecordCollective(f.name, "distribute", time.Since(start).Seconds())

	return f.SyncHalo(ctx)
}

// CollectGroup gathers the local regions of the calling process's group at
// level into groupStorage at the group master. groupStorage is only used on
// the master and must cover the group's node region.
//
// Processes without a group at level skip the gather; every process then
// meets at a world barrier.
func (f *Field[T]) CollectGroup(ctx context.Context, level int, groupStorage types.Storage[T]) error {
	start := time.Now()

	if g, ok := f.mgr.Group(level); ok {
		data, err := f.storage.Pack([]geom.Region{f.local})
		if err != nil {
			return fmt.Errorf("field %q: failed to pack local region: %w", f.name, err)
		}
		parts, err := g.Comm.Gather(ctx, 0, data)
		if err != nil {
			return fmt.Errorf("field %q: group collect at level %d failed: %w", f.name, level, err)
		}
		if g.Comm.Rank() == 0 {
			if groupStorage == nil {
				return fmt.Errorf("%w: field %q: group master needs a storage", types.ErrInvalidConfig, f.name)
			}
			for i, part := range parts {
				region := f.mgr.RegionOf(g.Members[i])
				if err := groupStorage.Unpack([]geom.Region{region}, part); err != nil {
					return fmt.Errorf("field %q: failed to unpack region of rank %d: %w", f.name, g.Members[i], err)
				}
			}
		}
	}

	if err := f.mgr.World().Barrier(ctx); err != nil {
		return fmt.Errorf("field %q: group collect barrier failed: %w", f.name, err)
	}
	f.metrics.RecordCollective(f.name, "collect_group", time.Since(start).Seconds())

	return nil
}

// DistributeGroup is the inverse of CollectGroup: the group master scatters
// groupStorage to the members' local regions. Every process then meets at a
// world barrier and synchronizes the halo.
func (f *Field[T]) DistributeGroup(ctx context.Context, level int, groupStorage types.Storage[T]) error {
	start := time.Now()

	if g, ok := f.mgr.Group(level); ok {
		var parts [][]byte
		if g.Comm.Rank() == 0 {
			if groupStorage == nil {
				return fmt.Errorf("%w: field %q: group master needs a storage", types.ErrInvalidConfig, f.name)
			}
			parts = make([][]byte, len(g.Members))
			for i, member := range g.Members {
				data, err := groupStorage.Pack([]geom.Region{f.mgr.RegionOf(member)})
				if err != nil {
					return fmt.Errorf("field %q: failed to pack region of rank %d: %w", f.name, member, err)
				}
				parts[i] = data
			}
		}

		part, err := g.Comm.Scatter(ctx, 0, parts)
		if err != nil {
			return fmt.Errorf("field %q: group distribute at level %d failed: %w", f.name, level, err)
		}
		if err := f.storage.Unpack([]geom.Region{f.local}, part); err != nil {
			return fmt.Errorf("field %q: failed to unpack local region: %w", f.name, err)
		}
	}

	if err := f.mgr.World().Barrier(ctx); err != nil {
		return fmt.Errorf("field %q: group distribute barrier failed: %w", f.name, err)
	}
	f.metrics.RecordCollective(f.name, "distribute_group", time.Since(start).Seconds())

	return f.SyncHalo(ctx)
}
