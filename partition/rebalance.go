package partition

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/eclab/mason-sub011/geom"
	"github.com/eclab/mason-sub011/types"
)

// originUpdate is the per-process contribution to a rebalance. Node is -1
// for processes that are not the master of a group at the level.
type originUpdate struct {
	Node   int        `json:"node"`
	Origin geom.Point `json:"origin,omitempty"`
}

// Rebalance moves the split origin of every group node at level toward the
// load-weighted centroid of its members' leaves.
//
// Every process must call Rebalance with the same level. Processes whose
// leaf is not deeper than level contribute nothing but still take part in
// the world collectives. The protocol is:
//  1. group members reduce [load, load*center...] to the group master
//  2. every master computes its node's new origin
//  3. all processes exchange the new origins
//  4. observers' PreCommit, then every replica moves the origins
//  5. the topology is rebuilt, then observers' PostCommit
//
// Parameters:
//   - ctx: Context bounding every collective
//   - load: Non-negative load of the calling process
//   - level: Tree level whose nodes are moved
//
// Returns:
//   - error: Communication, observer or geometry error; the run cannot continue
func (m *Manager) Rebalance(ctx context.Context, load float64, level int) error {
	if !m.Initialized() {
		return types.ErrNotInitialized
	}

	start := time.Now()
	moved, err := m.rebalance(ctx, load, level)
	if err != nil {
		m.metrics.RecordRebalanceFailure(level)
		m.logger.Error("rebalance failed", "rank", m.world.Rank(), "level", level, "error", err)

		return err
	}

	m.metrics.RecordRebalance(level, time.Since(start).Seconds(), moved)
	m.logger.Info("rebalance committed",
		"rank", m.world.Rank(),
		"level", level,
		"moved", moved,
		"version", m.Version(),
		"region", m.LocalRegion().String(),
	)

	return nil
}

func (m *Manager) rebalance(ctx context.Context, load float64, level int) (int, error) {
	update := originUpdate{Node: -1}
	if g, ok := m.Group(level); ok {
		center := m.LocalRegion().Center()
		vals := make([]float64, 1+len(center))
		vals[0] = load
		for i, c := range center {
			vals[i+1] = load * float64(c)
		}

		sum, err := g.Comm.ReduceSum(ctx, 0, vals)
		if err != nil {
			return 0, fmt.Errorf("failed to reduce load of group %d: %w", g.Node, err)
		}
		if g.Comm.Rank() == 0 {
			update = originUpdate{Node: g.Node, Origin: m.weightedOrigin(g.Node, sum)}
		}
	}

	data, err := json.Marshal(update)
	if err != nil {
		return 0, fmt.Errorf("failed to encode origin update: %w", err)
	}
	all, err := m.world.AllGather(ctx, data)
	if err != nil {
		return 0, fmt.Errorf("failed to exchange origin updates: %w", err)
	}

	var updates []originUpdate
	for rank, raw := range all {
		var u originUpdate
		if err := json.Unmarshal(raw, &u); err != nil {
			return 0, fmt.Errorf("failed to decode origin update from rank %d: %w", rank, err)
		}
		if u.Node >= 0 {
			updates = append(updates, u)
		}
	}

	m.mu.RLock()
	observers := slices.Clone(m.observers)
	m.mu.RUnlock()

	for _, obs := range observers {
		if err := obs.PreCommit(ctx, level); err != nil {
			return 0, fmt.Errorf("pre-commit observer failed: %w", err)
		}
	}

	moved := 0
	m.mu.Lock()
	for _, u := range updates {
		if m.tree.Origin(u.Node).Equal(u.Origin) {
			continue
		}
		if err := m.tree.MoveOrigin(u.Node, u.Origin); err != nil {
			m.mu.Unlock()
			return 0, err
		}
		moved++
	}
	if err := m.checkAOI(); err != nil {
		m.logger.Warn("rebalanced leaves are narrower than the halo", "rank", m.world.Rank(), "error", err)
	}
	m.mu.Unlock()

	if err := m.buildTopology(ctx); err != nil {
		return 0, err
	}

	for _, obs := range observers {
		if err := obs.PostCommit(ctx, level); err != nil {
			return 0, fmt.Errorf("post-commit observer failed: %w", err)
		}
	}

	return moved, nil
}

// weightedOrigin turns the reduced [load, load*center...] sums of a group into
// the node's new origin. Zero total load keeps the current origin.
//
// The result is clamped so that each child keeps room for its own subtree:
// (2*aoi+1) cells per leaf level below it, per dimension. A node too small
// for that margin gets at most its center, so every child stays non-empty.
func (m *Manager) weightedOrigin(node int, sum []float64) geom.Point {
	m.mu.RLock()
	defer m.mu.RUnlock()

	origin := m.tree.Origin(node)
	if sum[0] <= 0 {
		return origin
	}

	below := 0
	for _, leaf := range m.tree.LeavesUnder(node) {
		below = max(below, m.tree.Level(leaf)-m.tree.Level(node)-1)
	}

	r := m.tree.Region(node)
	for i := range origin {
		extent := r.BR[i] - r.UL[i]
		margin := min((2*m.cfg.AreaOfInterest[i]+1)<<below, max(1, extent/2))
		o := int(math.Floor(sum[i+1] / sum[0]))
		origin[i] = max(r.UL[i]+margin, min(r.BR[i]-margin, o))
	}

	return origin
}
