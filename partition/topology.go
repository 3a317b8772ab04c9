package partition

import (
	"context"
	"fmt"
	"slices"

	"github.com/eclab/mason-sub011/geom"
	"github.com/eclab/mason-sub011/types"
)

// Group is the set of processes whose leaves lie under one internal node.
type Group struct {
	// Level is the level of Node in the tree, 0 for the root.
	Level int

	// Node is the internal node id the group covers.
	Node int

	// Master is the world rank owning the node's first-child lineage. It is
	// rank 0 of Comm.
	Master int

	// Members are the world ranks of the group in leaf order.
	Members []int

	// Region is the node's region.
	Region geom.Region

	// Comm spans the members.
	Comm types.Communicator
}

// IsMaster reports whether the given world rank is the group master.
func (g *Group) IsMaster(rank int) bool {
	return g.Master == rank
}

// buildTopology derives the neighbor graph and the group hierarchy of the
// calling process from the current tree, then waits for every process.
func (m *Manager) buildTopology(ctx context.Context) error {
	m.mu.Lock()
	m.version++
	version := m.version
	rank := m.world.Rank()

	var neighbors []int
	for _, id := range m.tree.NeighborsOf(m.leaf, m.cfg.AreaOfInterest, m.cfg.wrapBounds()) {
		neighbors = append(neighbors, m.tree.Proc(id))
	}
	slices.Sort(neighbors)
	neighbors = slices.Compact(neighbors)

	graph, err := m.world.Graph(fmt.Sprintf("n%d", version), neighbors)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to build neighbor graph: %w", err)
	}

	ancestors := m.tree.Ancestors(m.leaf)
	groups := make([]*Group, len(ancestors))
	for _, node := range ancestors {
		var members []int
		for _, leaf := range m.tree.LeavesUnder(node) {
			members = append(members, m.tree.Proc(leaf))
		}
		sub, err := m.world.Sub(fmt.Sprintf("g%d.%d", version, node), members)
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("failed to build group for node %d: %w", node, err)
		}
		level := m.tree.Level(node)
		groups[level] = &Group{
			Level:   level,
			Node:    node,
			Master:  m.tree.Proc(node),
			Members: members,
			Region:  m.tree.Region(node).WithID(node),
			Comm:    sub,
		}
	}

	m.neighbors = neighbors
	m.graph = graph
	m.groups = groups
	m.mu.Unlock()

	m.metrics.RecordTopology(len(neighbors), len(groups))
	m.logger.Debug("topology built",
		"rank", rank,
		"version", version,
		"neighbors", neighbors,
		"levels", len(groups),
	)

	return m.world.Barrier(ctx)
}
