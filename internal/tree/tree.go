// Package tree implements the 2^D-ary spatial partition tree as an arena.
//
// Nodes are addressed by integer id. Children are owned indices, the parent is
// a plain back-index, and ids released by Merge go back to a free stack so
// the arena never grows after construction. The root always has id 0.
package tree

import (
	"fmt"

	"github.com/eclab/mason-sub011/geom"
	"github.com/eclab/mason-sub011/types"
)

// NoNode is the parent index of the root.
const NoNode = -1

type node struct {
	live     bool
	level    int
	region   geom.Region
	origin   geom.Point // nil iff leaf
	parent   int
	children []int
	proc     int
}

// Tree is a partition tree over a fixed root region.
//
// Tree is not safe for concurrent use. Every process holds its own replica and
// keeps it identical to the others by applying the same operations in the
// same order.
type Tree struct {
	dims  int
	nodes []node
	free  []int
}

// New creates a tree whose root covers region, sized for processes leaves.
//
// A tree with P leaves built only from splits has (P-1)/(2^D-1) internal
// nodes, so P-1 must be a multiple of 2^D-1 and the id pool holds
// (P-1)/(2^D-1)*2^D non-root ids.
//
// Returns an error wrapping types.ErrConfiguration if processes cannot be
// reached by splitting.
func New(region geom.Region, processes int) (*Tree, error) {
	d := region.Dims()
	if d == 0 {
		return nil, fmt.Errorf("%w: root region has no dimensions", types.ErrConfiguration)
	}
	if processes < 1 {
		return nil, fmt.Errorf("%w: process count must be positive, got %d", types.ErrConfiguration, processes)
	}

	div := 1 << d
	if (processes-1)%(div-1) != 0 {
		return nil, fmt.Errorf("%w: %d processes cannot be reached by %d-way splits",
			types.ErrConfiguration, processes, div)
	}
	capacity := (processes - 1) / (div - 1) * div

	t := &Tree{
		dims:  d,
		nodes: make([]node, capacity+1),
		free:  make([]int, 0, capacity),
	}
	t.nodes[0] = node{live: true, region: region.WithID(0), parent: NoNode}
	for id := capacity; id >= 1; id-- {
		t.free = append(t.free, id)
	}

	return t, nil
}

// Root returns the root node id.
func (t *Tree) Root() int {
	return 0
}

// Dims returns the dimensionality of the tree.
func (t *Tree) Dims() int {
	return t.dims
}

// Available returns the number of unused ids in the pool.
func (t *Tree) Available() int {
	return len(t.free)
}

// Exists reports whether id refers to a live node.
func (t *Tree) Exists(id int) bool {
	return id >= 0 && id < len(t.nodes) && t.nodes[id].live
}

// Region returns the region owned by node id. The region's ID is the node id.
func (t *Tree) Region(id int) geom.Region {
	return t.nodes[id].region
}

// Origin returns the split origin of node id, or nil for a leaf.
func (t *Tree) Origin(id int) geom.Point {
	if t.nodes[id].origin == nil {
		return nil
	}

	return t.nodes[id].origin.Clone()
}

// Level returns the depth of node id; the root is level 0.
func (t *Tree) Level(id int) int {
	return t.nodes[id].level
}

// Parent returns the parent of node id, or NoNode for the root.
func (t *Tree) Parent(id int) int {
	return t.nodes[id].parent
}

// Children returns the children of node id ordered by child index.
func (t *Tree) Children(id int) []int {
	return append([]int(nil), t.nodes[id].children...)
}

// IsLeaf reports whether node id has no children.
func (t *Tree) IsLeaf(id int) bool {
	return len(t.nodes[id].children) == 0
}

// Proc returns the process assigned to node id.
func (t *Tree) Proc(id int) int {
	return t.nodes[id].proc
}

// SetProc assigns a process to node id.
func (t *Tree) SetProc(id, proc int) {
	t.nodes[id].proc = proc
}

// Split divides leaf id into 2^D children at origin.
//
// Child k covers, in dimension i, [origin_i, br_i) if bit (D-1-i) of k is set
// and [ul_i, origin_i) otherwise.
//
// Returns an error wrapping types.ErrGeometry if the node is already split or
// origin lies outside its region, and types.ErrCapacity if the id pool cannot
// provide 2^D ids. No state changes on error.
func (t *Tree) Split(id int, origin geom.Point) error {
	n := &t.nodes[id]
	if !n.live {
		return fmt.Errorf("%w: node %d does not exist", types.ErrGeometry, id)
	}
	if n.origin != nil {
		return fmt.Errorf("%w: node %d is already split", types.ErrGeometry, id)
	}
	if !n.region.Contains(origin) {
		return fmt.Errorf("%w: origin %v outside node %d region %v", types.ErrGeometry, origin, id, n.region)
	}

	div := 1 << t.dims
	if len(t.free) < div {
		return fmt.Errorf("%w: split of node %d needs %d ids, %d available",
			types.ErrCapacity, id, div, len(t.free))
	}

	n.origin = origin.Clone()
	n.children = make([]int, div)
	for k := range div {
		cid := t.free[len(t.free)-1]
		t.free = t.free[:len(t.free)-1]
		t.nodes[cid] = node{
			live:   true,
			level:  n.level + 1,
			region: t.childRegion(n.region, n.origin, k).WithID(cid),
			parent: id,
			proc:   n.proc,
		}
		n.children[k] = cid
	}

	return nil
}

// Merge discards every descendant of node id, returns their ids to the pool
// and turns the node back into a leaf.
func (t *Tree) Merge(id int) {
	n := &t.nodes[id]
	for i := len(n.children) - 1; i >= 0; i-- {
		cid := n.children[i]
		t.Merge(cid)
		t.nodes[cid] = node{}
		t.free = append(t.free, cid)
	}
	n.children = nil
	n.origin = nil
}

// MoveOrigin splits a leaf at origin, or moves the split origin of an
// internal node and reshapes its descendants accordingly. A descendant whose
// own origin is not strictly inside its new region is re-centred in every
// dimension where it touches or leaves the region, so no child is empty.
func (t *Tree) MoveOrigin(id int, origin geom.Point) error {
	n := &t.nodes[id]
	if n.origin == nil {
		return t.Split(id, origin)
	}
	if !n.region.Contains(origin) {
		return fmt.Errorf("%w: origin %v outside node %d region %v", types.ErrGeometry, origin, id, n.region)
	}

	n.origin = origin.Clone()
	for k, cid := range n.children {
		t.reshape(cid, t.childRegion(n.region, n.origin, k))
	}

	return nil
}

func (t *Tree) reshape(id int, region geom.Region) {
	n := &t.nodes[id]
	n.region = region.WithID(id)
	if n.origin == nil {
		return
	}
	n.origin = interior(region, n.origin)
	for k, cid := range n.children {
		t.reshape(cid, t.childRegion(region, n.origin, k))
	}
}

// interior returns origin with every coordinate that does not split region
// into two non-empty halves moved to the middle of that dimension.
func interior(region geom.Region, origin geom.Point) geom.Point {
	o := origin.Clone()
	for i := range o {
		if o[i] <= region.UL[i] || o[i] >= region.BR[i] {
			o[i] = region.UL[i] + (region.BR[i]-region.UL[i])/2
		}
	}

	return o
}

// childRegion returns the region of child k of a node split at origin.
func (t *Tree) childRegion(parent geom.Region, origin geom.Point, k int) geom.Region {
	ul := make(geom.Point, t.dims)
	br := make(geom.Point, t.dims)
	for i := range t.dims {
		if k&(1<<(t.dims-1-i)) != 0 {
			ul[i], br[i] = origin[i], parent.BR[i]
		} else {
			ul[i], br[i] = parent.UL[i], origin[i]
		}
	}

	return geom.Region{UL: ul, BR: br}
}

// childIndex returns the index of the child of a node split at origin whose
// half-space contains p.
func (t *Tree) childIndex(origin, p geom.Point) int {
	k := 0
	for i := range t.dims {
		if p[i] >= origin[i] {
			k |= 1 << (t.dims - 1 - i)
		}
	}

	return k
}

// LeafFor descends from node from to the leaf containing p.
//
// Returns an error wrapping types.ErrGeometry if p lies outside from's region.
func (t *Tree) LeafFor(from int, p geom.Point) (int, error) {
	if !t.nodes[from].region.Contains(p) {
		return NoNode, fmt.Errorf("%w: point %v outside node %d region %v",
			types.ErrGeometry, p, from, t.nodes[from].region)
	}

	id := from
	for t.nodes[id].origin != nil {
		id = t.nodes[id].children[t.childIndex(t.nodes[id].origin, p)]
	}

	return id, nil
}

// Leaves returns every leaf in depth-first order by child index.
//
// The order depends only on the tree's shape, never on id assignment, so
// every replica enumerates leaves identically.
func (t *Tree) Leaves() []int {
	var out []int
	t.walk(0, func(id int) {
		if t.nodes[id].origin == nil {
			out = append(out, id)
		}
	})

	return out
}

// Nodes returns every live node in depth-first pre-order by child index.
func (t *Tree) Nodes() []int {
	var out []int
	t.walk(0, func(id int) { out = append(out, id) })

	return out
}

// LeavesUnder returns the leaves of the subtree rooted at id, in the same
// order as Leaves.
func (t *Tree) LeavesUnder(id int) []int {
	var out []int
	t.walk(id, func(n int) {
		if t.nodes[n].origin == nil {
			out = append(out, n)
		}
	})

	return out
}

func (t *Tree) walk(id int, fn func(int)) {
	fn(id)
	for _, cid := range t.nodes[id].children {
		t.walk(cid, fn)
	}
}

// Ancestors returns the ancestors of id from its parent up to the root.
func (t *Tree) Ancestors(id int) []int {
	var out []int
	for p := t.nodes[id].parent; p != NoNode; p = t.nodes[p].parent {
		out = append(out, p)
	}

	return out
}

// AncestorAt returns the ancestor of id at the given level, or NoNode if id
// is not deeper than level.
func (t *Tree) AncestorAt(id, level int) int {
	if t.nodes[id].level <= level {
		return NoNode
	}
	for t.nodes[id].level > level {
		id = t.nodes[id].parent
	}

	return id
}

// Depth returns the deepest leaf level.
func (t *Tree) Depth() int {
	depth := 0
	for _, id := range t.Leaves() {
		depth = max(depth, t.nodes[id].level)
	}

	return depth
}

// MapLeavesToProcesses assigns leaf i of Leaves() to process i and then
// propagates ownership upward: every internal node inherits the process of
// its first child, so a subtree's owner is its first leaf's process.
func (t *Tree) MapLeavesToProcesses() []int {
	leaves := t.Leaves()
	for i, id := range leaves {
		t.nodes[id].proc = i
	}
	t.inheritProc(0)

	return leaves
}

func (t *Tree) inheritProc(id int) int {
	n := &t.nodes[id]
	if n.origin == nil {
		return n.proc
	}
	for k := len(n.children) - 1; k >= 0; k-- {
		n.proc = t.inheritProc(n.children[k])
	}

	return n.proc
}
