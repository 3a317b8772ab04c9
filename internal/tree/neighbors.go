package tree

import (
	"slices"

	"github.com/eclab/mason-sub011/geom"
)

// NeighborsOf returns every other leaf whose region intersects leaf's region
// grown by aoi, sorted by node id.
//
// If wrap is non-nil the field is toroidal with period wrap, and the grown
// region is first decomposed into its wrapped pieces.
//
// The search starts at the leaf's siblings and ascends one ancestor at a
// time, descending into each ancestor's other children only where they
// intersect the halo. Ascent stops at the first ancestor whose region covers
// every halo piece, since no leaf outside it can intersect the halo. The cost
// is tree depth plus the boundary fan-out rather than a scan of all leaves.
func (t *Tree) NeighborsOf(leaf int, aoi geom.Point, wrap *geom.Region) []int {
	halo := t.nodes[leaf].region.Resize(aoi)

	pieces := []geom.Region{halo}
	if wrap != nil {
		pieces = halo.ToToroidal(*wrap)
	}

	found := map[int]struct{}{}
	curr := leaf
	for curr != 0 {
		parent := t.nodes[curr].parent
		for _, sib := range t.nodes[parent].children {
			if sib != curr {
				t.collect(sib, leaf, pieces, found)
			}
		}
		if coversAll(t.nodes[parent].region, pieces) {
			break
		}
		curr = parent
	}

	out := make([]int, 0, len(found))
	for id := range found {
		out = append(out, id)
	}
	slices.Sort(out)

	return out
}

func (t *Tree) collect(id, self int, pieces []geom.Region, found map[int]struct{}) {
	if !intersectsAny(t.nodes[id].region, pieces) {
		return
	}
	if t.nodes[id].origin == nil {
		if id != self {
			found[id] = struct{}{}
		}
		return
	}
	for _, cid := range t.nodes[id].children {
		t.collect(cid, self, pieces, found)
	}
}

func intersectsAny(r geom.Region, pieces []geom.Region) bool {
	for _, p := range pieces {
		if r.Intersects(p) {
			return true
		}
	}

	return false
}

func coversAll(r geom.Region, pieces []geom.Region) bool {
	for _, p := range pieces {
		if !r.ContainsRegion(p) {
			return false
		}
	}

	return true
}
