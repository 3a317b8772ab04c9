// Package storage provides ObjectGrid, the reference implementation of
// types.Storage: a dense N-D grid of object buckets addressed by absolute
// field coordinates.
//
// Pack encodes the objects of each region cell by cell in row-major order
// as JSON, so T must round-trip through encoding/json. Pointer-to-struct
// object types with exported fields are the common case.
package storage

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/eclab/mason-sub011/geom"
	"github.com/eclab/mason-sub011/types"
)

// ObjectGrid stores any number of objects per integer point.
//
// The same object ID may appear at several points at once: a toroidal halo
// can hold a shifted copy of an object the process also owns locally.
// SetLocation and RemoveObject act on every copy.
type ObjectGrid[T types.Object] struct {
	bounds  geom.Region
	strides []int
	cells   [][]T
	index   map[int64][]geom.Point
}

// Compile-time assertion that ObjectGrid implements Storage.
var _ types.Storage[types.Object] = (*ObjectGrid[types.Object])(nil)

// NewObjectGrid creates an empty grid backing bounds.
func NewObjectGrid[T types.Object](bounds geom.Region) *ObjectGrid[T] {
	g := &ObjectGrid[T]{index: make(map[int64][]geom.Point)}
	g.alloc(bounds)

	return g
}

func (g *ObjectGrid[T]) alloc(bounds geom.Region) {
	d := bounds.Dims()
	g.bounds = bounds.WithID(bounds.ID)
	g.strides = make([]int, d)
	stride := 1
	for i := d - 1; i >= 0; i-- {
		g.strides[i] = stride
		stride *= bounds.BR[i] - bounds.UL[i]
	}
	g.cells = make([][]T, bounds.Area())
}

func (g *ObjectGrid[T]) offset(p geom.Point) int {
	off := 0
	for i, s := range g.strides {
		off += (p[i] - g.bounds.UL[i]) * s
	}

	return off
}

func (g *ObjectGrid[T]) checkPoint(p geom.Point) error {
	if !g.bounds.Contains(p) {
		return fmt.Errorf("%w: %v outside storage bounds %v", types.ErrInvalidLocation, p, g.bounds)
	}

	return nil
}

// Bounds returns the region backed by the grid.
func (g *ObjectGrid[T]) Bounds() geom.Region {
	return g.bounds.WithID(g.bounds.ID)
}

// Reshape re-allocates the grid for bounds, keeping objects inside the
// overlap of the old and new bounds.
func (g *ObjectGrid[T]) Reshape(bounds geom.Region) {
	old, oldBounds, oldStrides := g.cells, g.bounds, g.strides
	g.alloc(bounds)
	g.index = make(map[int64][]geom.Point)

	overlap, err := oldBounds.Intersection(bounds)
	if err != nil {
		return
	}
	overlap.Each(func(p geom.Point) {
		off := 0
		for i, s := range oldStrides {
			off += (p[i] - oldBounds.UL[i]) * s
		}
		for _, obj := range old[off] {
			g.place(obj, p)
		}
	})
}

// Pack encodes the objects inside regions.
func (g *ObjectGrid[T]) Pack(regions []geom.Region) ([]byte, error) {
	var cells [][]T
	for _, r := range regions {
		if !g.bounds.ContainsRegion(r) {
			return nil, fmt.Errorf("%w: pack region %v outside storage bounds %v", types.ErrGeometry, r, g.bounds)
		}
		r.Each(func(p geom.Point) {
			cells = append(cells, g.cells[g.offset(p)])
		})
	}

	data, err := json.Marshal(cells)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to encode cells: %w", err)
	}

	return data, nil
}

// Unpack replaces the content of regions with data produced by Pack over
// regions of the same shapes.
func (g *ObjectGrid[T]) Unpack(regions []geom.Region, data []byte) error {
	var cells [][]T
	if err := json.Unmarshal(data, &cells); err != nil {
		return fmt.Errorf("storage: failed to decode cells: %w", err)
	}

	total := 0
	for _, r := range regions {
		if !g.bounds.ContainsRegion(r) {
			return fmt.Errorf("%w: unpack region %v outside storage bounds %v", types.ErrGeometry, r, g.bounds)
		}
		total += r.Area()
	}
	if total != len(cells) {
		return fmt.Errorf("%w: %d packed cells for %d points", types.ErrGeometry, len(cells), total)
	}

	i := 0
	for _, r := range regions {
		r.Each(func(p geom.Point) {
			g.clearAt(p)
			for _, obj := range cells[i] {
				g.place(obj, p)
			}
			i++
		})
	}

	return nil
}

// SetLocation places obj at p after removing every stored copy of it.
func (g *ObjectGrid[T]) SetLocation(obj T, p geom.Point) error {
	if err := g.checkPoint(p); err != nil {
		return err
	}
	g.RemoveObject(obj)
	g.place(obj, p)

	return nil
}

// RemoveObject removes every copy of obj.
func (g *ObjectGrid[T]) RemoveObject(obj T) bool {
	id := obj.ObjectID()
	locs, ok := g.index[id]
	if !ok {
		return false
	}
	for _, p := range locs {
		off := g.offset(p)
		g.cells[off] = slices.DeleteFunc(g.cells[off], func(o T) bool { return o.ObjectID() == id })
	}
	delete(g.index, id)

	return true
}

// RemoveObjectsAt removes every object at p.
func (g *ObjectGrid[T]) RemoveObjectsAt(p geom.Point) error {
	if err := g.checkPoint(p); err != nil {
		return err
	}
	g.clearAt(p)

	return nil
}

// ObjectsAt returns a copy of the bucket at p, or nil if p is outside the grid.
func (g *ObjectGrid[T]) ObjectsAt(p geom.Point) []T {
	if !g.bounds.Contains(p) {
		return nil
	}

	return slices.Clone(g.cells[g.offset(p)])
}

// Locate returns the lowest point at which an object with the given ID is stored.
func (g *ObjectGrid[T]) Locate(id int64) (geom.Point, bool) {
	locs, ok := g.index[id]
	if !ok {
		return nil, false
	}

	return slices.MinFunc(locs, geom.Point.Compare).Clone(), true
}

// ObjectsIn returns the location of every object inside region. An object
// stored at several points inside region reports the first in row-major order.
func (g *ObjectGrid[T]) ObjectsIn(region geom.Region) map[int64]geom.Point {
	out := make(map[int64]geom.Point)
	overlap, err := g.bounds.Intersection(region)
	if err != nil {
		return out
	}
	overlap.Each(func(p geom.Point) {
		for _, obj := range g.cells[g.offset(p)] {
			if _, seen := out[obj.ObjectID()]; !seen {
				out[obj.ObjectID()] = p.Clone()
			}
		}
	})

	return out
}

// Clear removes every object inside region.
func (g *ObjectGrid[T]) Clear(region geom.Region) {
	overlap, err := g.bounds.Intersection(region)
	if err != nil {
		return
	}
	overlap.Each(g.clearAt)
}

// NewEmpty returns an empty grid backing bounds.
func (g *ObjectGrid[T]) NewEmpty(bounds geom.Region) types.Storage[T] {
	return NewObjectGrid[T](bounds)
}

// Len returns the number of distinct object IDs stored.
func (g *ObjectGrid[T]) Len() int {
	return len(g.index)
}

func (g *ObjectGrid[T]) place(obj T, p geom.Point) {
	off := g.offset(p)
	g.cells[off] = append(g.cells[off], obj)
	g.index[obj.ObjectID()] = append(g.index[obj.ObjectID()], p.Clone())
}

func (g *ObjectGrid[T]) clearAt(p geom.Point) {
	off := g.offset(p)
	for _, obj := range g.cells[off] {
		id := obj.ObjectID()
		locs := slices.DeleteFunc(g.index[id], func(l geom.Point) bool { return l.Equal(p) })
		if len(locs) == 0 {
			delete(g.index, id)
		} else {
			g.index[id] = locs
		}
	}
	g.cells[off] = nil
}
