package geom

import (
	"errors"
	"fmt"
	"slices"
)

// ErrGeometry is returned (or panicked with) when a geometric operation is
// requested on incompatible inputs, such as intersecting disjoint regions or
// splitting a region at a point outside of it.
var ErrGeometry = errors.New("geometry error")

// Region is an axis-aligned integer hyper-rectangle.
//
// UL is inclusive and BR is exclusive in every dimension. ID optionally tags
// the owner of the region, such as a partition node or process rank.
type Region struct {
	UL Point `json:"ul"`
	BR Point `json:"br"`
	ID int    `json:"id,omitempty"`
}

// NewRegion creates a region from its upper-left and lower-right corners.
//
// Returns an error wrapping ErrGeometry if the corners have different
// dimensionality or if any BR coordinate is smaller than the UL coordinate.
func NewRegion(ul, br Point) (Region, error) {
	if len(ul) != len(br) {
		return Region{}, fmt.Errorf("%w: corner dimensions differ (%d vs %d)", ErrGeometry, len(ul), len(br))
	}
	for i := range ul {
		if br[i] < ul[i] {
			return Region{}, fmt.Errorf("%w: lower-right %v precedes upper-left %v", ErrGeometry, br, ul)
		}
	}

	return Region{UL: ul.Clone(), BR: br.Clone()}, nil
}

// MustRegion is like NewRegion but panics on invalid corners.
func MustRegion(ul, br Point) Region {
	r, err := NewRegion(ul, br)
	if err != nil {
		panic(err)
	}

	return r
}

// Rect is a convenience constructor for 2-D regions.
func Rect(x0, y0, x1, y1 int) Region {
	return MustRegion(Point{x0, y0}, Point{x1, y1})
}

// WithID returns a copy of r tagged with id.
func (r Region) WithID(id int) Region {
	c := r.clone()
	c.ID = id

	return c
}

// Dims returns the dimensionality of the region.
func (r Region) Dims() int {
	return len(r.UL)
}

// Size returns the extent of the region in every dimension.
func (r Region) Size() Point {
	return r.BR.Sub(r.UL)
}

// Area returns the number of integer points covered by the region.
func (r Region) Area() int {
	if len(r.UL) == 0 {
		return 0
	}
	area := 1
	for i := range r.UL {
		area *= r.BR[i] - r.UL[i]
	}

	return area
}

// Empty reports whether the region covers no points.
func (r Region) Empty() bool {
	return r.Area() == 0
}

// Center returns the midpoint of the region, rounded toward UL.
func (r Region) Center() Point {
	c := make(Point, len(r.UL))
	for i := range c {
		c[i] = r.UL[i] + (r.BR[i]-r.UL[i])/2
	}

	return c
}

// Vertices returns the 2^D corner points of the closed region.
func (r Region) Vertices() []Point {
	d := len(r.UL)
	out := make([]Point, 0, 1<<d)
	for mask := 0; mask < 1<<d; mask++ {
		v := make(Point, d)
		for i := range v {
			if mask&(1<<(d-1-i)) != 0 {
				v[i] = r.BR[i]
			} else {
				v[i] = r.UL[i]
			}
		}
		out = append(out, v)
	}

	return out
}

// Contains reports whether p lies inside the region (half-open).
func (r Region) Contains(p Point) bool {
	if len(p) != len(r.UL) {
		return false
	}
	for i := range p {
		if p[i] < r.UL[i] || p[i] >= r.BR[i] {
			return false
		}
	}

	return true
}

// ContainsRegion reports whether o lies entirely inside r.
func (r Region) ContainsRegion(o Region) bool {
	if len(o.UL) != len(r.UL) {
		return false
	}
	for i := range r.UL {
		if o.UL[i] < r.UL[i] || o.BR[i] > r.BR[i] {
			return false
		}
	}

	return true
}

// Intersects reports whether r and o share at least one point.
func (r Region) Intersects(o Region) bool {
	if len(o.UL) != len(r.UL) || len(r.UL) == 0 {
		return false
	}
	for i := range r.UL {
		if max(r.UL[i], o.UL[i]) >= min(r.BR[i], o.BR[i]) {
			return false
		}
	}

	return true
}

// Intersection returns the overlap of r and o, keeping r's ID.
//
// Returns an error wrapping ErrGeometry if the regions do not overlap.
func (r Region) Intersection(o Region) (Region, error) {
	if !r.Intersects(o) {
		return Region{}, fmt.Errorf("%w: %v does not intersect %v", ErrGeometry, r, o)
	}

	ul := make(Point, len(r.UL))
	br := make(Point, len(r.UL))
	for i := range ul {
		ul[i] = max(r.UL[i], o.UL[i])
		br[i] = min(r.BR[i], o.BR[i])
	}

	return Region{UL: ul, BR: br, ID: r.ID}, nil
}

// MustIntersection is like Intersection but panics if the regions are disjoint.
func (r Region) MustIntersection(o Region) Region {
	x, err := r.Intersection(o)
	if err != nil {
		panic(err)
	}

	return x
}

// Resize grows (positive delta) or shrinks (negative delta) the region
// symmetrically on every side.
//
// A shrink that would invert a dimension collapses it to zero width at the
// region's center in that dimension.
func (r Region) Resize(delta Point) Region {
	ul := make(Point, len(r.UL))
	br := make(Point, len(r.UL))
	for i := range ul {
		ul[i] = r.UL[i] - delta[i]
		br[i] = r.BR[i] + delta[i]
		if br[i] < ul[i] {
			mid := r.UL[i] + (r.BR[i]-r.UL[i])/2
			ul[i], br[i] = mid, mid
		}
	}

	return Region{UL: ul, BR: br, ID: r.ID}
}

// Shift translates the region by offset.
func (r Region) Shift(offset Point) Region {
	return Region{UL: r.UL.Add(offset), BR: r.BR.Add(offset), ID: r.ID}
}

// Split subdivides the region at the given points.
//
// Each coordinate of each point strictly inside the region's extent in that
// dimension becomes a cut. The result is the Cartesian product of the
// resulting intervals, ordered lexicographically, with zero-area pieces
// dropped. Every piece keeps r's ID.
func (r Region) Split(points ...Point) []Region {
	d := len(r.UL)
	bounds := make([][]int, d)
	for i := range d {
		cuts := []int{r.UL[i], r.BR[i]}
		for _, p := range points {
			if len(p) == d && p[i] > r.UL[i] && p[i] < r.BR[i] {
				cuts = append(cuts, p[i])
			}
		}
		slices.Sort(cuts)
		bounds[i] = slices.Compact(cuts)
	}

	var out []Region
	forEachIndex(bounds, func(idx []int) {
		ul := make(Point, d)
		br := make(Point, d)
		for i := range d {
			ul[i] = bounds[i][idx[i]]
			br[i] = bounds[i][idx[i]+1]
		}
		piece := Region{UL: ul, BR: br, ID: r.ID}
		if !piece.Empty() {
			out = append(out, piece)
		}
	})

	return out
}

// forEachIndex visits every combination of interval indices, where dimension
// i has len(bounds[i])-1 intervals, in row-major order.
func forEachIndex(bounds [][]int, fn func(idx []int)) {
	d := len(bounds)
	for i := range d {
		if len(bounds[i]) < 2 {
			return
		}
	}

	idx := make([]int, d)
	for {
		fn(idx)
		i := d - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(bounds[i])-1 {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return
		}
	}
}

// Each calls fn for every point of the region in row-major order. The point
// passed to fn is reused between calls; clone it to retain it.
func (r Region) Each(fn func(p Point)) {
	if r.Empty() {
		return
	}
	d := len(r.UL)
	p := r.UL.Clone()
	for {
		fn(p)
		i := d - 1
		for ; i >= 0; i-- {
			p[i]++
			if p[i] < r.BR[i] {
				break
			}
			p[i] = r.UL[i]
		}
		if i < 0 {
			return
		}
	}
}

// Equal reports whether both regions have the same corners. IDs are ignored.
func (r Region) Equal(o Region) bool {
	return r.UL.Equal(o.UL) && r.BR.Equal(o.BR)
}

// Compare orders regions by UL and then BR, lexicographically.
func (r Region) Compare(o Region) int {
	if c := r.UL.Compare(o.UL); c != 0 {
		return c
	}

	return r.BR.Compare(o.BR)
}

// String returns the region formatted as "[ul, br)".
func (r Region) String() string {
	return fmt.Sprintf("[%v, %v)", r.UL, r.BR)
}

func (r Region) clone() Region {
	return Region{UL: r.UL.Clone(), BR: r.BR.Clone(), ID: r.ID}
}
