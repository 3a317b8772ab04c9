// Package geom provides integer hyper-rectangle geometry for partitioning a
// simulation field: points, half-open regions, splitting and toroidal wrap
// decomposition.
//
// All operations are value-oriented. A Region or Point returned by any method
// is a fresh copy and never aliases the receiver's backing storage.
package geom

import (
	"strconv"
	"strings"
)

// Point is an integer coordinate in D-dimensional space.
//
// Points are treated as immutable values: methods never modify the receiver.
type Point []int

// NewPoint creates a point from the given coordinates.
func NewPoint(coords ...int) Point {
	p := make(Point, len(coords))
	copy(p, coords)

	return p
}

// Zero returns the origin point of the given dimensionality.
func Zero(dims int) Point {
	return make(Point, dims)
}

// Fill returns a point with every coordinate set to v.
func Fill(dims, v int) Point {
	p := make(Point, dims)
	for i := range p {
		p[i] = v
	}

	return p
}

// Dims returns the dimensionality of the point.
func (p Point) Dims() int {
	return len(p)
}

// Clone returns a copy of the point.
func (p Point) Clone() Point {
	return NewPoint(p...)
}

// Add returns p + o.
func (p Point) Add(o Point) Point {
	r := make(Point, len(p))
	for i := range p {
		r[i] = p[i] + o[i]
	}

	return r
}

// Sub returns p - o.
func (p Point) Sub(o Point) Point {
	r := make(Point, len(p))
	for i := range p {
		r[i] = p[i] - o[i]
	}

	return r
}

// Neg returns -p.
func (p Point) Neg() Point {
	r := make(Point, len(p))
	for i := range p {
		r[i] = -p[i]
	}

	return r
}

// Equal reports whether both points have the same dimensionality and coordinates.
func (p Point) Equal(o Point) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}

	return true
}

// Compare orders points lexicographically, returning -1, 0 or +1.
func (p Point) Compare(o Point) int {
	for i := 0; i < len(p) && i < len(o); i++ {
		switch {
		case p[i] < o[i]:
			return -1
		case p[i] > o[i]:
			return 1
		}
	}

	switch {
	case len(p) < len(o):
		return -1
	case len(p) > len(o):
		return 1
	default:
		return 0
	}
}

// IsZero reports whether every coordinate is zero.
func (p Point) IsZero() bool {
	for _, v := range p {
		if v != 0 {
			return false
		}
	}

	return true
}

// Wrap maps p into bound using toroidal arithmetic.
//
// Each coordinate is translated relative to bound.UL and reduced with
// ((x % size) + size) % size so negative offsets wrap correctly.
func (p Point) Wrap(bound Region) Point {
	r := make(Point, len(p))
	for i := range p {
		size := bound.BR[i] - bound.UL[i]
		if size <= 0 {
			r[i] = p[i]
			continue
		}
		x := p[i] - bound.UL[i]
		r[i] = ((x%size)+size)%size + bound.UL[i]
	}

	return r
}

// String returns the point formatted as "(x, y, ...)".
func (p Point) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, v := range p {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Itoa(v))
	}
	b.WriteByte(')')

	return b.String()
}
