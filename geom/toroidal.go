package geom

// Piece is one part of a toroidal decomposition: Region lies inside the bound
// and equals the original part translated by Shift.
type Piece struct {
	Region Region
	Shift  Point
}

// ToroidalPieces decomposes r into at most 3^D pieces, each translated by a
// multiple of bound's size so that it lies within bound.
//
// r may exceed bound by less than one period on either side of every
// dimension. Pieces are returned in row-major order of the per-dimension
// intervals (below, inside, above). Each piece keeps r's ID.
func (r Region) ToroidalPieces(bound Region) []Piece {
	d := len(r.UL)
	type span struct{ lo, hi, shift int }
	spans := make([][]span, d)

	for i := range d {
		lo, hi := bound.UL[i], bound.BR[i]
		size := hi - lo
		var s []span
		if r.UL[i] < lo {
			s = append(s, span{r.UL[i], min(r.BR[i], lo), size})
		}
		if a, b := max(r.UL[i], lo), min(r.BR[i], hi); a < b {
			s = append(s, span{a, b, 0})
		}
		if r.BR[i] > hi {
			s = append(s, span{max(r.UL[i], hi), r.BR[i], -size})
		}
		if len(s) == 0 {
			return nil
		}
		spans[i] = s
	}

	bounds := make([][]int, d)
	for i := range d {
		bounds[i] = make([]int, len(spans[i])+1)
	}

	var out []Piece
	forEachIndex(bounds, func(idx []int) {
		ul := make(Point, d)
		br := make(Point, d)
		shift := make(Point, d)
		for i := range d {
			sp := spans[i][idx[i]]
			ul[i] = sp.lo + sp.shift
			br[i] = sp.hi + sp.shift
			shift[i] = sp.shift
		}
		piece := Region{UL: ul, BR: br, ID: r.ID}
		if !piece.Empty() {
			out = append(out, Piece{Region: piece, Shift: shift})
		}
	})

	return out
}

// ToToroidal is like ToroidalPieces but returns only the wrapped regions.
func (r Region) ToToroidal(bound Region) []Region {
	pieces := r.ToroidalPieces(bound)
	out := make([]Region, len(pieces))
	for i, p := range pieces {
		out[i] = p.Region
	}

	return out
}

// ToroidalShifts returns the 3^D translation vectors of a toroidal space
// with the given bound: every combination of -size, 0 and +size per
// dimension, in row-major order. The zero vector is at index (3^D-1)/2.
func ToroidalShifts(bound Region) []Point {
	d := len(bound.UL)
	size := bound.Size()

	bounds := make([][]int, d)
	for i := range d {
		bounds[i] = []int{0, 0, 0, 0}
	}

	out := make([]Point, 0, pow(3, d))
	forEachIndex(bounds, func(idx []int) {
		s := make(Point, d)
		for i := range d {
			s[i] = (idx[i] - 1) * size[i]
		}
		out = append(out, s)
	})

	return out
}

func pow(base, exp int) int {
	r := 1
	for range exp {
		r *= base
	}

	return r
}
