package halo

import (
	"slices"

	"github.com/eclab/mason-sub011/geom"
)

// Exchange describes what the calling process sends to and receives from
// one neighbor during a halo sync. All regions are in the calling process's
// coordinates: Send lies inside its local region and Recv inside its halo.
type Exchange struct {
	Rank int
	Send []geom.Region
	Recv []geom.Region
}

// Empty reports whether nothing is exchanged.
func (e Exchange) Empty() bool {
	return len(e.Send) == 0 && len(e.Recv) == 0
}

type piece struct {
	region geom.Region
	key    geom.Region
	shift  geom.Point
}

// computeExchange derives the pieces exchanged between local and a neighbor
// region nbr, for every shift in shifts.
//
// The neighbor's halo, translated by s, overlapping local is sent; the
// neighbor's region, translated by s, overlapping the local halo is
// received. Both lists are ordered by the piece's rectangle in the sender's
// coordinates, then by the sender-side shift. The neighbor computes the
// same keys for its side, so entry i of its Send matches entry i of our Recv.
//
// With self set, the zero shift is skipped: a process never exchanges its
// local region with itself.
func computeExchange(rank int, local, nbr geom.Region, aoi geom.Point, shifts []geom.Point, self bool) Exchange {
	halo := local.Resize(aoi)
	nbrHalo := nbr.Resize(aoi)

	var send, recv []piece
	for _, s := range shifts {
		if self && s.IsZero() {
			continue
		}
		if target := nbrHalo.Shift(s); local.Intersects(target) {
			r := local.MustIntersection(target)
			send = append(send, piece{region: r, key: r, shift: s})
		}
		if source := nbr.Shift(s); halo.Intersects(source) {
			r := halo.MustIntersection(source)
			back := s.Neg()
			recv = append(recv, piece{region: r, key: r.Shift(back), shift: back})
		}
	}
	sortPieces(send)
	sortPieces(recv)

	ex := Exchange{Rank: rank}
	for _, p := range send {
		ex.Send = append(ex.Send, p.region)
	}
	for _, p := range recv {
		ex.Recv = append(ex.Recv, p.region)
	}

	return ex
}

func sortPieces(ps []piece) {
	slices.SortFunc(ps, func(a, b piece) int {
		if c := a.key.Compare(b.key); c != 0 {
			return c
		}

		return a.shift.Compare(b.shift)
	})
}

// shiftsFor returns the translations to consider for a field: every wrap
// shift on a torus, only the identity otherwise.
func shiftsFor(bounds geom.Region, toroidal bool) []geom.Point {
	if toroidal {
		return geom.ToroidalShifts(bounds)
	}

	return []geom.Point{geom.Zero(bounds.Dims())}
}
