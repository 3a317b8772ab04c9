package halo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eclab/mason-sub011/geom"
)

// requireDual checks that what a sends to b is exactly what b receives from
// a, piece by piece, modulo the torus.
func requireDual(t *testing.T, bounds geom.Region, toroidal bool, regions []geom.Region, aoi geom.Point) {
	t.Helper()

	shifts := shiftsFor(bounds, toroidal)
	for a, la := range regions {
		for b, lb := range regions {
			if a == b {
				continue
			}
			ab := computeExchange(b, la, lb, aoi, shifts, false)
			ba := computeExchange(a, lb, la, aoi, shifts, false)
			require.Len(t, ba.Recv, len(ab.Send), "%d->%d", a, b)
			for i, s := range ab.Send {
				r := ba.Recv[i]
				require.Equal(t, s.Size(), r.Size(), "%d->%d piece %d", a, b, i)
				if toroidal {
					require.Equal(t, s.UL, r.UL.Wrap(bounds), "%d->%d piece %d", a, b, i)
				} else {
					require.True(t, s.Equal(r))
				}
				require.True(t, la.ContainsRegion(s))
				require.True(t, lb.Resize(aoi).ContainsRegion(r))
			}
		}
	}
}

func TestComputeExchange_Quadrants(t *testing.T) {
	bounds := geom.Rect(0, 0, 100, 100)
	quads := []geom.Region{
		geom.Rect(0, 0, 50, 50),
		geom.Rect(0, 50, 50, 100),
		geom.Rect(50, 0, 100, 50),
		geom.Rect(50, 50, 100, 100),
	}
	aoi := geom.Point{1, 1}
	shifts := shiftsFor(bounds, true)

	t.Run("diagonal neighbor across the wrap", func(t *testing.T) {
		ex := computeExchange(3, quads[0], quads[3], aoi, shifts, false)
		// the four corners of quadrant 0 each touch quadrant 3's halo
		require.Len(t, ex.Send, 4)
		require.True(t, ex.Send[0].Equal(geom.Rect(0, 0, 1, 1)))
		require.True(t, ex.Send[3].Equal(geom.Rect(49, 49, 50, 50)))
		for _, r := range ex.Recv {
			require.Equal(t, 1, r.Area())
		}
	})

	t.Run("self exchange is empty without wrap overlap", func(t *testing.T) {
		ex := computeExchange(0, quads[0], quads[0], aoi, shifts, true)
		require.True(t, ex.Empty())
	})

	t.Run("duality", func(t *testing.T) {
		requireDual(t, bounds, true, quads, aoi)
		requireDual(t, bounds, false, quads, aoi)
		requireDual(t, bounds, true, quads, geom.Point{3, 7})
	})
}

func TestComputeExchange_Irregular(t *testing.T) {
	bounds := geom.Rect(0, 0, 100, 100)
	// seven leaves from splitting at (60,40) and then (30,20)
	regions := []geom.Region{
		geom.Rect(0, 0, 30, 20),
		geom.Rect(0, 20, 30, 40),
		geom.Rect(30, 0, 60, 20),
		geom.Rect(30, 20, 60, 40),
		geom.Rect(0, 40, 60, 100),
		geom.Rect(60, 0, 100, 40),
		geom.Rect(60, 40, 100, 100),
	}
	requireDual(t, bounds, true, regions, geom.Point{2, 3})
	requireDual(t, bounds, false, regions, geom.Point{2, 3})
}

func TestComputeExchange_SingleProcessWrap(t *testing.T) {
	bounds := geom.Rect(0, 0, 10, 10)
	ex := computeExchange(0, bounds, bounds, geom.Point{1, 1}, shiftsFor(bounds, true), true)

	// four edges and four corners of the halo come from the process itself
	require.Len(t, ex.Send, 8)
	require.Len(t, ex.Recv, 8)
	for i, s := range ex.Send {
		r := ex.Recv[i]
		require.Equal(t, s.UL, r.UL.Wrap(bounds))
		require.Equal(t, s.Size(), r.Size())
		require.False(t, bounds.Intersects(r))
	}
}
