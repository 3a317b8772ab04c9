package geom

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRegion(t *testing.T) {
	t.Run("valid corners", func(t *testing.T) {
		r, err := NewRegion(Point{0, 0}, Point{10, 5})
		require.NoError(t, err)
		require.Equal(t, 50, r.Area())
		require.Equal(t, Point{10, 5}, r.Size())
		require.Equal(t, Point{5, 2}, r.Center())
	})

	t.Run("inverted corners", func(t *testing.T) {
		_, err := NewRegion(Point{5, 0}, Point{4, 5})
		require.ErrorIs(t, err, ErrGeometry)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := NewRegion(Point{0, 0}, Point{4, 5, 6})
		require.ErrorIs(t, err, ErrGeometry)
	})

	t.Run("corners are copied", func(t *testing.T) {
		ul := Point{1, 1}
		r := MustRegion(ul, Point{3, 3})
		ul[0] = 100
		require.Equal(t, 1, r.UL[0])
	})
}

func TestRegion_Contains(t *testing.T) {
	r := Rect(0, 0, 10, 10)

	require.True(t, r.Contains(Point{0, 0}))
	require.True(t, r.Contains(Point{9, 9}))
	require.False(t, r.Contains(Point{10, 9}))
	require.False(t, r.Contains(Point{-1, 0}))
	require.False(t, r.Contains(Point{1, 1, 1}))

	require.True(t, r.ContainsRegion(Rect(0, 0, 10, 10)))
	require.True(t, r.ContainsRegion(Rect(2, 2, 5, 5)))
	require.False(t, r.ContainsRegion(Rect(2, 2, 11, 5)))
}

func TestRegion_Intersection(t *testing.T) {
	a := Rect(0, 0, 10, 10).WithID(7)
	b := Rect(5, 5, 15, 15)

	require.True(t, a.Intersects(b))
	x, err := a.Intersection(b)
	require.NoError(t, err)
	require.True(t, x.Equal(Rect(5, 5, 10, 10)))
	require.Equal(t, 7, x.ID)

	t.Run("touching edges do not intersect", func(t *testing.T) {
		c := Rect(10, 0, 20, 10)
		require.False(t, a.Intersects(c))
		_, err := a.Intersection(c)
		require.ErrorIs(t, err, ErrGeometry)
		require.Panics(t, func() { a.MustIntersection(c) })
	})
}

func TestRegion_ResizeShift(t *testing.T) {
	r := Rect(10, 10, 20, 20)

	require.True(t, r.Resize(Point{1, 2}).Equal(Rect(9, 8, 21, 22)))
	require.True(t, r.Resize(Point{-2, -2}).Equal(Rect(12, 12, 18, 18)))
	require.True(t, r.Shift(Point{-10, 5}).Equal(Rect(0, 15, 10, 25)))

	collapsed := r.Resize(Point{-6, 0})
	require.Equal(t, 0, collapsed.Area())
	require.Equal(t, 15, collapsed.UL[0])
}

func TestRegion_Split(t *testing.T) {
	r := Rect(0, 0, 10, 10)

	t.Run("single interior point", func(t *testing.T) {
		pieces := r.Split(Point{5, 3})
		require.Len(t, pieces, 4)
		require.True(t, pieces[0].Equal(Rect(0, 0, 5, 3)))
		require.True(t, pieces[1].Equal(Rect(0, 3, 5, 10)))
		require.True(t, pieces[2].Equal(Rect(5, 0, 10, 3)))
		require.True(t, pieces[3].Equal(Rect(5, 3, 10, 10)))
	})

	t.Run("edge points add no zero-area pieces", func(t *testing.T) {
		pieces := r.Split(Point{0, 5})
		require.Len(t, pieces, 2)
		total := 0
		for _, p := range pieces {
			total += p.Area()
		}
		require.Equal(t, r.Area(), total)
	})

	t.Run("multiple points", func(t *testing.T) {
		pieces := r.Split(Point{2, 2}, Point{6, 8})
		require.Len(t, pieces, 9)
		total := 0
		for _, p := range pieces {
			total += p.Area()
		}
		require.Equal(t, 100, total)
	})
}

func TestRegion_Vertices(t *testing.T) {
	v := Rect(0, 0, 2, 3).Vertices()
	require.Equal(t, []Point{{0, 0}, {0, 3}, {2, 0}, {2, 3}}, v)
}

func TestPoint_Wrap(t *testing.T) {
	bound := Rect(0, 0, 100, 50)

	require.Equal(t, Point{99, 49}, Point{-1, -1}.Wrap(bound))
	require.Equal(t, Point{0, 0}, Point{100, 50}.Wrap(bound))
	require.Equal(t, Point{1, 49}, Point{-199, 99}.Wrap(bound))
	require.Equal(t, Point{42, 7}, Point{42, 7}.Wrap(bound))
}

func TestRegion_ToToroidal(t *testing.T) {
	bound := Rect(0, 0, 100, 100)

	t.Run("inside bound yields itself", func(t *testing.T) {
		pieces := Rect(10, 10, 20, 20).ToToroidal(bound)
		require.Len(t, pieces, 1)
		require.True(t, pieces[0].Equal(Rect(10, 10, 20, 20)))
	})

	t.Run("corner halo wraps into four pieces", func(t *testing.T) {
		pieces := Rect(-1, -1, 51, 51).ToToroidal(bound)
		require.Len(t, pieces, 4)
		require.True(t, pieces[0].Equal(Rect(99, 99, 100, 100)))
		require.True(t, pieces[1].Equal(Rect(99, 0, 100, 51)))
		require.True(t, pieces[2].Equal(Rect(0, 99, 51, 100)))
		require.True(t, pieces[3].Equal(Rect(0, 0, 51, 51)))
	})

	t.Run("exceeding both sides yields nine pieces", func(t *testing.T) {
		pieces := Rect(-1, -1, 101, 101).ToToroidal(bound)
		require.Len(t, pieces, 9)
		for _, p := range pieces {
			require.True(t, bound.ContainsRegion(p))
		}
	})
}

func TestRegion_ToroidalRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	bound := Rect(0, 0, 40, 30)
	size := bound.Size()

	for range 500 {
		ul := Point{rng.IntN(size[0]+20) - 20, rng.IntN(size[1]+15) - 15}
		br := Point{ul[0] + rng.IntN(size[0]) + 1, ul[1] + rng.IntN(size[1]) + 1}
		br[0] = min(br[0], bound.BR[0]+size[0]-1)
		br[1] = min(br[1], bound.BR[1]+size[1]-1)
		if br[0] <= ul[0] || br[1] <= ul[1] {
			continue
		}
		r := MustRegion(ul, br)

		covered := map[[2]int]int{}
		for _, piece := range r.ToroidalPieces(bound) {
			require.True(t, bound.ContainsRegion(piece.Region), "piece %v outside bound", piece.Region)
			orig := piece.Region.Shift(piece.Shift.Neg())
			require.True(t, r.ContainsRegion(orig), "unshifted piece %v outside %v", orig, r)
			for x := orig.UL[0]; x < orig.BR[0]; x++ {
				for y := orig.UL[1]; y < orig.BR[1]; y++ {
					covered[[2]int{x, y}]++
				}
			}
		}

		require.Len(t, covered, r.Area(), "region %v", r)
		for k, n := range covered {
			require.Equal(t, 1, n, "point %v covered %d times", k, n)
		}
	}
}

func TestToroidalShifts(t *testing.T) {
	shifts := ToroidalShifts(Rect(0, 0, 10, 20))
	require.Len(t, shifts, 9)
	require.Equal(t, Point{-10, -20}, shifts[0])
	require.True(t, shifts[4].IsZero())
	require.Equal(t, Point{10, 20}, shifts[8])
}

func TestRegion_Each(t *testing.T) {
	var got []Point
	Rect(1, 2, 3, 4).Each(func(p Point) { got = append(got, p.Clone()) })
	require.Equal(t, []Point{{1, 2}, {1, 3}, {2, 2}, {2, 3}}, got)

	calls := 0
	Rect(1, 1, 1, 5).Each(func(Point) { calls++ })
	require.Zero(t, calls)
}
