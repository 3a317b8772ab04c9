package comm

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	masontest "github.com/eclab/mason-sub011/testing"
	"github.com/eclab/mason-sub011/types"
)

// exerciseCollectives runs every collective once on rank's communicator and
// checks the results. It is shared by the local and NATS transport tests.
func exerciseCollectives(ctx context.Context, c *Comm) error {
	rank, size := c.Rank(), c.Size()
	mine := []byte(fmt.Sprintf("r%d", rank))

	if err := c.Barrier(ctx); err != nil {
		return fmt.Errorf("barrier: %w", err)
	}

	got, err := c.Bcast(ctx, size-1, []byte("hello"))
	if err != nil {
		return fmt.Errorf("bcast: %w", err)
	}
	if string(got) != "hello" {
		return fmt.Errorf("bcast got %q", got)
	}

	gathered, err := c.Gather(ctx, 0, mine)
	if err != nil {
		return fmt.Errorf("gather: %w", err)
	}
	if rank == 0 {
		for r, part := range gathered {
			if string(part) != fmt.Sprintf("r%d", r) {
				return fmt.Errorf("gather slot %d got %q", r, part)
			}
		}
	} else if gathered != nil {
		return fmt.Errorf("non-root gather returned %d parts", len(gathered))
	}

	var parts [][]byte
	if rank == 1%size {
		for r := range size {
			parts = append(parts, []byte(fmt.Sprintf("to%d", r)))
		}
	}
	part, err := c.Scatter(ctx, 1%size, parts)
	if err != nil {
		return fmt.Errorf("scatter: %w", err)
	}
	if string(part) != fmt.Sprintf("to%d", rank) {
		return fmt.Errorf("scatter got %q", part)
	}

	all, err := c.AllGather(ctx, mine)
	if err != nil {
		return fmt.Errorf("all gather: %w", err)
	}
	for r, p := range all {
		if string(p) != fmt.Sprintf("r%d", r) {
			return fmt.Errorf("all gather slot %d got %q", r, p)
		}
	}

	out := make([][]byte, size)
	for r := range size {
		out[r] = []byte(fmt.Sprintf("%d->%d", rank, r))
	}
	in, err := c.AllToAll(ctx, out)
	if err != nil {
		return fmt.Errorf("all to all: %w", err)
	}
	for r, p := range in {
		if string(p) != fmt.Sprintf("%d->%d", r, rank) {
			return fmt.Errorf("all to all slot %d got %q", r, p)
		}
	}

	sum, err := c.ReduceSum(ctx, 0, []float64{1, float64(rank)})
	if err != nil {
		return fmt.Errorf("reduce: %w", err)
	}
	if rank == 0 {
		want := []float64{float64(size), float64(size * (size - 1) / 2)}
		if !slices.Equal(sum, want) {
			return fmt.Errorf("reduce got %v, want %v", sum, want)
		}
	}

	// ring point-to-point, two messages in flight per pair
	next, prev := (rank+1)%size, (rank+size-1)%size
	if size > 1 {
		for i := range 2 {
			if err := c.Send(ctx, next, []byte{byte(rank), byte(i)}); err != nil {
				return fmt.Errorf("send: %w", err)
			}
		}
		for i := range 2 {
			msg, err := c.Recv(ctx, prev)
			if err != nil {
				return fmt.Errorf("recv: %w", err)
			}
			if msg[0] != byte(prev) || msg[1] != byte(i) {
				return fmt.Errorf("recv %d got %v", i, msg)
			}
		}
	}

	return c.Barrier(ctx)
}

func TestLocalCluster_Collectives(t *testing.T) {
	for _, size := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("size %d", size), func(t *testing.T) {
			comms := NewLocalCluster(size)
			err := masontest.RunRanks(t, size, func(ctx context.Context, rank int) error {
				for range 3 {
					if err := exerciseCollectives(ctx, comms[rank]); err != nil {
						return err
					}
				}
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestComm_Sub(t *testing.T) {
	const size = 6
	comms := NewLocalCluster(size)

	err := masontest.RunRanks(t, size, func(ctx context.Context, rank int) error {
		// odd and even ranks form separate groups, listed in descending order
		var members []int
		for r := size - 1; r >= 0; r-- {
			if r%2 == rank%2 {
				members = append(members, r)
			}
		}

		sub, err := comms[rank].Sub(fmt.Sprintf("parity%d", rank%2), members)
		if err != nil {
			return err
		}
		if sub.Size() != 3 {
			return fmt.Errorf("sub size %d", sub.Size())
		}
		if sub.WorldRank(sub.Rank()) != rank {
			return fmt.Errorf("world rank %d, want %d", sub.WorldRank(sub.Rank()), rank)
		}

		sum, err := sub.ReduceSum(ctx, 0, []float64{float64(rank)})
		if err != nil {
			return err
		}
		if sub.Rank() == 0 {
			want := 6.0 // 0+2+4
			if rank%2 == 1 {
				want = 9 // 1+3+5
			}
			if sum[0] != want {
				return fmt.Errorf("group sum %v, want %v", sum[0], want)
			}
		}

		return comms[rank].Barrier(ctx)
	})
	require.NoError(t, err)

	t.Run("non-member", func(t *testing.T) {
		_, err := comms[0].Sub("others", []int{1, 2})
		require.ErrorIs(t, err, types.ErrNotMember)
	})

	t.Run("duplicate member", func(t *testing.T) {
		_, err := comms[0].Sub("dup", []int{0, 1, 1})
		require.ErrorIs(t, err, types.ErrInvalidRank)
	})
}

func TestGraph_NeighborAllToAll(t *testing.T) {
	const size = 5
	comms := NewLocalCluster(size)

	// a ring; rank 0 and rank 4 are adjacent
	err := masontest.RunRanks(t, size, func(ctx context.Context, rank int) error {
		neighbors := []int{(rank + size - 1) % size, (rank + 1) % size}
		g, err := comms[rank].Graph("ring", neighbors)
		if err != nil {
			return err
		}

		for round := range 3 {
			parts := make([][]byte, len(neighbors))
			for i, n := range neighbors {
				parts[i] = []byte(fmt.Sprintf("%d:%d->%d", round, rank, n))
			}
			got, err := g.NeighborAllToAll(ctx, parts)
			if err != nil {
				return err
			}
			for i, n := range g.Neighbors() {
				if want := fmt.Sprintf("%d:%d->%d", round, n, rank); string(got[i]) != want {
					return fmt.Errorf("from %d got %q, want %q", n, got[i], want)
				}
			}
		}

		return nil
	})
	require.NoError(t, err)

	t.Run("self is rejected", func(t *testing.T) {
		_, err := comms[0].Graph("self", []int{0})
		require.ErrorIs(t, err, types.ErrInvalidRank)
	})
}

func TestComm_Errors(t *testing.T) {
	comms := NewLocalCluster(2)

	t.Run("invalid rank", func(t *testing.T) {
		require.ErrorIs(t, comms[0].Send(t.Context(), 2, nil), types.ErrInvalidRank)
		_, err := comms[0].Gather(t.Context(), -1, nil)
		require.ErrorIs(t, err, types.ErrInvalidRank)
	})

	t.Run("parts mismatch", func(t *testing.T) {
		_, err := comms[0].AllToAll(t.Context(), [][]byte{nil})
		require.ErrorIs(t, err, types.ErrPartsMismatch)
	})

	t.Run("context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
		defer cancel()
		_, err := comms[0].Recv(ctx, 1)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("closed", func(t *testing.T) {
		require.NoError(t, comms[1].Close())
		_, err := comms[1].Recv(t.Context(), 0)
		require.ErrorIs(t, err, types.ErrCommClosed)
	})
}

func TestMailbox_Checksum(t *testing.T) {
	box := newMailbox()

	good := seal(Envelope{Comm: "world", Kind: kindP2P, Seq: 1, Src: 3, Payload: []byte("data")})
	box.deliver(good)
	data, err := box.take(t.Context(), good.key())
	require.NoError(t, err)
	require.Equal(t, "data", string(data))

	bad := seal(Envelope{Comm: "world", Kind: kindP2P, Seq: 2, Src: 3, Payload: []byte("data")})
	bad.Payload = []byte("tampered")
	box.deliver(bad)
	_, err = box.take(t.Context(), bad.key())
	require.ErrorIs(t, err, types.ErrChecksumMismatch)
}

func TestFloatCodec(t *testing.T) {
	vals := []float64{0, -1.5, 3e10}
	got, err := decodeFloats(encodeFloats(vals))
	require.NoError(t, err)
	require.Equal(t, vals, got)

	_, err = decodeFloats([]byte{1, 2, 3})
	require.Error(t, err)
}
