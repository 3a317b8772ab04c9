package comm

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	masontest "github.com/eclab/mason-sub011/testing"
	"github.com/eclab/mason-sub011/types"
)

func TestNATS_Collectives(t *testing.T) {
	const size = 4
	ns, _ := masontest.StartEmbeddedNATS(t)

	conns := masontest.ConnectRanks(t, ns, size)

	err := masontest.RunRanks(t, size, func(ctx context.Context, rank int) error {
		c, err := NewNATS(ctx, conns[rank], "mason.test", rank, size)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := exerciseCollectives(ctx, c); err != nil {
			return err
		}

		g, err := c.Graph("pairs", []int{rank ^ 1})
		if err != nil {
			return err
		}
		got, err := g.NeighborAllToAll(ctx, [][]byte{[]byte(fmt.Sprint(rank))})
		if err != nil {
			return err
		}
		if string(got[0]) != fmt.Sprint(rank^1) {
			return fmt.Errorf("pair exchange got %q", got[0])
		}

		return c.Barrier(ctx)
	})
	require.NoError(t, err)
}

func TestNATS_PeerNotReady(t *testing.T) {
	_, nc := masontest.StartEmbeddedNATS(t)

	ctx, cancel := context.WithTimeout(t.Context(), 300*time.Millisecond)
	defer cancel()

	_, err := NewNATS(ctx, nc, "mason.lonely", 0, 2)
	require.ErrorIs(t, err, types.ErrUnreachable)
}

func TestNATS_InvalidArguments(t *testing.T) {
	_, err := NewNATS(t.Context(), nil, "mason", 0, 1)
	require.ErrorIs(t, err, types.ErrConfiguration)

	_, nc := masontest.StartEmbeddedNATS(t)
	_, err = NewNATS(t.Context(), nc, "mason", 3, 2)
	require.ErrorIs(t, err, types.ErrInvalidRank)
}

func TestParseEnvelope(t *testing.T) {
	msg := nats.NewMsg("mason.rank.0")
	msg.Header.Set(headerComm, "world/g1.0")
	msg.Header.Set(headerKind, "c")
	msg.Header.Set(headerSeq, "42")
	msg.Header.Set(headerSrc, "3")
	msg.Header.Set(headerSum, "ff")
	msg.Data = []byte("x")

	env, err := parseEnvelope(msg)
	require.NoError(t, err)
	require.Equal(t, "world/g1.0", env.Comm)
	require.Equal(t, kindCollective, env.Kind)
	require.Equal(t, uint64(42), env.Seq)
	require.Equal(t, 3, env.Src)
	require.Equal(t, uint64(255), env.Sum)

	msg.Header.Set(headerSeq, "nope")
	_, err = parseEnvelope(msg)
	require.Error(t, err)
}
