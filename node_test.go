package mason

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eclab/mason-sub011/comm"
	"github.com/eclab/mason-sub011/geom"
	"github.com/eclab/mason-sub011/halo"
	"github.com/eclab/mason-sub011/internal/schedule"
	"github.com/eclab/mason-sub011/storage"
	masontest "github.com/eclab/mason-sub011/testing"
	"github.com/eclab/mason-sub011/types"
)

type cell struct {
	ID    int64 `json:"id"`
	Value int   `json:"value"`
}

func (c *cell) ObjectID() int64 { return c.ID }

type mover struct {
	ID    int64 `json:"id"`
	Steps int   `json:"steps"`
}

func (m *mover) ObjectID() int64 { return m.ID }

func (m *mover) Step(context.Context) error {
	m.Steps++
	return nil
}

// recorder collects the hook callbacks of one node.
type recorder struct {
	mu          sync.Mutex
	transitions [][2]NodeState
	rebalanced  [][2]int
	errors      []error
}

func (r *recorder) hooks() *Hooks {
	return &Hooks{
		OnStateChanged: func(_ context.Context, from, to NodeState) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.transitions = append(r.transitions, [2]NodeState{from, to})
			return nil
		},
		OnRebalanced: func(_ context.Context, level, version int) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.rebalanced = append(r.rebalanced, [2]int{level, version})
			return nil
		},
		OnError: func(_ context.Context, err error) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errors = append(r.errors, err)
			return nil
		},
	}
}

// newNodes creates one node per rank over an in-process communicator.
func newNodes(t *testing.T, cfg Config) ([]*Node, []*recorder) {
	t.Helper()

	comms := comm.NewLocalCluster(cfg.Processes)
	nodes := make([]*Node, cfg.Processes)
	recs := make([]*recorder, cfg.Processes)
	err := masontest.RunRanks(t, cfg.Processes, func(ctx context.Context, rank int) error {
		recs[rank] = &recorder{}
		n, err := NewNode(ctx, cfg, comms[rank],
			WithLogger(masontest.NewTestLogger(t, rank)),
			WithHooks(recs[rank].hooks()),
		)
		nodes[rank] = n
		return err
	})
	require.NoError(t, err)

	return nodes, recs
}

func TestNewNode_Validation(t *testing.T) {
	t.Run("size mismatch", func(t *testing.T) {
		comms := comm.NewLocalCluster(2)
		_, err := NewNode(t.Context(), DefaultConfig(), comms[0])
		require.ErrorIs(t, err, types.ErrInvalidConfig)
	})

	t.Run("nil communicator", func(t *testing.T) {
		_, err := NewNode(t.Context(), DefaultConfig(), nil)
		require.ErrorIs(t, err, types.ErrInvalidConfig)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Processes = 3
		comms := comm.NewLocalCluster(3)
		_, err := NewNode(t.Context(), cfg, comms[0])
		require.ErrorIs(t, err, types.ErrInvalidConfig)
	})
}

func TestNewNode_Splits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Processes = 7
	cfg.Splits = []geom.Point{{60, 40}, {30, 20}}
	nodes, _ := newNodes(t, cfg)

	area := 0
	for i, a := range nodes {
		require.Equal(t, NodeReady, a.State())
		area += a.LocalRegion().Area()
		for _, b := range nodes[i+1:] {
			require.False(t, a.LocalRegion().Intersects(b.LocalRegion()))
		}
	}
	require.Equal(t, 100*100, area)
	require.True(t, nodes[0].Manager().Initialized())
}

func TestNode_Lifecycle(t *testing.T) {
	nodes, recs := newNodes(t, TestConfig())

	for _, n := range nodes {
		require.Equal(t, NodeReady, n.State())
	}
	require.Equal(t, [][2]NodeState{{NodeInit, NodeReady}}, recs[0].transitions)

	err := masontest.RunRanks(t, 4, func(ctx context.Context, rank int) error {
		return nodes[rank].Sync(ctx)
	})
	require.NoError(t, err)
	require.Equal(t, [][2]NodeState{
		{NodeInit, NodeReady},
		{NodeReady, NodeSyncing},
		{NodeSyncing, NodeReady},
	}, recs[2].transitions)

	n := nodes[0]
	require.NoError(t, n.Close(t.Context()))
	require.Equal(t, NodeClosed, n.State())
	require.Equal(t, [2]NodeState{NodeReady, NodeClosed}, recs[0].transitions[len(recs[0].transitions)-1])

	require.ErrorIs(t, n.Sync(t.Context()), types.ErrNodeClosed)
	require.ErrorIs(t, n.Balance(t.Context(), 1), types.ErrNodeClosed)
	require.ErrorIs(t, n.Step(t.Context(), 1), types.ErrNodeClosed)
	_, err = NewField[*cell](t.Context(), n, "cells", storage.NewObjectGrid[*cell](n.LocalRegion()))
	require.ErrorIs(t, err, types.ErrNodeClosed)
	require.NoError(t, n.Close(t.Context()))
}

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		from, to NodeState
		valid    bool
	}{
		{NodeInit, NodeReady, true},
		{NodeReady, NodeSyncing, true},
		{NodeReady, NodeBalancing, true},
		{NodeSyncing, NodeReady, true},
		{NodeBalancing, NodeReady, true},
		{NodeSyncing, NodeBalancing, false},
		{NodeSyncing, NodeSyncing, false},
		{NodeInit, NodeSyncing, false},
		{NodeClosed, NodeReady, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			require.Equal(t, tt.valid, isValidTransition(tt.from, tt.to))
		})
	}
}

func TestNode_SyncFields(t *testing.T) {
	nodes, _ := newNodes(t, TestConfig())

	fields := make([]*halo.Field[*cell], 4)
	for r, n := range nodes {
		f, err := NewField[*cell](t.Context(), n, "cells", storage.NewObjectGrid[*cell](n.LocalRegion()))
		require.NoError(t, err)
		fields[r] = f
	}
	require.Equal(t, []string{"cells"}, nodes[0].Fields())

	t.Run("duplicate name", func(t *testing.T) {
		require.ErrorIs(t, nodes[0].Register(fields[0]), types.ErrInvalidConfig)
		_, err := NewField[*cell](t.Context(), nodes[0], "cells", storage.NewObjectGrid[*cell](nodes[0].LocalRegion()))
		require.ErrorIs(t, err, types.ErrInvalidConfig)
	})

	err := masontest.RunRanks(t, 4, func(ctx context.Context, rank int) error {
		if rank == 0 {
			if err := fields[0].SetObjectLocation(ctx, &cell{ID: 1, Value: 7}, geom.Point{9, 9}); err != nil {
				return err
			}
		}
		return nodes[rank].Step(ctx, 1)
	})
	require.NoError(t, err)

	// (9,9) is a corner of rank 0 and lies in every other halo
	for r, f := range fields {
		require.Equal(t, FieldSynchronized, f.State())
		objs, err := f.ObjectsAt(geom.Point{9, 9})
		require.NoError(t, err)
		require.Len(t, objs, 1, "rank %d", r)
		require.Equal(t, 7, objs[0].Value)
		require.Equal(t, 1, nodes[r].Steps())
	}

	t.Run("no remote without NATS", func(t *testing.T) {
		err := fields[0].SetObjectLocation(t.Context(), &cell{ID: 2}, geom.Point{15, 15})
		require.ErrorIs(t, err, types.ErrNoRemote)
	})
}

func TestNode_Balance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Balance.Interval = 0
	nodes, recs := newNodes(t, cfg)
	before := nodes[0].Manager().Version()

	agents := make([]*halo.AgentField[*mover], 4)
	for r, n := range nodes {
		f, err := NewAgentField[*mover](t.Context(), n, "movers",
			storage.NewObjectGrid[*mover](n.LocalRegion()), schedule.New())
		require.NoError(t, err)
		agents[r] = f
	}

	err := masontest.RunRanks(t, 4, func(ctx context.Context, rank int) error {
		load := 1.0
		if rank == 3 {
			load = 3
			if err := agents[3].AddAgent(ctx, geom.Point{55, 55}, &mover{ID: 9}, types.Schedule{Time: 1, Interval: 1}); err != nil {
				return err
			}
		}
		return nodes[rank].Balance(ctx, load)
	})
	require.NoError(t, err)

	require.True(t, nodes[0].LocalRegion().Equal(geom.Rect(0, 0, 58, 58)))
	_, ok := agents[3].Scheduled(9)
	require.False(t, ok)
	_, ok = agents[0].Scheduled(9)
	require.True(t, ok)
	require.Equal(t, FieldSynchronized, agents[1].State())

	for _, rec := range recs {
		require.Len(t, rec.rebalanced, 1)
		require.Equal(t, 0, rec.rebalanced[0][0])
		require.Greater(t, rec.rebalanced[0][1], before)
		require.Empty(t, rec.errors)
	}
}

func TestNode_StepBalancesPeriodically(t *testing.T) {
	cfg := TestConfig()
	cfg.Processes = 16
	cfg.Field.FieldSize = geom.Point{64, 64}
	cfg.Balance.Interval = 2
	nodes, recs := newNodes(t, cfg)

	err := masontest.RunRanks(t, 16, func(ctx context.Context, rank int) error {
		for range 5 {
			if err := nodes[rank].Step(ctx, 1); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	// two balances, deepest level first
	for r, rec := range recs {
		require.Len(t, rec.rebalanced, 2, "rank %d", r)
		require.Equal(t, 1, rec.rebalanced[0][0])
		require.Equal(t, 0, rec.rebalanced[1][0])
		require.Equal(t, 5, nodes[r].Steps())
	}
}

func TestNode_RemoteWritesOverNATS(t *testing.T) {
	ns, _ := masontest.StartEmbeddedNATS(t)

	cfg := TestConfig()
	cfg.Comm.SubjectPrefix = "test.node.comm"
	cfg.Remote.SubjectPrefix = "test.node.remote"
	cfg.Remote.Bucket = "test-node-endpoints"

	conns := masontest.ConnectRanks(t, ns, 4)

	nodes := make([]*Node, 4)
	fields := make([]*halo.Field[*cell], 4)
	err := masontest.RunRanks(t, 4, func(ctx context.Context, rank int) error {
		n, err := Connect(ctx, cfg, conns[rank], rank, WithLogger(masontest.NewTestLogger(t, rank)))
		if err != nil {
			return err
		}
		nodes[rank] = n

		f, err := NewField[*cell](ctx, n, "cells", storage.NewObjectGrid[*cell](n.LocalRegion()))
		if err != nil {
			return err
		}
		fields[rank] = f

		if rank == 0 {
			// owned by rank 3
			if err := f.SetObjectLocation(ctx, &cell{ID: 1, Value: 3}, geom.Point{15, 15}); err != nil {
				return err
			}
		}
		return n.Step(ctx, 1)
	})
	require.NoError(t, err)

	objs, err := fields[3].ObjectsAt(geom.Point{15, 15})
	require.NoError(t, err)
	require.Len(t, objs, 1)
	require.Equal(t, 3, objs[0].Value)
	require.Zero(t, fields[3].Pending())

	for _, n := range nodes {
		require.NoError(t, n.Close(t.Context()))
	}
}

func TestConnect_AutoRankAndStatus(t *testing.T) {
	ns, _ := masontest.StartEmbeddedNATS(t)

	cfg := TestConfig()
	cfg.Comm.SubjectPrefix = "test.auto.comm"
	cfg.Remote.SubjectPrefix = "test.auto.remote"

	conns := masontest.ConnectRanks(t, ns, 4)

	nodes := make([]*Node, 4)
	err := masontest.RunRanks(t, 4, func(ctx context.Context, i int) error {
		n, err := Connect(ctx, cfg, conns[i], AutoRank, WithLogger(masontest.NewTestLogger(t, i)))
		nodes[i] = n
		return err
	})
	require.NoError(t, err)

	seen := make(map[int]bool)
	for _, n := range nodes {
		require.False(t, seen[n.Rank()], "rank %d claimed twice", n.Rank())
		seen[n.Rank()] = true
	}
	require.Len(t, seen, 4)

	statuses, err := ListStatus(t.Context(), conns[0], cfg)
	require.NoError(t, err)
	require.Len(t, statuses, 4)
	for r, s := range statuses {
		require.Equal(t, r, s.Rank)
		require.Equal(t, "Ready", s.State)
		require.True(t, s.Region.Equal(nodes[0].Manager().RegionOf(r)))
	}

	t.Run("claims and statuses are released on close", func(t *testing.T) {
		for _, n := range nodes {
			require.NoError(t, n.Close(t.Context()))
		}
		statuses, err := ListStatus(t.Context(), conns[0], cfg)
		require.NoError(t, err)
		require.Empty(t, statuses)
	})

	t.Run("requires a connection", func(t *testing.T) {
		_, err := Connect(t.Context(), cfg, nil, 0)
		require.ErrorIs(t, err, types.ErrInvalidConfig)
	})
}
