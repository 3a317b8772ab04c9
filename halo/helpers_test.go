package halo

import (
	"context"
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eclab/mason-sub011/comm"
	"github.com/eclab/mason-sub011/geom"
	"github.com/eclab/mason-sub011/partition"
	"github.com/eclab/mason-sub011/storage"
	masontest "github.com/eclab/mason-sub011/testing"
	"github.com/eclab/mason-sub011/types"
)

type walker struct {
	ID    int64 `json:"id"`
	Steps int   `json:"steps"`
}

func (w *walker) ObjectID() int64 { return w.ID }

func (w *walker) Step(context.Context) error {
	w.Steps++
	return nil
}

func torus100() partition.Config {
	return partition.Config{FieldSize: geom.Point{100, 100}, Toroidal: true, AreaOfInterest: geom.Point{1, 1}}
}

// newCluster creates n initialized managers over an in-process communicator.
func newCluster(t *testing.T, n int, cfg partition.Config) []*partition.Manager {
	t.Helper()

	comms := comm.NewLocalCluster(n)
	mgrs := make([]*partition.Manager, n)
	for r := range n {
		m, err := partition.NewManager(cfg, comms[r], partition.WithLogger(masontest.NewTestLogger(t, r)))
		require.NoError(t, err)
		mgrs[r] = m
	}
	err := masontest.RunRanks(t, n, func(ctx context.Context, rank int) error {
		return mgrs[rank].InitializeUniform(ctx)
	})
	require.NoError(t, err)

	return mgrs
}

func newFields(t *testing.T, mgrs []*partition.Manager) []*Field[*walker] {
	t.Helper()

	fields := make([]*Field[*walker], len(mgrs))
	for r, m := range mgrs {
		f, err := New[*walker]("walkers", m, storage.NewObjectGrid[*walker](m.LocalRegion()),
			WithLogger(masontest.NewTestLogger(t, r)))
		require.NoError(t, err)
		fields[r] = f
	}

	return fields
}

func syncAll[T types.Object](fields []*Field[T]) func(ctx context.Context, rank int) error {
	return func(ctx context.Context, rank int) error {
		return fields[rank].SyncHalo(ctx)
	}
}

func ids[T types.Object](objs []T) []int64 {
	out := make([]int64, 0, len(objs))
	for _, o := range objs {
		out = append(out, o.ObjectID())
	}
	slices.Sort(out)

	return out
}

func requireIDsAt(t *testing.T, f *Field[*walker], p geom.Point, want ...int64) {
	t.Helper()

	objs, err := f.ObjectsAt(p)
	require.NoError(t, err, "point %v", p)
	if len(want) == 0 {
		require.Empty(t, objs, "point %v", p)
		return
	}
	require.Equal(t, want, ids(objs), "point %v", p)
}

// localResolver hands remote ops straight to the target rank's field,
// round-tripping the object the way a transport would.
type localResolver struct {
	fields []*Field[*walker]
}

type localHandle struct {
	field *Field[*walker]
}

func (r *localResolver) Resolve(_ context.Context, rank int) (types.RemoteHandle[*walker], error) {
	if rank < 0 || rank >= len(r.fields) {
		return nil, fmt.Errorf("%w: rank %d", types.ErrUnreachable, rank)
	}

	return localHandle{field: r.fields[rank]}, nil
}

func (h localHandle) Apply(_ context.Context, op types.RemoteOp[*walker]) error {
	if op.Object != nil {
		cp := *op.Object
		op.Object = &cp
	}

	return h.field.Enqueue(op)
}
