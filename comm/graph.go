package comm

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/eclab/mason-sub011/types"
)

// Graph is a distributed-graph communicator: each process exchanges data only
// with its listed neighbors.
type Graph struct {
	comm      *Comm
	neighbors []int
}

// Compile-time assertion that Graph implements NeighborCommunicator.
var _ types.NeighborCommunicator = (*Graph)(nil)

// Neighbors returns the neighbor ranks in exchange order.
func (g *Graph) Neighbors() []int {
	return slices.Clone(g.neighbors)
}

// NeighborAllToAll sends parts[i] to neighbor i and receives one part from
// each neighbor, in a single round. Sends are issued before any receive, so
// the round costs one latency regardless of neighbor count.
func (g *Graph) NeighborAllToAll(ctx context.Context, parts [][]byte) ([][]byte, error) {
	if len(parts) != len(g.neighbors) {
		return nil, fmt.Errorf("%w: %d parts for %d neighbors", types.ErrPartsMismatch, len(parts), len(g.neighbors))
	}
	defer g.comm.observe("neighbor_all_to_all", time.Now())
	seq := g.comm.next()

	for i, n := range g.neighbors {
		if err := g.comm.send(ctx, n, kindCollective, seq, parts[i]); err != nil {
			return nil, err
		}
	}

	out := make([][]byte, len(g.neighbors))
	for i, n := range g.neighbors {
		part, err := g.comm.recv(ctx, n, kindCollective, seq)
		if err != nil {
			return nil, err
		}
		out[i] = part
	}

	return out, nil
}
