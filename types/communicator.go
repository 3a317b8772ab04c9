package types

import "context"

// Communicator is the message-passing substrate shared by a fixed set of
// processes.
//
// Collective operations must be issued by every member in the same order.
// A member that never reaches a pending collective stalls the others until
// their context is cancelled. Implementations are not safe for concurrent use
// by multiple goroutines of the same process.
type Communicator interface {
	// ID returns the communicator identifier, identical on every member.
	ID() string

	// Rank returns this process's rank within the communicator.
	Rank() int

	// Size returns the number of members.
	Size() int

	// Send delivers data to dst. It does not wait for the receiver.
	Send(ctx context.Context, dst int, data []byte) error

	// Recv waits for the next message sent by src to this process.
	Recv(ctx context.Context, src int) ([]byte, error)

	// Barrier blocks until every member has entered the barrier.
	Barrier(ctx context.Context) error

	// Bcast distributes root's data to every member and returns it.
	Bcast(ctx context.Context, root int, data []byte) ([]byte, error)

	// Gather collects every member's data at root, ordered by rank.
	// Non-root members receive nil.
	Gather(ctx context.Context, root int, data []byte) ([][]byte, error)

	// Scatter sends parts[i] from root to member i and returns this member's part.
	// parts is ignored on non-root members.
	Scatter(ctx context.Context, root int, parts [][]byte) ([]byte, error)

	// AllGather returns every member's data on every member, ordered by rank.
	AllGather(ctx context.Context, data []byte) ([][]byte, error)

	// AllToAll sends parts[i] to member i and returns the parts received,
	// indexed by source rank.
	AllToAll(ctx context.Context, parts [][]byte) ([][]byte, error)

	// ReduceSum sums vals element-wise at root. Non-root members receive nil.
	ReduceSum(ctx context.Context, root int, vals []float64) ([]float64, error)

	// Sub derives a sub-communicator over members, given as ranks of this
	// communicator. Members are ordered as given; the new rank of a process is
	// its index in members. Returns ErrNotMember if this process is not listed.
	Sub(id string, members []int) (Communicator, error)

	// Graph derives a distributed-graph communicator over a symmetric
	// adjacency list. neighbors are ranks of this communicator.
	Graph(id string, neighbors []int) (NeighborCommunicator, error)

	// WorldRank maps a rank of this communicator to the root communicator's rank.
	WorldRank(rank int) int
}

// NeighborCommunicator exchanges data with a fixed list of neighbors.
type NeighborCommunicator interface {
	// Neighbors returns the neighbor ranks in exchange order.
	Neighbors() []int

	// NeighborAllToAll sends parts[i] to Neighbors()[i] and returns the parts
	// received, indexed the same way. It is one collective round.
	NeighborAllToAll(ctx context.Context, parts [][]byte) ([][]byte, error)
}
