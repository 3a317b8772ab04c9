package types

import (
	"context"

	"github.com/eclab/mason-sub011/geom"
)

// RemoteOpKind identifies a write executed on a remote process's storage.
type RemoteOpKind int

const (
	// OpAdd places an object at Point.
	OpAdd RemoteOpKind = iota

	// OpRemove removes an object found at Point.
	OpRemove

	// OpRemoveAll removes every object at Point.
	OpRemoveAll

	// OpMove moves an object from Point to To. Both points must be owned by
	// the executing process.
	OpMove
)

// String returns the string representation of the op kind.
func (k RemoteOpKind) String() string {
	switch k {
	case OpAdd:
		return "add"
	case OpRemove:
		return "remove"
	case OpRemoveAll:
		return "remove_all"
	case OpMove:
		return "move"
	default:
		return "unknown"
	}
}

// RemoteOp is one write routed to the process owning Point.
type RemoteOp[T Object] struct {
	Kind   RemoteOpKind `json:"kind"`
	Field  string       `json:"field"`
	Point  geom.Point   `json:"point"`
	To     geom.Point   `json:"to,omitempty"`
	Object T            `json:"object"`
}

// RemoteHandle performs writes against one remote process's storage.
type RemoteHandle[T Object] interface {
	// Apply asks the remote process to execute op against its own storage.
	Apply(ctx context.Context, op RemoteOp[T]) error
}

// RemoteResolver returns the remote handle for a process.
type RemoteResolver[T Object] interface {
	// Resolve returns the handle for rank, creating it on first use.
	// Returns ErrUnreachable if the process cannot be contacted.
	Resolve(ctx context.Context, rank int) (RemoteHandle[T], error)
}

// RemoteExecutor accepts remote ops on the owning process. Enqueue may be
// called from transport goroutines.
type RemoteExecutor[T Object] interface {
	Enqueue(op RemoteOp[T]) error
}
