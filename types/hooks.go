package types

import "context"

// Hooks are callbacks a node invokes at lifecycle points. Nil callbacks are
// skipped. Callbacks run on the node's driving goroutine and block it.
type Hooks struct {
	// OnStateChanged is called after every node state transition.
	OnStateChanged func(ctx context.Context, from, to NodeState) error

	// OnRebalanced is called after a committed rebalance with the level that
	// was balanced and the new partition version.
	OnRebalanced func(ctx context.Context, level, version int) error

	// OnError is called when a synchronization or balancing step fails.
	OnError func(ctx context.Context, err error) error
}
