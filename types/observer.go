package types

import "context"

// RebalanceObserver is notified around every committed rebalance.
//
// Observers are registered with the partition manager and invoked in
// registration order on every process. Both callbacks run inside the
// rebalance collective, so they may issue collectives themselves as long as
// every process issues the same ones.
type RebalanceObserver interface {
	// PreCommit runs before the partition tree changes. level is the tree
	// level whose group is being rebalanced.
	PreCommit(ctx context.Context, level int) error

	// PostCommit runs after the tree and communication topology are rebuilt.
	PostCommit(ctx context.Context, level int) error
}
