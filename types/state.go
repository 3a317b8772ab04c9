package types

// FieldState is the synchronization state of a halo field.
//
//	FieldUnsynchronized → FieldSynchronized → FieldUnsynchronized → ...
//
// A field becomes synchronized after a halo exchange and unsynchronized on
// any local write, reload or remote op application.
type FieldState int

const (
	// FieldUnsynchronized means halo contents may be stale.
	FieldUnsynchronized FieldState = iota

	// FieldSynchronized means halo contents reflect the last exchange.
	FieldSynchronized
)

// String returns the string representation of the state.
func (s FieldState) String() string {
	switch s {
	case FieldUnsynchronized:
		return "Unsynchronized"
	case FieldSynchronized:
		return "Synchronized"
	default:
		return "Unknown"
	}
}

// NodeState is the lifecycle state of a node.
//
//	NodeInit → NodeReady → NodeSyncing ⇄ NodeReady
//	                     → NodeBalancing ⇄ NodeReady
//	any → NodeClosed
type NodeState int

const (
	// NodeInit means the partition is not yet built.
	NodeInit NodeState = iota

	// NodeReady means the node is between synchronization points.
	NodeReady

	// NodeSyncing means the node is inside a synchronization point.
	NodeSyncing

	// NodeBalancing means the node is inside a rebalance.
	NodeBalancing

	// NodeClosed means the node has been closed.
	NodeClosed
)

// String returns the string representation of the state.
func (s NodeState) String() string {
	switch s {
	case NodeInit:
		return "Init"
	case NodeReady:
		return "Ready"
	case NodeSyncing:
		return "Syncing"
	case NodeBalancing:
		return "Balancing"
	case NodeClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}
