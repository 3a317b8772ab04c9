package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// Remote-call metrics are recorded from transport goroutines, so all methods
// must be thread-safe.
//
// This interface composes smaller, domain-focused interfaces for better modularity.
type MetricsCollector interface {
	PartitionMetrics
	HaloMetrics
	MigrationMetrics
	CommMetrics
}

// PartitionMetrics defines metrics for partition manager operations.
type PartitionMetrics interface {
	// RecordRebalance records a committed rebalance.
	//
	// Parameters:
	//   - level: Tree level that was rebalanced
	//   - duration: Time taken in seconds, including observer callbacks
	//   - moved: Number of split origins that changed
	RecordRebalance(level int, duration float64, moved int)

	// RecordRebalanceFailure records a rebalance that returned an error.
	RecordRebalanceFailure(level int)

	// RecordTopology records the shape of a freshly built topology.
	//
	// Parameters:
	//   - neighbors: Number of neighbor processes of this process
	//   - groups: Number of group communicators this process belongs to
	RecordTopology(neighbors, groups int)
}

// HaloMetrics defines metrics for halo field synchronization.
type HaloMetrics interface {
	// RecordHaloSync records one halo exchange round.
	//
	// Parameters:
	//   - field: Field name
	//   - duration: Time taken in seconds
	//   - sent: Bytes packed for neighbors
	//   - received: Bytes unpacked from neighbors
	RecordHaloSync(field string, duration float64, sent, received int)

	// RecordCollective records a collect or distribute operation.
	//
	// Parameters:
	//   - field: Field name
	//   - op: "collect", "distribute", "collect_group" or "distribute_group"
	//   - duration: Time taken in seconds
	RecordCollective(field, op string, duration float64)

	// RecordRemoteOpsApplied records queued remote ops applied at a sync point.
	RecordRemoteOpsApplied(field string, count int)
}

// MigrationMetrics defines metrics for remote access and agent migration.
type MigrationMetrics interface {
	// RecordMigration records agents exchanged by one transporter flush.
	RecordMigration(field string, sent, received int)

	// RecordRemoteCall records a remote write issued to another process.
	//
	// Parameters:
	//   - op: Remote op kind ("add", "remove", "remove_all", "move")
	//   - success: true if the remote process accepted the op
	//   - duration: Round-trip time in seconds
	RecordRemoteCall(op string, success bool, duration float64)
}

// CommMetrics defines metrics for the message-passing substrate.
type CommMetrics interface {
	// RecordMessage records one outgoing point-to-point message.
	RecordMessage(bytes int)

	// RecordCollectiveWait records time spent blocked in a collective.
	//
	// Parameters:
	//   - op: Collective name ("barrier", "gather", "neighbor_all_to_all", ...)
	//   - duration: Time taken in seconds
	RecordCollectiveWait(op string, duration float64)
}
