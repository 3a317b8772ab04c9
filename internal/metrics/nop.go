// Package metrics provides MetricsCollector implementations.
package metrics

import "github.com/eclab/mason-sub011/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. It is the default collector of every component
// and is embedded by PrometheusCollector for interface coverage.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// PartitionMetrics implementation

// RecordRebalance discards the rebalance metric.
func (n *NopMetrics) RecordRebalance(_ /* level */ int, _ /* duration */ float64, _ /* moved */ int) {}

// RecordRebalanceFailure discards the failure metric.
func (n *NopMetrics) RecordRebalanceFailure(_ /* level */ int) {}

// RecordTopology discards the topology metric.
func (n *NopMetrics) RecordTopology(_ /* neighbors */, _ /* groups */ int) {}

// HaloMetrics implementation

// RecordHaloSync discards the halo sync metric.
func (n *NopMetrics) RecordHaloSync(_ /* field */ string, _ /* duration */ float64, _ /* sent */, _ /* received */ int) {
}

// RecordCollective discards the collect/distribute metric.
func (n *NopMetrics) RecordCollective(_ /* field */, _ /* op */ string, _ /* duration */ float64) {}

// RecordRemoteOpsApplied discards the remote op metric.
func (n *NopMetrics) RecordRemoteOpsApplied(_ /* field */ string, _ /* count */ int) {}

// MigrationMetrics implementation

// RecordMigration discards the migration metric.
func (n *NopMetrics) RecordMigration(_ /* field */ string, _ /* sent */, _ /* received */ int) {}

// RecordRemoteCall discards the remote call metric.
func (n *NopMetrics) RecordRemoteCall(_ /* op */ string, _ /* success */ bool, _ /* duration */ float64) {
}

// CommMetrics implementation

// RecordMessage discards the message metric.
func (n *NopMetrics) RecordMessage(_ /* bytes */ int) {}

// RecordCollectiveWait discards the collective wait metric.
func (n *NopMetrics) RecordCollectiveWait(_ /* op */ string, _ /* duration */ float64) {}
