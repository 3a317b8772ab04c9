package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNopMetrics(t *testing.T) {
	m := NewNop()

	require.NotPanics(t, func() {
		m.RecordRebalance(1, 0.5, 1)
		m.RecordRebalanceFailure(0)
		m.RecordTopology(3, 2)
		m.RecordHaloSync("heat", 0.01, 100, 120)
		m.RecordCollective("heat", "collect", 0.2)
		m.RecordRemoteOpsApplied("heat", 4)
		m.RecordMigration("bugs", 2, 1)
		m.RecordRemoteCall("add", true, 0.001)
		m.RecordMessage(64)
		m.RecordCollectiveWait("barrier", 0.001)
	})
}

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheus(reg, "test")

	m.RecordRebalance(1, 0.25, 1)
	m.RecordRebalance(1, 0.5, 2)
	m.RecordHaloSync("heat", 0.01, 100, 40)
	m.RecordRemoteCall("move", false, 0.002)
	m.RecordMigration("bugs", 3, 0)
	m.RecordTopology(3, 2)

	require.InDelta(t, 3.0, testutil.ToFloat64(m.rebalanceMoved.WithLabelValues("1")), 1e-9)
	require.InDelta(t, 100.0, testutil.ToFloat64(m.haloBytes.WithLabelValues("heat", "sent")), 1e-9)
	require.InDelta(t, 40.0, testutil.ToFloat64(m.haloBytes.WithLabelValues("heat", "received")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(m.remoteCalls.WithLabelValues("move", "failure")), 1e-9)
	require.InDelta(t, 3.0, testutil.ToFloat64(m.migrations.WithLabelValues("bugs", "sent")), 1e-9)
	require.InDelta(t, 3.0, testutil.ToFloat64(m.neighbors), 1e-9)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}
