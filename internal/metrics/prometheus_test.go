package metrics

import (
	"testing"

	"github.com/arloliu/fabric/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "test")

	t.Run("group metrics", func(t *testing.T) {
		p.RecordGroupEvent("workers", types.GroupChanged)
		p.RecordGroupEvent("workers", types.GroupChanged)
		p.RecordGroupMembers("workers", 3)
		p.RecordMastershipChange("workers", true)

		require.InDelta(t, 2, testutil.ToFloat64(p.groupEvents.WithLabelValues("workers", "changed")), 0)
		require.InDelta(t, 3, testutil.ToFloat64(p.groupMembers.WithLabelValues("workers")), 0)
		require.InDelta(t, 1, testutil.ToFloat64(p.mastership.WithLabelValues("workers")), 0)

		p.RecordMastershipChange("workers", false)
		require.InDelta(t, 0, testutil.ToFloat64(p.mastership.WithLabelValues("workers")), 0)
	})

	t.Run("rebalance metrics", func(t *testing.T) {
		p.RecordRebalanceAttempt("orders", true)
		p.RecordRebalanceAttempt("orders", false)
		p.RecordRebalanceDropped("orders")
		p.RecordAssignmentWrite("orders", false)

		require.InDelta(t, 1, testutil.ToFloat64(p.rebalances.WithLabelValues("orders", "success")), 0)
		require.InDelta(t, 1, testutil.ToFloat64(p.rebalances.WithLabelValues("orders", "failure")), 0)
		require.InDelta(t, 1, testutil.ToFloat64(p.rebalanceDropped.WithLabelValues("orders")), 0)
		require.InDelta(t, 1, testutil.ToFloat64(p.assignWrites.WithLabelValues("orders", "failure")), 0)
	})

	t.Run("worker metrics", func(t *testing.T) {
		p.RecordAssignmentChange("orders", 3, 1)
		p.RecordAssignedPartitions("orders", 2)

		require.InDelta(t, 3, testutil.ToFloat64(p.assignChanges.WithLabelValues("orders", "added")), 0)
		require.InDelta(t, 1, testutil.ToFloat64(p.assignChanges.WithLabelValues("orders", "removed")), 0)
		require.InDelta(t, 2, testutil.ToFloat64(p.assigned.WithLabelValues("orders")), 0)
	})

	t.Run("load balance metrics", func(t *testing.T) {
		p.RecordEndpointSelection("random", true)
		p.RecordEndpointSelection("random", false)
		p.RecordAlternateAddresses("random", 4)

		require.InDelta(t, 1, testutil.ToFloat64(p.selections.WithLabelValues("random", "empty")), 0)
		require.InDelta(t, 4, testutil.ToFloat64(p.addresses.WithLabelValues("random")), 0)

		p.RecordActiveCalls("random", 2)
		require.InDelta(t, 2, testutil.ToFloat64(p.activeCalls.WithLabelValues("random")), 0)
	})

	t.Run("registered once", func(t *testing.T) {
		families, err := reg.Gather()
		require.NoError(t, err)
		require.NotEmpty(t, families)
		for _, f := range families {
			require.Contains(t, f.GetName(), "test_")
		}
	})
}
