package partition_test

import (
	"testing"
	"time"

	"github.com/openhqm/openhqm/pkg/partition"
	"github.com/stretchr/testify/require"
)

func TestPIsDeterministic(t *testing.T) {
	cfg := partition.Config{Enabled: true, PartitionCount: 8, Strategy: partition.StrategyHash}
	m1 := partition.NewManager(cfg, "w1", nil)
	m2 := partition.NewManager(cfg, "w2", nil)

	require.Equal(t, m1.P("sess-X"), m2.P("sess-X"))
}

func TestOwnedPartitionsCoverAndDisjoint(t *testing.T) {
	const n, workers = 16, 3

	seen := make(map[int]bool)
	for w := 0; w < workers; w++ {
		for _, p := range partition.OwnedPartitions(n, w, workers) {
			require.False(t, seen[p], "partition %d claimed by more than one worker", p)
			seen[p] = true
		}
	}
	require.Len(t, seen, n)
}

func TestShouldProcessDisabledAlwaysTrue(t *testing.T) {
	m := partition.NewManager(partition.Config{Enabled: false}, "w0", nil)
	require.True(t, m.ShouldProcess(map[string]interface{}{}))
}

func TestShouldProcessMissingKeyDefaultsTrue(t *testing.T) {
	cfg := partition.Config{
		Enabled:           true,
		PartitionCount:    4,
		PartitionKeyField: "metadata.partition_key",
		SessionKeyField:   "metadata.session_id",
	}
	m := partition.NewManager(cfg, "w0", []int{0})
	require.True(t, m.ShouldProcess(map[string]interface{}{"payload": map[string]interface{}{}}))
}

func TestShouldProcessRespectsOwnership(t *testing.T) {
	cfg := partition.Config{
		Enabled:           true,
		PartitionCount:    4,
		Strategy:          partition.StrategyHash,
		PartitionKeyField: "metadata.partition_key",
	}
	msg := map[string]interface{}{"metadata": map[string]interface{}{"partition_key": "sess-X"}}

	owner := partition.NewManager(cfg, "owner", nil)
	p := owner.P("sess-X")
	owner.SetAssignedPartitions([]int{p})
	require.True(t, owner.ShouldProcess(msg))

	other := partition.NewManager(cfg, "other", nil)
	var otherPartitions []int
	for i := 0; i < cfg.PartitionCount; i++ {
		if i != p {
			otherPartitions = append(otherPartitions, i)
		}
	}
	other.SetAssignedPartitions(otherPartitions)
	require.False(t, other.ShouldProcess(msg))
}

func TestTrackSessionAndSweep(t *testing.T) {
	cfg := partition.Config{
		Enabled:          true,
		PartitionCount:   4,
		SessionKeyField:  "metadata.session_id",
		StickySessionTTL: time.Millisecond,
	}
	m := partition.NewManager(cfg, "w0", nil)
	msg := map[string]interface{}{"metadata": map[string]interface{}{"session_id": "sess-1"}}

	m.TrackSession(msg)
	require.Equal(t, 1, m.Stats().ActiveSessions)

	time.Sleep(5 * time.Millisecond)
	removed := m.SweepExpiredSessions()
	require.Equal(t, 1, removed)
	require.Equal(t, 0, m.Stats().ActiveSessions)
}
