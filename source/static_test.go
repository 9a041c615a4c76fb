package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/fabric/types"
)

func TestStatic_ListPartitions(t *testing.T) {
	t.Run("returns all partitions", func(t *testing.T) {
		partitions := []types.Partition{
			{ID: "p1", Data: map[string]string{"host": "a"}},
			{ID: "p2"},
		}
		src := NewStatic(partitions)

		result, err := src.ListPartitions(context.Background())

		require.NoError(t, err)
		require.Equal(t, partitions, result)
	})

	t.Run("does not alias the caller's data", func(t *testing.T) {
		partitions := []types.Partition{{ID: "p1", Data: map[string]string{"k": "v"}}}
		src := NewStatic(partitions)
		partitions[0].Data["k"] = "changed"

		result, err := src.ListPartitions(context.Background())
		require.NoError(t, err)
		require.Equal(t, "v", result[0].Data["k"])
	})
}

func TestStatic_Update(t *testing.T) {
	src := NewStatic([]types.Partition{{ID: "p1"}, {ID: "p2", Data: map[string]string{"v": "1"}}})

	var events []types.PartitionEvent
	stop, err := src.Subscribe(context.Background(), func(e types.PartitionEvent) {
		events = append(events, e)
	})
	require.NoError(t, err)
	require.Equal(t, []types.PartitionEvent{{Type: types.PartitionsInitialized}}, events)

	src.Update([]types.Partition{{ID: "p2", Data: map[string]string{"v": "2"}}, {ID: "p3"}})
	require.Equal(t, []types.PartitionEvent{
		{Type: types.PartitionsInitialized},
		{Type: types.PartitionAdded, PartitionID: "p2"},
		{Type: types.PartitionAdded, PartitionID: "p3"},
		{Type: types.PartitionRemoved, PartitionID: "p1"},
	}, events)

	result, err := src.ListPartitions(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"p2", "p3"}, types.PartitionIDs(result))

	stop()
	src.Update(nil)
	require.Len(t, events, 4)
}
