package policy

import (
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	fabrictest "github.com/arloliu/fabric/testing"
)

func partitionIDs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("partition-%03d", i)
	}

	return out
}

func TestConsistentHash_Rebalance(t *testing.T) {
	t.Run("full coverage without duplicates", func(t *testing.T) {
		w := fabrictest.NewRecordingWriter()
		p := NewConsistentHash(w, nil)
		parts := partitionIDs(60)
		members := []string{"w1", "w2", "w3"}

		require.NoError(t, p.Rebalance(t.Context(), "orders", parts, members))
		require.Equal(t, members, w.Members())

		var union []string
		for _, ids := range w.Assignments() {
			require.LessOrEqual(t, len(ids), 25)
			union = append(union, ids...)
		}
		slices.Sort(union)
		require.Equal(t, parts, union)
	})

	t.Run("most partitions stay when a member joins", func(t *testing.T) {
		w := fabrictest.NewRecordingWriter()
		p := NewConsistentHash(w, nil, WithVirtualNodes(200), WithHashSeed(7), WithLoadFactor(1.5))
		parts := partitionIDs(200)

		require.NoError(t, p.Rebalance(t.Context(), "orders", parts, []string{"w1", "w2", "w3"}))
		before := owners(w.Assignments())

		require.NoError(t, p.Rebalance(t.Context(), "orders", parts, []string{"w1", "w2", "w3", "w4"}))
		after := owners(w.Assignments())

		moved := 0
		for id, o := range before {
			if after[id] != o {
				moved++
			}
		}
		require.Less(t, moved, len(parts)/2)
	})

	t.Run("no members writes nothing", func(t *testing.T) {
		w := fabrictest.NewRecordingWriter()
		require.NoError(t, NewConsistentHash(w, nil).Rebalance(t.Context(), "orders", partitionIDs(3), nil))
		require.Zero(t, w.Writes())
	})

	require.Equal(t, TypeConsistentHash, NewConsistentHash(nil, nil).Type())
}

func owners(a map[string][]string) map[string]string {
	out := map[string]string{}
	for m, ids := range a {
		for _, id := range ids {
			out[id] = m
		}
	}

	return out
}
