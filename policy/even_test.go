package policy

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	fabrictest "github.com/arloliu/fabric/testing"
	"github.com/arloliu/fabric/types"
)

func TestEven_Rebalance(t *testing.T) {
	t.Run("five partitions over two members", func(t *testing.T) {
		w := fabrictest.NewRecordingWriter()
		p := NewEven(w, nil)

		err := p.Rebalance(t.Context(), "orders", []string{"p1", "p2", "p3", "p4", "p5"}, []string{"w1", "w2"})
		require.NoError(t, err)
		require.Equal(t, map[string][]string{
			"w1": {"p1", "p3", "p5"},
			"w2": {"p2", "p4"},
		}, w.Assignments())
	})

	t.Run("no members writes nothing", func(t *testing.T) {
		w := fabrictest.NewRecordingWriter()
		p := NewEven(w, fabrictest.NewTestLogger(t))

		require.NoError(t, p.Rebalance(t.Context(), "orders", []string{"p1", "p2"}, nil))
		require.Zero(t, w.Writes())
	})

	t.Run("members without partitions get an empty list", func(t *testing.T) {
		w := fabrictest.NewRecordingWriter()
		p := NewEven(w, nil)

		require.NoError(t, p.Rebalance(t.Context(), "orders", []string{"p1"}, []string{"w1", "w2", "w3"}))
		require.Equal(t, map[string][]string{"w1": {"p1"}, "w2": {}, "w3": {}}, w.Assignments())
	})

	t.Run("recomputation is idempotent", func(t *testing.T) {
		w := fabrictest.NewRecordingWriter()
		p := NewEven(w, nil)
		parts := []string{"a", "b", "c", "d"}
		members := []string{"x", "y", "z"}

		require.NoError(t, p.Rebalance(t.Context(), "t", parts, members))
		first := w.Assignments()
		require.NoError(t, p.Rebalance(t.Context(), "t", parts, members))
		require.Equal(t, first, w.Assignments())
	})

	t.Run("a failed write does not stop the others", func(t *testing.T) {
		w := fabrictest.NewRecordingWriter()
		w.FailFor("w2", errors.New("boom"))
		logger := fabrictest.NewTestLogger(t)
		p := NewEven(w, logger)

		err := p.Rebalance(t.Context(), "orders", []string{"p1", "p2", "p3"}, []string{"w1", "w2", "w3"})
		require.ErrorIs(t, err, types.ErrAssignmentWrite)
		require.Equal(t, []string{"w1", "w3"}, w.Members())
	})
}

func TestAssign_Distribution(t *testing.T) {
	for _, tc := range []struct{ n, m int }{{0, 1}, {1, 3}, {7, 3}, {10, 5}, {100, 7}} {
		t.Run(fmt.Sprintf("%d over %d", tc.n, tc.m), func(t *testing.T) {
			parts := make([]string, tc.n)
			for i := range parts {
				parts[i] = fmt.Sprintf("p%d", i)
			}
			members := make([]string, tc.m)
			for i := range members {
				members[i] = fmt.Sprintf("w%d", i)
			}

			out := Assign(parts, members)
			require.Len(t, out, tc.m)

			floor, ceil := tc.n/tc.m, (tc.n+tc.m-1)/tc.m
			var union []string
			for _, ids := range out {
				require.True(t, len(ids) == floor || len(ids) == ceil, "got %d, want %d or %d", len(ids), floor, ceil)
				union = append(union, ids...)
			}
			slices.Sort(union)
			want := slices.Clone(parts)
			slices.Sort(want)
			require.Equal(t, want, append([]string{}, union...))
		})
	}

	require.Nil(t, Assign([]string{"p1"}, nil))
}
