package hash

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func keys(n int) []string {
	out := make([]string, n)
	for i := range n {
		out[i] = fmt.Sprintf("p%d", i)
	}

	return out
}

func TestNewRing(t *testing.T) {
	ring := NewRing([]string{"w0", "w1", "w2", "w1"}, 100, 0)

	require.Equal(t, 300, ring.Size())
	require.Equal(t, []string{"w0", "w1", "w2"}, ring.Members())

	empty := NewRing(nil, 100, 0)
	require.Equal(t, 0, empty.Size())
	require.Empty(t, empty.GetNode("p1"))
}

func TestRing_GetNode(t *testing.T) {
	t.Run("consistent for the same key", func(t *testing.T) {
		members := []string{"w0", "w1"}
		ring := NewRing(members, 150, 0)

		for _, key := range []string{"p1", "another", "xyz"} {
			first := ring.GetNode(key)
			require.Equal(t, first, ring.GetNode(key))
			require.Contains(t, members, first)
		}
	})

	t.Run("independent of member order", func(t *testing.T) {
		a := NewRing([]string{"w0", "w1", "w2"}, 150, 0)
		b := NewRing([]string{"w2", "w0", "w1"}, 150, 0)

		for _, k := range keys(200) {
			require.Equal(t, a.GetNode(k), b.GetNode(k))
		}
	})

	t.Run("distributes keys across members", func(t *testing.T) {
		ring := NewRing([]string{"w0", "w1", "w2"}, 150, 0)

		counts := map[string]int{}
		for _, k := range keys(3000) {
			counts[ring.GetNode(k)]++
		}

		require.Len(t, counts, 3)
		for m, c := range counts {
			require.Greater(t, c, 600, "member %s underloaded", m)
		}
	})
}

func TestRing_Affinity(t *testing.T) {
	before := NewRing([]string{"w0", "w1", "w2"}, 150, 0)
	after := NewRing([]string{"w0", "w1", "w2", "w3"}, 150, 0)

	moved := 0
	all := keys(2000)
	for _, k := range all {
		if before.GetNode(k) != after.GetNode(k) {
			moved++
		}
	}

	// Ideal is 1/4 of the keys; allow generous slack.
	require.Less(t, moved, len(all)*40/100)
}

func TestRing_Assign(t *testing.T) {
	t.Run("covers every key exactly once", func(t *testing.T) {
		ring := NewRing([]string{"w0", "w1", "w2"}, 100, 0)
		all := keys(100)

		out := ring.Assign(all, 1.25)

		var got []string
		for _, ks := range out {
			got = append(got, ks...)
		}
		require.ElementsMatch(t, all, got)
	})

	t.Run("load factor 1 gives an even split", func(t *testing.T) {
		ring := NewRing([]string{"w0", "w1", "w2"}, 100, 0)

		out := ring.Assign(keys(10), 1)
		for m, ks := range out {
			require.LessOrEqual(t, len(ks), 4, "member %s", m)
			require.GreaterOrEqual(t, len(ks), 2, "member %s", m)
		}
	})

	t.Run("every member has an entry", func(t *testing.T) {
		ring := NewRing([]string{"w0", "w1", "w2"}, 10, 0)

		out := ring.Assign([]string{"only"}, 1)
		require.Len(t, out, 3)
		for _, ks := range out {
			require.NotNil(t, ks)
		}
	})

	t.Run("empty ring", func(t *testing.T) {
		require.Empty(t, NewRing(nil, 10, 0).Assign(keys(5), 1))
	})
}

func TestRing_DifferentSeeds(t *testing.T) {
	members := []string{"w0", "w1", "w2"}
	a := NewRing(members, 150, 1)
	b := NewRing(members, 150, 2)

	differ := 0
	for _, k := range keys(300) {
		if a.GetNode(k) != b.GetNode(k) {
			differ++
		}
	}

	require.Positive(t, differ)
}
