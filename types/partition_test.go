package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPartitionWithData(t *testing.T) {
	t.Parallel()

	p := Partition{ID: "p1"}.WithData()
	require.NotNil(t, p.Data)
	require.Empty(t, p.Data)

	withData := Partition{ID: "p2", Data: map[string]string{"k": "v"}}.WithData()
	require.Equal(t, "v", withData.Data["k"])
}

func TestPartitionIDs(t *testing.T) {
	t.Parallel()

	ids := PartitionIDs([]Partition{{ID: "b"}, {ID: "a"}, {ID: "c"}})
	require.Equal(t, []string{"b", "a", "c"}, ids)
	require.Empty(t, PartitionIDs(nil))
}

func TestDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		old         []string
		cur         []string
		wantAdded   []string
		wantRemoved []string
	}{
		{"both empty", nil, nil, []string{}, []string{}},
		{"initial assignment", nil, []string{"p1", "p2"}, []string{"p1", "p2"}, []string{}},
		{"full release", []string{"p1", "p2"}, nil, []string{}, []string{"p1", "p2"}},
		{"unchanged", []string{"p1", "p2"}, []string{"p2", "p1"}, []string{}, []string{}},
		{"moved", []string{"p1", "p2", "p3"}, []string{"p2", "p4"}, []string{"p4"}, []string{"p1", "p3"}},
		{"duplicates ignored", []string{"p1", "p1"}, []string{"p2", "p2"}, []string{"p2"}, []string{"p1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			added, removed := Diff(tt.old, tt.cur)
			require.Equal(t, tt.wantAdded, added)
			require.Equal(t, tt.wantRemoved, removed)
		})
	}
}

func TestValidateID(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"p1", "worker-0", "a_b", "x=y", "ABC123"} {
		require.NoError(t, ValidateID(id), id)
	}

	for _, id := range []string{"", "a.b", "a*", "a>", "a b", "a/b", "ü"} {
		require.ErrorIs(t, ValidateID(id), ErrInvalidID, id)
	}
}
