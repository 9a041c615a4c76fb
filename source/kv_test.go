package source

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	fabrictest "github.com/arloliu/fabric/testing"
	"github.com/arloliu/fabric/types"
)

func TestKV_ListPartitions(t *testing.T) {
	ctx := t.Context()
	_, nc := fabrictest.StartEmbeddedNATS(t)
	kv := fabrictest.CreateJetStreamKV(t, nc, "partitions-list")
	src := NewKV(kv, "fabric.partitions.orders", fabrictest.NewTestLogger(t))

	require.NoError(t, src.Put(ctx, types.Partition{ID: "p1", Data: map[string]string{"region": "eu"}}))
	require.NoError(t, src.Put(ctx, types.Partition{ID: "p2"}))
	_, err := kv.Put(ctx, "fabric.partitions.orders.p3", []byte(`{"port": 8080, "name": "x"}`))
	require.NoError(t, err)
	_, err = kv.Put(ctx, "fabric.partitions.orders.p4", []byte(`not json`))
	require.NoError(t, err)
	_, err = kv.Put(ctx, "fabric.partitions.billing.p9", []byte(`{}`))
	require.NoError(t, err)

	parts, err := src.ListPartitions(ctx)
	require.NoError(t, err)

	byID := map[string]map[string]string{}
	for _, p := range parts {
		byID[p.ID] = p.Data
	}
	require.Equal(t, map[string]map[string]string{
		"p1": {"region": "eu"},
		"p2": {},
		"p3": {"port": "8080", "name": "x"},
		"p4": {},
	}, byID)

	require.ErrorIs(t, src.Put(ctx, types.Partition{ID: "a.b"}), types.ErrInvalidID)
}

func TestKV_Subscribe(t *testing.T) {
	ctx := t.Context()
	_, nc := fabrictest.StartEmbeddedNATS(t)
	kv := fabrictest.CreateJetStreamKV(t, nc, "partitions-watch")
	src := NewKV(kv, "parts", nil)

	require.NoError(t, src.Put(ctx, types.Partition{ID: "p1"}))

	var (
		mu     sync.Mutex
		events []types.PartitionEvent
	)
	stop, err := src.Subscribe(ctx, func(e types.PartitionEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})
	require.NoError(t, err)
	defer stop()

	require.NoError(t, src.Put(ctx, types.Partition{ID: "p2"}))
	require.NoError(t, src.Delete(ctx, "p1"))
	require.NoError(t, src.Delete(ctx, "missing"))

	want := []types.PartitionEvent{
		{Type: types.PartitionAdded, PartitionID: "p1"},
		{Type: types.PartitionsInitialized},
		{Type: types.PartitionAdded, PartitionID: "p2"},
		{Type: types.PartitionRemoved, PartitionID: "p1"},
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) >= len(want)
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, want, events[:len(want)])
}

func TestDecodeData(t *testing.T) {
	data, err := DecodeData(nil)
	require.NoError(t, err)
	require.Empty(t, data)

	data, err = DecodeData([]byte(`[1,2]`))
	require.ErrorIs(t, err, types.ErrPartitionData)
	require.NotNil(t, data)
	require.Empty(t, data)
}
