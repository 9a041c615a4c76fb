package watch

import (
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	fabrictest "github.com/arloliu/fabric/testing"
)

func TestSnapshot(t *testing.T) {
	ctx := t.Context()
	_, nc := fabrictest.StartEmbeddedNATS(t)
	kv := fabrictest.CreateJetStreamKV(t, nc, "test-snapshot")

	t.Run("empty pattern", func(t *testing.T) {
		entries, err := Snapshot(ctx, kv, "parts.none.*")
		require.NoError(t, err)
		require.Empty(t, entries)
	})

	t.Run("live entries only", func(t *testing.T) {
		for _, k := range []string{"parts.a.p1", "parts.a.p2", "parts.a.p3", "parts.b.p1"} {
			_, err := kv.Put(ctx, k, []byte(k))
			require.NoError(t, err)
		}
		require.NoError(t, kv.Delete(ctx, "parts.a.p2"))

		entries, err := Snapshot(ctx, kv, "parts.a.*")
		require.NoError(t, err)

		keys := make([]string, 0, len(entries))
		for _, e := range entries {
			keys = append(keys, e.Key())
		}
		require.ElementsMatch(t, []string{"parts.a.p1", "parts.a.p3"}, keys)
	})
}

func TestSubscribe(t *testing.T) {
	ctx := t.Context()
	_, nc := fabrictest.StartEmbeddedNATS(t)
	kv := fabrictest.CreateJetStreamKV(t, nc, "test-subscribe")

	_, err := kv.Put(ctx, "rec.c1", []byte("v1"))
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []string
	replayDone := false
	stop, err := Subscribe(ctx, kv, "rec.c1", func(e jetstream.KeyValueEntry) {
		mu.Lock()
		defer mu.Unlock()
		if e == nil {
			replayDone = true
			return
		}
		seen = append(seen, string(e.Value()))
	})
	require.NoError(t, err)

	_, err = kv.Put(ctx, "rec.c1", []byte("v2"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return replayDone && len(seen) == 2
	}, 2*time.Second, 10*time.Millisecond)

	stop()

	_, err = kv.Put(ctx, "rec.c1", []byte("v3"))
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"v1", "v2"}, seen)
}
