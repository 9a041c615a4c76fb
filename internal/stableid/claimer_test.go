package stableid

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	fabrictest "github.com/arloliu/fabric/testing"
)

func newClaimer(kv jetstream.KeyValue, session string, maxID int, ttl time.Duration) *Claimer {
	return NewClaimer(kv, "fabric.registry.ids", "container", 0, maxID, ttl, session, nil)
}

func TestClaimer_Claim(t *testing.T) {
	t.Run("claims the lowest free id", func(t *testing.T) {
		ctx := t.Context()
		_, nc := fabrictest.StartEmbeddedNATS(t)
		kv := fabrictest.CreateJetStreamKVWithTTL(t, nc, "test-ids-1", 10*time.Second)

		c1 := newClaimer(kv, "s1", 9, 10*time.Second)
		id, err := c1.Claim(ctx)
		require.NoError(t, err)
		require.Equal(t, "container-0", id)
		require.Equal(t, id, c1.ID())

		again, err := c1.Claim(ctx)
		require.NoError(t, err)
		require.Equal(t, id, again)

		c2 := newClaimer(kv, "s2", 9, 10*time.Second)
		id, err = c2.Claim(ctx)
		require.NoError(t, err)
		require.Equal(t, "container-1", id)

		entry, err := kv.Get(ctx, "fabric.registry.ids.container-1")
		require.NoError(t, err)
		require.Equal(t, []byte("s2"), entry.Value())
	})

	t.Run("pool exhaustion", func(t *testing.T) {
		ctx := t.Context()
		_, nc := fabrictest.StartEmbeddedNATS(t)
		kv := fabrictest.CreateJetStreamKVWithTTL(t, nc, "test-ids-2", 10*time.Second)

		_, err := newClaimer(kv, "s1", 0, 10*time.Second).Claim(ctx)
		require.NoError(t, err)

		_, err = newClaimer(kv, "s2", 0, 10*time.Second).Claim(ctx)
		require.ErrorIs(t, err, ErrNoAvailableID)
	})

	t.Run("concurrent claims get distinct ids", func(t *testing.T) {
		ctx := t.Context()
		_, nc := fabrictest.StartEmbeddedNATS(t)
		kv := fabrictest.CreateJetStreamKVWithTTL(t, nc, "test-ids-3", 10*time.Second)

		const n = 8
		ids := make([]string, n)
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id, err := newClaimer(kv, fmt.Sprintf("s%d", i), 20, 10*time.Second).Claim(ctx)
				if err == nil {
					ids[i] = id
				}
			}()
		}
		wg.Wait()

		seen := map[string]bool{}
		for _, id := range ids {
			require.NotEmpty(t, id)
			require.False(t, seen[id], "duplicate id %s", id)
			seen[id] = true
		}
	})
}

func TestClaimer_Renewal(t *testing.T) {
	ctx := t.Context()
	_, nc := fabrictest.StartEmbeddedNATS(t)
	kv := fabrictest.CreateJetStreamKVWithTTL(t, nc, "test-ids-renew", time.Second)

	c := newClaimer(kv, "s1", 9, time.Second)
	_, err := c.Claim(ctx)
	require.NoError(t, err)
	require.NoError(t, c.StartRenewal())

	time.Sleep(2500 * time.Millisecond)

	_, err = newClaimer(kv, "s2", 0, time.Second).Claim(ctx)
	require.ErrorIs(t, err, ErrNoAvailableID, "renewed lease must survive past the TTL")

	require.NoError(t, c.Release(ctx))
	require.Empty(t, c.ID())

	id, err := newClaimer(kv, "s3", 0, time.Second).Claim(ctx)
	require.NoError(t, err)
	require.Equal(t, "container-0", id)
}

func TestClaimer_Expiry(t *testing.T) {
	ctx := t.Context()
	_, nc := fabrictest.StartEmbeddedNATS(t)
	kv := fabrictest.CreateJetStreamKVWithTTL(t, nc, "test-ids-expiry", time.Second)

	_, err := newClaimer(kv, "crashed", 0, time.Second).Claim(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		id, err := newClaimer(kv, "restarted", 0, time.Second).Claim(ctx)
		return err == nil && id == "container-0"
	}, 5*time.Second, 100*time.Millisecond)
}

func TestClaimer_Errors(t *testing.T) {
	ctx := context.Background()
	_, nc := fabrictest.StartEmbeddedNATS(t)
	kv := fabrictest.CreateJetStreamKVWithTTL(t, nc, "test-ids-errors", 10*time.Second)

	c := newClaimer(kv, "s1", 3, 10*time.Second)
	require.ErrorIs(t, c.StartRenewal(), ErrNotClaimed)
	require.ErrorIs(t, c.Release(ctx), ErrNotClaimed)
	require.Empty(t, c.ID())

	_, err := c.Claim(ctx)
	require.NoError(t, err)
	require.NoError(t, c.StartRenewal())
	require.NoError(t, c.Release(ctx))
	require.ErrorIs(t, c.Release(ctx), ErrAlreadyClosed)
	require.ErrorIs(t, c.StartRenewal(), ErrAlreadyClosed)

	_, err = c.Claim(ctx)
	require.ErrorIs(t, err, ErrAlreadyClosed)
}
