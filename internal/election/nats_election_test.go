package election

import (
	"strconv"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	fabrictest "github.com/arloliu/fabric/testing"
)

func TestNATSElection_RequestLeadership(t *testing.T) {
	t.Run("acquires leadership when no leader exists", func(t *testing.T) {
		ctx := t.Context()
		_, nc := fabrictest.StartEmbeddedNATS(t)
		kv := fabrictest.CreateJetStreamKV(t, nc, "test-election-1")

		e := NewNATSElection(kv, "group.leader", "s1")

		isLeader, err := e.RequestLeadership(ctx, "w1", 30)
		require.NoError(t, err)
		require.True(t, isLeader)
		require.True(t, e.Held())
		require.Equal(t, "w1", e.MemberID())

		lease, err := e.Holder(ctx)
		require.NoError(t, err)
		require.Equal(t, "w1", lease.Member)
		require.Equal(t, "s1", lease.Session)
	})

	t.Run("fails when another member is leader", func(t *testing.T) {
		ctx := t.Context()
		_, nc := fabrictest.StartEmbeddedNATS(t)
		kv := fabrictest.CreateJetStreamKV(t, nc, "test-election-2")

		e1 := NewNATSElection(kv, "group.leader", "s1")
		isLeader, err := e1.RequestLeadership(ctx, "w1", 30)
		require.NoError(t, err)
		require.True(t, isLeader)

		e2 := NewNATSElection(kv, "group.leader", "s2")
		isLeader, err = e2.RequestLeadership(ctx, "w2", 30)
		require.NoError(t, err)
		require.False(t, isLeader)
		require.False(t, e2.Held())
	})

	t.Run("renews when already leader", func(t *testing.T) {
		ctx := t.Context()
		_, nc := fabrictest.StartEmbeddedNATS(t)
		kv := fabrictest.CreateJetStreamKV(t, nc, "test-election-3")

		e := NewNATSElection(kv, "group.leader", "s1")
		for range 3 {
			isLeader, err := e.RequestLeadership(ctx, "w1", 30)
			require.NoError(t, err)
			require.True(t, isLeader)
		}
	})

	t.Run("reclaims own lease after losing local state", func(t *testing.T) {
		ctx := t.Context()
		_, nc := fabrictest.StartEmbeddedNATS(t)
		kv := fabrictest.CreateJetStreamKV(t, nc, "test-election-4")

		e := NewNATSElection(kv, "group.leader", "s1")
		isLeader, err := e.RequestLeadership(ctx, "w1", 30)
		require.NoError(t, err)
		require.True(t, isLeader)

		e.clearLeadership()

		isLeader, err = e.RequestLeadership(ctx, "w1", 30)
		require.NoError(t, err)
		require.True(t, isLeader)
	})

	t.Run("returns error for invalid lease duration", func(t *testing.T) {
		_, nc := fabrictest.StartEmbeddedNATS(t)
		kv := fabrictest.CreateJetStreamKV(t, nc, "test-election-5")

		isLeader, err := NewNATSElection(kv, "group.leader", "s1").RequestLeadership(t.Context(), "w1", 0)
		require.ErrorIs(t, err, ErrInvalidDuration)
		require.False(t, isLeader)
	})
}

func TestNATSElection_RenewLeadership(t *testing.T) {
	ctx := t.Context()
	_, nc := fabrictest.StartEmbeddedNATS(t)
	kv := fabrictest.CreateJetStreamKV(t, nc, "test-election-renew")

	t.Run("fails if not the leader", func(t *testing.T) {
		err := NewNATSElection(kv, "a.leader", "s1").RenewLeadership(ctx)
		require.ErrorIs(t, err, ErrNotLeader)
	})

	t.Run("fails if leadership was lost", func(t *testing.T) {
		e := NewNATSElection(kv, "b.leader", "s1")
		isLeader, err := e.RequestLeadership(ctx, "w1", 30)
		require.NoError(t, err)
		require.True(t, isLeader)

		require.NoError(t, e.RenewLeadership(ctx))

		require.NoError(t, kv.Delete(ctx, "b.leader"))
		require.ErrorIs(t, e.RenewLeadership(ctx), ErrLeadershipLost)
		require.False(t, e.Held())
	})
}

func TestNATSElection_ReleaseLeadership(t *testing.T) {
	ctx := t.Context()
	_, nc := fabrictest.StartEmbeddedNATS(t)
	kv := fabrictest.CreateJetStreamKV(t, nc, "test-election-release")

	t.Run("fails if not the leader", func(t *testing.T) {
		require.ErrorIs(t, NewNATSElection(kv, "a.leader", "s1").ReleaseLeadership(ctx), ErrNotLeader)
	})

	t.Run("hands mastership to the next candidate", func(t *testing.T) {
		e1 := NewNATSElection(kv, "b.leader", "s1")
		isLeader, err := e1.RequestLeadership(ctx, "w1", 30)
		require.NoError(t, err)
		require.True(t, isLeader)

		require.NoError(t, e1.ReleaseLeadership(ctx))
		require.Empty(t, e1.MemberID())

		_, err = kv.Get(ctx, "b.leader")
		require.ErrorIs(t, err, jetstream.ErrKeyNotFound)

		lease, err := e1.Holder(ctx)
		require.NoError(t, err)
		require.Empty(t, lease.Member)

		e2 := NewNATSElection(kv, "b.leader", "s2")
		isLeader, err = e2.RequestLeadership(ctx, "w2", 30)
		require.NoError(t, err)
		require.True(t, isLeader)
	})
}

func TestNATSElection_IsLeader(t *testing.T) {
	ctx := t.Context()
	_, nc := fabrictest.StartEmbeddedNATS(t)
	kv := fabrictest.CreateJetStreamKV(t, nc, "test-election-isleader")

	t.Run("false when never requested", func(t *testing.T) {
		isLeader, err := NewNATSElection(kv, "a.leader", "s1").IsLeader(ctx)
		require.NoError(t, err)
		require.False(t, isLeader)
	})

	t.Run("detects takeover", func(t *testing.T) {
		e := NewNATSElection(kv, "b.leader", "s1")
		isLeader, err := e.RequestLeadership(ctx, "w1", 30)
		require.NoError(t, err)
		require.True(t, isLeader)

		isLeader, err = e.IsLeader(ctx)
		require.NoError(t, err)
		require.True(t, isLeader)

		require.NoError(t, kv.Delete(ctx, "b.leader"))
		_, err = kv.Create(ctx, "b.leader", []byte(`{"member":"w2","session":"s2"}`))
		require.NoError(t, err)

		isLeader, err = e.IsLeader(ctx)
		require.NoError(t, err)
		require.False(t, isLeader)
	})
}

func TestNATSElection_Failover(t *testing.T) {
	ctx := t.Context()
	_, nc := fabrictest.StartEmbeddedNATS(t)
	kv := fabrictest.CreateJetStreamKVWithTTL(t, nc, "test-election-failover", time.Second)

	e1 := NewNATSElection(kv, "group.leader", "s1")
	isLeader, err := e1.RequestLeadership(ctx, "w1", 1)
	require.NoError(t, err)
	require.True(t, isLeader)

	e2 := NewNATSElection(kv, "group.leader", "s2")
	require.Eventually(t, func() bool {
		ok, err := e2.RequestLeadership(ctx, "w2", 1)
		return err == nil && ok
	}, 5*time.Second, 100*time.Millisecond)
}

func TestNATSElection_Concurrent(t *testing.T) {
	ctx := t.Context()
	_, nc := fabrictest.StartEmbeddedNATS(t)
	kv := fabrictest.CreateJetStreamKV(t, nc, "test-election-concurrent")

	const candidates = 5
	results := make(chan bool, candidates)
	errs := make(chan error, candidates)

	for i := range candidates {
		go func() {
			id := "w" + strconv.Itoa(i)
			isLeader, err := NewNATSElection(kv, "group.leader", "s-"+id).RequestLeadership(ctx, id, 30)
			if err != nil {
				errs <- err
				return
			}
			results <- isLeader
		}()
	}

	leaders := 0
	for range candidates {
		select {
		case ok := <-results:
			if ok {
				leaders++
			}
		case err := <-errs:
			t.Fatalf("RequestLeadership failed: %v", err)
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for candidates")
		}
	}

	require.Equal(t, 1, leaders)
}
