package watch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	fabrictest "github.com/arloliu/fabric/testing"
	"github.com/arloliu/fabric/types"
)

func TestMonitor_Lifecycle(t *testing.T) {
	_, nc := fabrictest.StartEmbeddedNATS(t)
	kv := fabrictest.CreateJetStreamKV(t, nc, "test-monitor-lifecycle")

	m := NewMonitor(kv, "g.>", time.Second, func(context.Context) error { return nil }, nil)

	require.ErrorIs(t, m.Stop(), types.ErrNotStarted)
	require.NoError(t, m.Start(t.Context()))
	require.ErrorIs(t, m.Start(t.Context()), types.ErrAlreadyStarted)
	require.NoError(t, m.Stop())
	require.NoError(t, m.Stop())
	require.ErrorIs(t, m.Start(t.Context()), types.ErrStopped)
}

func TestMonitor_DetectsChanges(t *testing.T) {
	ctx := t.Context()
	_, nc := fabrictest.StartEmbeddedNATS(t)
	kv := fabrictest.CreateJetStreamKV(t, nc, "test-monitor-changes")

	var calls atomic.Int32
	m := NewMonitor(kv, "g.members.*", time.Hour, func(context.Context) error {
		calls.Add(1)
		return nil
	}, fabrictest.NewTestLogger(t))
	require.NoError(t, m.Start(ctx))
	defer func() { _ = m.Stop() }()

	// initial check
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	base := calls.Load()

	_, err := kv.Put(ctx, "g.members.w1", []byte("a"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return calls.Load() > base }, 2*time.Second, 10*time.Millisecond)

	base = calls.Load()
	_, err = kv.Put(ctx, "other.key", []byte("a"))
	require.NoError(t, err)
	time.Sleep(300 * time.Millisecond)
	require.Equal(t, base, calls.Load(), "keys outside the pattern must not trigger")
}

func TestMonitor_DebouncesBursts(t *testing.T) {
	ctx := t.Context()
	_, nc := fabrictest.StartEmbeddedNATS(t)
	kv := fabrictest.CreateJetStreamKV(t, nc, "test-monitor-burst")

	var calls atomic.Int32
	m := NewMonitor(kv, "g.>", time.Hour, func(context.Context) error {
		calls.Add(1)
		return nil
	}, nil)
	require.NoError(t, m.Start(ctx))
	defer func() { _ = m.Stop() }()

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	base := calls.Load()

	for i := range 20 {
		_, err := kv.Put(ctx, "g.k", []byte{byte(i)})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return calls.Load() > base }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	require.Less(t, calls.Load()-base, int32(20))
}

func TestMonitor_PollsAndTriggers(t *testing.T) {
	_, nc := fabrictest.StartEmbeddedNATS(t)
	kv := fabrictest.CreateJetStreamKV(t, nc, "test-monitor-poll")

	var calls atomic.Int32
	m := NewMonitor(kv, "g.>", 100*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return errors.New("logged, not fatal")
	}, nil)
	require.NoError(t, m.Start(t.Context()))
	defer func() { _ = m.Stop() }()

	require.Eventually(t, func() bool { return calls.Load() >= 4 }, 3*time.Second, 10*time.Millisecond)

	m.Trigger()
	m.Trigger()
}

func TestMonitor_CallbacksNeverOverlap(t *testing.T) {
	ctx := t.Context()
	_, nc := fabrictest.StartEmbeddedNATS(t)
	kv := fabrictest.CreateJetStreamKV(t, nc, "test-monitor-serial")

	var inFlight, overlaps, calls atomic.Int32
	m := NewMonitor(kv, "g.>", 20*time.Millisecond, func(context.Context) error {
		if inFlight.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		calls.Add(1)
		return nil
	}, nil)
	require.NoError(t, m.Start(ctx))

	for i := range 10 {
		_, err := kv.Put(ctx, "g.k", []byte{byte(i)})
		require.NoError(t, err)
		m.Trigger()
	}
	require.Eventually(t, func() bool { return calls.Load() >= 10 }, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, m.Stop())
	require.Zero(t, overlaps.Load())
}
