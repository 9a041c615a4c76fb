package hooks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/fabric/internal/logging"
	"github.com/arloliu/fabric/types"
)

func TestNewNop(t *testing.T) {
	h := NewNop()
	ctx := context.Background()

	require.NoError(t, h.OnAssignmentChanged(ctx, []string{"p1"}, nil))
	require.NoError(t, h.OnStateChanged(ctx, types.StateCreated, types.StateStarted))
	require.NoError(t, h.OnError(ctx, context.Canceled))
}

func TestFill(t *testing.T) {
	t.Run("nil hooks", func(t *testing.T) {
		h := Fill(nil)
		require.NotNil(t, h.OnAssignmentChanged)
		require.NotNil(t, h.OnStateChanged)
		require.NotNil(t, h.OnError)
	})

	t.Run("keeps user callbacks", func(t *testing.T) {
		called := false
		h := Fill(&types.Hooks{OnError: func(context.Context, error) error {
			called = true
			return nil
		}})

		require.NoError(t, h.OnError(context.Background(), errors.New("x")))
		require.True(t, called)
		require.NotNil(t, h.OnStateChanged)
	})
}

func TestDispatcher(t *testing.T) {
	var gotAdded, gotRemoved atomic.Value
	var states atomic.Int32

	rec := logging.NewTest(t)
	d := NewDispatcher(&types.Hooks{
		OnAssignmentChanged: func(_ context.Context, added, removed []string) error {
			gotAdded.Store(added)
			gotRemoved.Store(removed)
			return nil
		},
		OnStateChanged: func(_ context.Context, _, _ types.State) error {
			states.Add(1)
			return errors.New("hook failure")
		},
	}, rec)

	ctx := context.Background()
	added := []string{"p1", "p2"}
	d.AssignmentChanged(ctx, added, []string{"p3"})
	added[0] = "mutated"
	d.StateChanged(ctx, types.StateCreated, types.StateStarted)
	d.Error(ctx, errors.New("ignored"))
	d.Wait()

	require.Equal(t, []string{"p1", "p2"}, gotAdded.Load())
	require.Equal(t, []string{"p3"}, gotRemoved.Load())
	require.Equal(t, int32(1), states.Load())

	warns := rec.Entries("WARN")
	require.Len(t, warns, 1)
	require.Equal(t, "OnStateChanged", warns[0].Fields["hook"])
}
