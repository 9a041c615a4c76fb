package natsutil

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	fabrictest "github.com/arloliu/fabric/testing"
	"github.com/arloliu/fabric/types"
)

func TestIsConnectivityError(t *testing.T) {
	require.False(t, IsConnectivityError(nil))
	require.False(t, IsConnectivityError(jetstream.ErrKeyExists))
	require.False(t, IsConnectivityError(errors.New("bad payload")))

	require.True(t, IsConnectivityError(nats.ErrTimeout))
	require.True(t, IsConnectivityError(fmt.Errorf("get: %w", nats.ErrConnectionClosed)))
	require.True(t, IsConnectivityError(types.ErrConnectivity))
	require.True(t, IsConnectivityError(errors.New("dial tcp: connection refused")))
}

func TestClassify(t *testing.T) {
	require.NoError(t, Classify(nil))

	plain := errors.New("bad payload")
	require.Same(t, plain, Classify(plain))

	err := Classify(fmt.Errorf("failed to join: %w", nats.ErrNoServers))
	require.ErrorIs(t, err, types.ErrConnectivity)
	require.ErrorIs(t, err, nats.ErrNoServers)

	already := fmt.Errorf("x: %w", types.ErrConnectivity)
	require.Same(t, already, Classify(already))
}

func TestClassifyConn(t *testing.T) {
	srv, nc := fabrictest.StartEmbeddedNATS(t)
	deadline := fmt.Errorf("failed to register member w1: %w", context.DeadlineExceeded)

	t.Run("deadline while connected is not connectivity", func(t *testing.T) {
		err := ClassifyConn(nc, deadline)
		require.NotErrorIs(t, err, types.ErrConnectivity)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("nil conn falls back to Classify", func(t *testing.T) {
		require.NotErrorIs(t, ClassifyConn(nil, deadline), types.ErrConnectivity)
		require.ErrorIs(t, ClassifyConn(nil, nats.ErrNoServers), types.ErrConnectivity)
		require.NoError(t, ClassifyConn(nil, nil))
	})

	t.Run("deadline while reconnecting is connectivity", func(t *testing.T) {
		srv.Shutdown()
		srv.WaitForShutdown()
		require.Eventually(t, func() bool { return nc.Status() != nats.CONNECTED }, 5*time.Second, 10*time.Millisecond)

		err := ClassifyConn(nc, deadline)
		require.ErrorIs(t, err, types.ErrConnectivity)
		require.ErrorIs(t, err, context.DeadlineExceeded)

		canceled := fmt.Errorf("x: %w", context.Canceled)
		require.NotErrorIs(t, ClassifyConn(nc, canceled), types.ErrConnectivity)
	})
}

func TestClassifyTimeout(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())

	child, childCancel := context.WithTimeout(parent, time.Millisecond)
	defer childCancel()
	<-child.Done()

	err := ClassifyTimeout(parent, fmt.Errorf("failed to read group: %w", child.Err()))
	require.ErrorIs(t, err, types.ErrConnectivity)

	plain := errors.New("bad payload")
	require.Same(t, plain, ClassifyTimeout(parent, plain))

	cancel()
	require.NotErrorIs(t, ClassifyTimeout(parent, fmt.Errorf("x: %w", context.DeadlineExceeded)), types.ErrConnectivity)
}
