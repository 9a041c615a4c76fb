// Package natsutil classifies NATS client errors.
package natsutil

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/fabric/types"
)

// IsConnectivityError checks if an error is caused by connectivity issues.
//
// This includes NATS timeouts, connection refused, disconnections, etc.
// Groups use it to flip between connected and disconnected.
//
// Parameters:
//   - err: Error to check
//
// Returns:
//   - bool: true if error indicates connectivity issue
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, types.ErrConnectivity) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrConnectionReconnecting) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		errors.Is(err, jetstream.ErrJetStreamNotEnabled) ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "i/o timeout")
}

// Classify wraps connectivity errors with types.ErrConnectivity and returns
// other errors unchanged. A nil err yields nil.
//
// Example:
//
//	if _, err := kv.Create(ctx, key, data); err != nil {
//	    return natsutil.Classify(fmt.Errorf("failed to join group: %w", err))
//	}
func Classify(err error) error {
	if err == nil || errors.Is(err, types.ErrConnectivity) || !IsConnectivityError(err) {
		return err
	}

	return fmt.Errorf("%w: %w", types.ErrConnectivity, err)
}

// ClassifyConn is Classify that also treats an expired deadline as a
// connectivity failure while nc is not connected.
//
// nats.go buffers publishes while reconnecting, so a store call made during
// an outage fails with the caller's context.DeadlineExceeded instead of a
// NATS error. A nil nc behaves like Classify.
func ClassifyConn(nc *nats.Conn, err error) error {
	if err == nil || errors.Is(err, types.ErrConnectivity) {
		return err
	}
	if nc != nil && nc.Status() != nats.CONNECTED && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", types.ErrConnectivity, nc.Status(), err)
	}

	return Classify(err)
}

// ClassifyTimeout treats err as a connectivity failure when it is a deadline
// that expired while parent was still live, i.e. a store call bounded by a
// child timeout got no answer in time.
func ClassifyTimeout(parent context.Context, err error) error {
	if err == nil || errors.Is(err, types.ErrConnectivity) {
		return err
	}
	if parent.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", types.ErrConnectivity, err)
	}

	return Classify(err)
}
