package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSentinelErrors(t *testing.T) {
	t.Run("wrapped errors keep identity", func(t *testing.T) {
		wrapped := fmt.Errorf("member w1: %w", ErrAssignmentWrite)
		require.ErrorIs(t, wrapped, ErrAssignmentWrite)
		require.NotErrorIs(t, wrapped, ErrPartitionData)

		joined := errors.Join(wrapped, errors.New("additional context"))
		require.ErrorIs(t, joined, ErrAssignmentWrite)
	})

	t.Run("all errors are distinct", func(t *testing.T) {
		allErrors := []error{
			ErrInvalidConfig,
			ErrInvalidID,
			ErrNATSConnectionRequired,
			ErrPartitionSourceRequired,
			ErrUnknownPolicy,
			ErrUnknownListener,
			ErrUnknownStrategy,
			ErrAlreadyStarted,
			ErrNotStarted,
			ErrStopped,
			ErrConnectivity,
			ErrMemberExists,
			ErrNotJoined,
			ErrAssignmentWrite,
			ErrPartitionData,
			ErrNoKeysFound,
			ErrNoEndpointsAvailable,
			ErrNoConduitInitiator,
			ErrFailOverExhausted,
		}

		for i, a := range allErrors {
			for j, b := range allErrors {
				if i == j {
					continue
				}
				require.NotErrorIs(t, a, b, "%v should not match %v", a, b)
			}
		}
	})
}

func TestIsNoKeysFoundError(t *testing.T) {
	require.False(t, IsNoKeysFoundError(nil))
	require.True(t, IsNoKeysFoundError(ErrNoKeysFound))
	require.True(t, IsNoKeysFoundError(errors.New("failed to list KV keys: nats: no keys found")))
	require.False(t, IsNoKeysFoundError(errors.New("nats: timeout")))
}
