package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateCreated, "Created"},
		{StateStarted, "Started"},
		{StateStopped, "Stopped"},
		{State(999), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			require.Equal(t, tt.want, tt.state.String())
		})
	}
}

func TestGroupEventString(t *testing.T) {
	require.Equal(t, "Connected", GroupConnected.String())
	require.Equal(t, "Disconnected", GroupDisconnected.String())
	require.Equal(t, "Changed", GroupChanged.String())
	require.Equal(t, "Unknown", GroupEvent(42).String())
}
