package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseData(t *testing.T) {
	t.Run("key value pairs", func(t *testing.T) {
		data, err := parseData([]string{"region=eu", "shard=7", "note=a=b", "empty="})
		require.NoError(t, err)
		require.Equal(t, map[string]string{"region": "eu", "shard": "7", "note": "a=b", "empty": ""}, data)
	})

	t.Run("no arguments", func(t *testing.T) {
		data, err := parseData(nil)
		require.NoError(t, err)
		require.Empty(t, data)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := parseData([]string{"region"})
		require.Error(t, err)

		_, err = parseData([]string{"=eu"})
		require.Error(t, err)
	})
}
