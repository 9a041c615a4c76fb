package loadbalance

import (
	"testing"

	"github.com/stretchr/testify/require"

	fabrictest "github.com/arloliu/fabric/testing"
	"github.com/arloliu/fabric/types"
)

func TestRandom(t *testing.T) {
	g := fabrictest.NewFakeGroup("billing")
	s := NewRandom(g)
	defer s.Close()

	_, err := s.GetNextAlternateAddress()
	require.ErrorIs(t, err, types.ErrNoEndpointsAvailable)

	g.SetMembers("http://a:1", "http://b:2", "http://c:3")
	require.Equal(t, []string{"http://a:1", "http://b:2", "http://c:3"}, s.AlternateAddresses())

	seen := map[string]int{}
	for range 300 {
		addr, err := s.GetNextAlternateAddress()
		require.NoError(t, err)
		seen[addr]++
	}
	require.Len(t, seen, 3)
}

func TestFirstOne(t *testing.T) {
	g := fabrictest.NewFakeGroup("billing")
	g.SetMembers("http://primary", "http://standby")

	s := NewFirstOne(g)
	defer s.Close()

	for range 10 {
		addr, err := s.GetNextAlternateAddress()
		require.NoError(t, err)
		require.Equal(t, "http://primary", addr)
	}

	g.SetMembers("http://standby")
	addr, err := s.GetNextAlternateAddress()
	require.NoError(t, err)
	require.Equal(t, "http://standby", addr)
}

func TestRoundRobin(t *testing.T) {
	g := fabrictest.NewFakeGroup("billing")
	g.SetMembers("http://a", "http://b")

	s := NewRoundRobin(g)
	defer s.Close()

	var got []string
	for range 4 {
		addr, err := s.GetNextAlternateAddress()
		require.NoError(t, err)
		got = append(got, addr)
	}
	require.Equal(t, []string{"http://a", "http://b", "http://a", "http://b"}, got)
}

func TestAddressBook(t *testing.T) {
	t.Run("invalid payloads are skipped", func(t *testing.T) {
		g := fabrictest.NewFakeGroup("billing")
		logger := fabrictest.NewTestLogger(t)
		s := NewFirstOne(g, WithLogger(logger))
		defer s.Close()

		g.SetMembers("not a uri", string([]byte{0xff, 0xfe}), "grpc://svc:9000", "://bad")
		require.Equal(t, []string{"grpc://svc:9000"}, s.AlternateAddresses())
	})

	t.Run("refreshed on every event", func(t *testing.T) {
		g := fabrictest.NewFakeGroup("billing")
		g.SetMembers("http://a")
		s := NewRandom(g)

		g.SetConnected(false)
		require.Equal(t, []string{"http://a"}, s.AlternateAddresses())

		s.Close()
		require.Zero(t, g.ListenerCount())
		g.SetMembers("http://b")
		require.Equal(t, []string{"http://a"}, s.AlternateAddresses())
	})
}

func TestNew(t *testing.T) {
	g := fabrictest.NewFakeGroup("billing")

	for _, typ := range []string{TypeRandom, TypeFirstOne, TypeRoundRobin} {
		s, err := New(typ, g)
		require.NoError(t, err)
		require.Equal(t, typ, s.Name())
		s.Close()
	}

	_, err := New("least-loaded", g)
	require.ErrorIs(t, err, types.ErrUnknownStrategy)
}
