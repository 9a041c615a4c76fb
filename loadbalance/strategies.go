package loadbalance

import (
	"fmt"
	"math/rand/v2"
	"sync/atomic"

	"github.com/arloliu/fabric/types"
)

// Type tags of the built-in strategies.
const (
	TypeRandom     = "random"
	TypeFirstOne   = "first-one"
	TypeRoundRobin = "round-robin"
)

// Random picks an address uniformly at random.
type Random struct {
	*addressBook
}

// NewRandom creates a random strategy following group.
func NewRandom(group types.Group, opts ...Option) *Random {
	return &Random{addressBook: newAddressBook(TypeRandom, group, opts)}
}

// GetNextAlternateAddress returns a uniformly chosen address.
func (r *Random) GetNextAlternateAddress() (string, error) {
	return r.pick(func(addresses []string) string {
		return addresses[rand.IntN(len(addresses))] //nolint:gosec // load spreading, not security
	})
}

// FirstOne always picks the first address in membership order.
type FirstOne struct {
	*addressBook
}

// NewFirstOne creates a first-one strategy following group.
func NewFirstOne(group types.Group, opts ...Option) *FirstOne {
	return &FirstOne{addressBook: newAddressBook(TypeFirstOne, group, opts)}
}

// GetNextAlternateAddress returns the head of the list.
func (f *FirstOne) GetNextAlternateAddress() (string, error) {
	return f.pick(func(addresses []string) string {
		return addresses[0]
	})
}

// RoundRobin cycles through the addresses.
type RoundRobin struct {
	*addressBook
	next atomic.Uint64
}

// NewRoundRobin creates a round-robin strategy following group.
func NewRoundRobin(group types.Group, opts ...Option) *RoundRobin {
	return &RoundRobin{addressBook: newAddressBook(TypeRoundRobin, group, opts)}
}

// GetNextAlternateAddress returns the address after the previous one.
func (r *RoundRobin) GetNextAlternateAddress() (string, error) {
	return r.pick(func(addresses []string) string {
		n := r.next.Add(1) - 1
		return addresses[n%uint64(len(addresses))]
	})
}

var (
	_ Strategy = (*Random)(nil)
	_ Strategy = (*FirstOne)(nil)
	_ Strategy = (*RoundRobin)(nil)
)

// New creates a built-in strategy by type tag.
//
// Returns:
//   - error: types.ErrUnknownStrategy for an unknown type
func New(typ string, group types.Group, opts ...Option) (Strategy, error) {
	switch typ {
	case TypeRandom:
		return NewRandom(group, opts...), nil
	case TypeFirstOne:
		return NewFirstOne(group, opts...), nil
	case TypeRoundRobin:
		return NewRoundRobin(group, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownStrategy, typ)
	}
}
