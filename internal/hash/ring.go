// Package hash provides an xxh3 consistent hash ring with virtual nodes.
package hash

import (
	"encoding/binary"
	"math"
	"slices"

	"github.com/zeebo/xxh3"
)

// Ring implements a consistent hash ring with virtual nodes.
//
// The ring maps partition IDs to members using consistent hashing, which keeps
// most assignments in place when members join or leave.
type Ring struct {
	// nodes contains all virtual nodes on the ring, sorted by hash
	nodes []virtualNode

	// members holds the unique list of members present on the ring
	members []string

	// seed for hash function (0 means no seed)
	seed uint64
}

type virtualNode struct {
	hash      uint64
	memberIdx int
}

// NewRing creates a new consistent hash ring.
//
// Parameters:
//   - members: Member IDs to place on the ring (duplicates ignored)
//   - virtualNodesPerMember: Number of virtual nodes per member (higher = better distribution)
//   - seed: Seed for hash function (0 for unseeded)
//
// Returns:
//   - *Ring: Initialized hash ring
//
// Example:
//
//	ring := hash.NewRing([]string{"w1", "w2"}, 150, 0)
//	member := ring.GetNode("p1")
func NewRing(members []string, virtualNodesPerMember int, seed uint64) *Ring {
	ring := &Ring{
		nodes:   make([]virtualNode, 0, len(members)*virtualNodesPerMember),
		members: make([]string, 0, len(members)),
		seed:    seed,
	}

	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		ring.members = append(ring.members, m)
	}

	for i, m := range ring.members {
		ring.addMember(m, i, virtualNodesPerMember)
	}

	slices.SortFunc(ring.nodes, func(a, b virtualNode) int {
		switch {
		case a.hash < b.hash:
			return -1
		case a.hash > b.hash:
			return 1
		default:
			return a.memberIdx - b.memberIdx
		}
	})

	return ring
}

// GetNode finds the member responsible for key, or "" for an empty ring.
//
// Uses binary search to find the first virtual node whose hash is >= the key
// hash, wrapping around to the first node.
func (r *Ring) GetNode(key string) string {
	if len(r.nodes) == 0 {
		return ""
	}

	return r.members[r.nodes[r.search(r.hash(key))].memberIdx]
}

// Members returns the unique members on the ring in input order.
func (r *Ring) Members() []string {
	return slices.Clone(r.members)
}

// Size returns the total number of virtual nodes on the ring.
func (r *Ring) Size() int {
	return len(r.nodes)
}

// Assign maps every key to a member with bounded load.
//
// Each member accepts at most ceil(len(keys)/len(members) * loadFactor) keys.
// A key whose ring owner is full walks clockwise to the next member with
// capacity, so a loadFactor of 1 yields an even split while keeping keys on
// their ring owner wherever possible. Factors below 1 are treated as 1.
//
// Parameters:
//   - keys: Keys to assign, processed in order
//   - loadFactor: Capacity multiplier over the even share (e.g., 1.25)
//
// Returns:
//   - map[string][]string: Member → keys, with an entry (possibly empty) for every member
func (r *Ring) Assign(keys []string, loadFactor float64) map[string][]string {
	out := make(map[string][]string, len(r.members))
	for _, m := range r.members {
		out[m] = []string{}
	}
	if len(r.nodes) == 0 || len(keys) == 0 {
		return out
	}

	if loadFactor < 1 {
		loadFactor = 1
	}
	capacity := int(math.Ceil(float64(len(keys)) / float64(len(r.members)) * loadFactor))
	loads := make([]int, len(r.members))

	for _, key := range keys {
		idx := r.search(r.hash(key))
		for range r.nodes {
			mi := r.nodes[idx].memberIdx
			if loads[mi] < capacity {
				loads[mi]++
				out[r.members[mi]] = append(out[r.members[mi]], key)

				break
			}
			idx = (idx + 1) % len(r.nodes)
		}
	}

	return out
}

func (r *Ring) addMember(memberID string, memberIdx int, virtualNodes int) {
	for i := range virtualNodes {
		// Fold memberID, then the vnode index using the previous hash as seed.
		h := r.hash(memberID)

		var ib [8]byte
		binary.LittleEndian.PutUint64(ib[:], uint64(i)) //nolint:gosec
		h = xxh3.HashSeed(ib[:], h)

		r.nodes = append(r.nodes, virtualNode{hash: h, memberIdx: memberIdx})
	}
}

func (r *Ring) hash(key string) uint64 {
	if r.seed != 0 {
		return xxh3.HashStringSeed(key, r.seed)
	}

	return xxh3.HashString(key)
}

// search returns the index of the first node >= target, wrapping to 0.
func (r *Ring) search(target uint64) int {
	idx, found := slices.BinarySearchFunc(r.nodes, target, func(node virtualNode, t uint64) int {
		if node.hash < t {
			return -1
		}
		if node.hash > t {
			return 1
		}

		return 0
	})

	if !found && idx >= len(r.nodes) {
		idx = 0
	}

	return idx
}
