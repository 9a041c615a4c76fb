package policy

import (
	"context"

	"github.com/arloliu/fabric/internal/hash"
	"github.com/arloliu/fabric/internal/logging"
	"github.com/arloliu/fabric/types"
)

// TypeConsistentHash is the type tag of the ConsistentHash policy.
const TypeConsistentHash = "consistent-hash"

// ConsistentHash assigns partitions with a bounded-load consistent hash ring.
type ConsistentHash struct {
	writer       types.AssignmentWriter
	logger       types.Logger
	virtualNodes int
	hashSeed     uint64
	loadFactor   float64
}

var _ types.BalancingPolicy = (*ConsistentHash)(nil)

// ConsistentHashOption configures a ConsistentHash policy.
type ConsistentHashOption func(*ConsistentHash)

// NewConsistentHash creates a consistent hash policy writing through writer.
//
// Defaults: 150 virtual nodes per member, seed 0, load factor 1.25.
//
// Example:
//
//	p := policy.NewConsistentHash(registry, logger, policy.WithVirtualNodes(300))
func NewConsistentHash(writer types.AssignmentWriter, logger types.Logger, opts ...ConsistentHashOption) *ConsistentHash {
	ch := &ConsistentHash{
		writer:       writer,
		logger:       logging.OrNop(logger),
		virtualNodes: 150,
		loadFactor:   1.25,
	}
	for _, opt := range opts {
		opt(ch)
	}

	return ch
}

// WithVirtualNodes sets the number of virtual nodes per member.
//
// Higher values give a smoother distribution at the cost of ring size.
func WithVirtualNodes(nodes int) ConsistentHashOption {
	return func(ch *ConsistentHash) {
		ch.virtualNodes = nodes
	}
}

// WithHashSeed sets the ring hash seed.
func WithHashSeed(seed uint64) ConsistentHashOption {
	return func(ch *ConsistentHash) {
		ch.hashSeed = seed
	}
}

// WithLoadFactor caps each member at loadFactor times the even share.
func WithLoadFactor(f float64) ConsistentHashOption {
	return func(ch *ConsistentHash) {
		ch.loadFactor = f
	}
}

// Type returns "consistent-hash".
func (ch *ConsistentHash) Type() string {
	return TypeConsistentHash
}

// Rebalance places partitions on the ring and writes every member's list.
func (ch *ConsistentHash) Rebalance(ctx context.Context, taskID string, partitionIDs, memberIDs []string) error {
	if len(memberIDs) == 0 {
		ch.logger.Warn("no members to assign partitions to, skipping", "task", taskID, "partitions", len(partitionIDs))
		return nil
	}

	ring := hash.NewRing(memberIDs, ch.virtualNodes, ch.hashSeed)

	return writeAll(ctx, ch.writer, ch.logger, taskID, memberIDs, ring.Assign(partitionIDs, ch.loadFactor))
}
