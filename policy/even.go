package policy

import (
	"context"

	"github.com/arloliu/fabric/internal/logging"
	"github.com/arloliu/fabric/types"
)

// TypeEven is the type tag of the Even policy.
const TypeEven = "even"

// Even distributes partitions round-robin by position.
type Even struct {
	writer types.AssignmentWriter
	logger types.Logger
}

var _ types.BalancingPolicy = (*Even)(nil)

// NewEven creates an even distribution policy writing through writer.
//
// Example:
//
//	p := policy.NewEven(registry, logger)
//	err := p.Rebalance(ctx, "orders", []string{"p1", "p2", "p3"}, []string{"w1", "w2"})
func NewEven(writer types.AssignmentWriter, logger types.Logger) *Even {
	return &Even{writer: writer, logger: logging.OrNop(logger)}
}

// Type returns "even".
func (e *Even) Type() string {
	return TypeEven
}

// Rebalance assigns partition i to memberIDs[i mod len(memberIDs)] and writes
// every member's list.
//
// Inputs are used in the given order; sorting is the caller's decision.
// With no members nothing is written.
func (e *Even) Rebalance(ctx context.Context, taskID string, partitionIDs, memberIDs []string) error {
	if len(memberIDs) == 0 {
		e.logger.Warn("no members to assign partitions to, skipping", "task", taskID, "partitions", len(partitionIDs))
		return nil
	}

	return writeAll(ctx, e.writer, e.logger, taskID, memberIDs, Assign(partitionIDs, memberIDs))
}

// Assign computes the even assignment without writing it.
//
// Returns:
//   - map[string][]string: Member → partitions, with an entry for every member
//     (nil when members is empty)
func Assign(partitionIDs, memberIDs []string) map[string][]string {
	if len(memberIDs) == 0 {
		return nil
	}

	out := make(map[string][]string, len(memberIDs))
	for _, m := range memberIDs {
		out[m] = []string{}
	}
	for i, p := range partitionIDs {
		m := memberIDs[i%len(memberIDs)]
		out[m] = append(out[m], p)
	}

	return out
}
