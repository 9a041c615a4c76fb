package types

import "context"

// ElectionAgent elects the master of a group.
//
// The master is the single member allowed to trigger exclusive actions, such as
// computing and writing partition assignments. Implementations can use:
//   - NATS KV (built-in)
//   - External agents (Consul, etcd, ZooKeeper)
//
// A group calls ElectionAgent methods when a member joins (request), periodically
// while it stays joined (renew or request), and when it leaves (release).
type ElectionAgent interface {
	// RequestLeadership attempts to acquire mastership for memberID.
	//
	// If already master, extends the lease.
	//
	// Returns:
	//   - bool: true if mastership acquired/held
	//   - error: Election error (nil on success)
	RequestLeadership(ctx context.Context, memberID string, leaseDuration int64) (bool, error)

	// RenewLeadership renews the current lease; fails if mastership was lost.
	RenewLeadership(ctx context.Context) error

	// ReleaseLeadership voluntarily releases mastership.
	ReleaseLeadership(ctx context.Context) error

	// IsLeader checks with the store whether this agent still holds mastership.
	IsLeader(ctx context.Context) (bool, error)
}
