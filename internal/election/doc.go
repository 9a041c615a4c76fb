// Package election provides group mastership election over NATS KV.
//
// Exactly one joined member of a group holds the mastership lease at a time.
// The task manager uses it as the group's leader predicate: only the master
// computes and writes partition assignments.
//
// # Lease lifecycle
//
//  1. Request: a joined member calls RequestLeadership on every refresh tick
//  2. Acquire: the first atomic Create of the leader key wins
//  3. Renew: the master updates the key with its last revision
//  4. Release: the master deletes the key when leaving the group
//  5. Fail-over: a crashed master's key expires with the bucket TTL and the
//     next candidate to tick acquires it
//
// The lease value records the member ID and session token of the holder, so a
// process that lost its local state after a failed renewal can take its own
// lease back instead of waiting for expiry.
//
// # Errors
//
//   - ErrNotLeader: Renew or release without holding the lease
//   - ErrLeadershipLost: The key changed under the master
//   - ErrInvalidDuration: Non-positive lease duration
package election
