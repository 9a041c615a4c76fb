// Package policy provides the built-in balancing policies.
//
// A policy maps a task's partitions onto the task's workers and writes each
// worker's share through a types.AssignmentWriter. Policies recompute from
// scratch on every call, so running one twice with the same inputs writes the
// same records.
//
//   - Even ("even"): partition i goes to member i mod len(members). Predictable,
//     floor/ceil balanced, no affinity across membership changes.
//   - ConsistentHash ("consistent-hash"): bounded-load hash ring with virtual
//     nodes. Most partitions stay on their worker when membership changes.
//
// Policies are selected by type tag with New. Custom policies implement
// types.BalancingPolicy and are passed to the task manager directly.
package policy
