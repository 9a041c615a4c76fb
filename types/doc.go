// Package types provides core type definitions and interfaces for the fabric library.
//
// This package contains shared types that are used across multiple packages in
// fabric. Keeping them in a separate package avoids import cycles between the root
// fabric package and its implementations.
//
// Key types:
//   - State: TaskManager lifecycle state
//   - Member, Group, GroupListener: group membership over the coordination store
//   - Partition, WorkerNode: units of work and their per-worker assignment record
//   - BalancingPolicy, PartitionListener, PartitionSource: pluggable SPIs
//   - Logger, MetricsCollector, Hooks: ambient interfaces
package types
